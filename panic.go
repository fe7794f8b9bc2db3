package aio

import (
	"runtime"
)

func getPanicStack() string {
	buf := make([]byte, 8<<10)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
