package aio

import (
	"net"
	"time"

	"golang.org/x/net/netutil"
)

const defaultKeepAlivePeriod = 3 * time.Minute

// TCPListener turns on keep-alive for accepted connections, so dead peers
// are eventually detected even without an idle timeout.
type TCPListener struct {
	*net.TCPListener
}

func (ln *TCPListener) Accept() (net.Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	_ = tc.SetKeepAlive(true)
	_ = tc.SetKeepAlivePeriod(defaultKeepAlivePeriod)
	return tc, nil
}

// LimitListener accepts at most n simultaneous connections from ln.
func LimitListener(ln net.Listener, n int) net.Listener {
	return netutil.LimitListener(ln, n)
}
