package aio

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
)

type Client interface {
	Dial(addr string) error
	Close()
	Disconnect()
	SetProtocol(Protocol)
	SetIoHandler(h IoHandler)
	Read() error
	Write(msg Message) error
	WriteAndClose(msg Message) error
	Call(ctx context.Context, req Request) (Response, error)
	CallWithTimeout(ctx context.Context, req Request, timeout time.Duration) (Response, error)
	Send(ctx context.Context, msg Message) error
	SendWithTimeout(ctx context.Context, msg Message, timeout time.Duration) error
	GetSession() *IoSession
	IsClosed() bool
	IsConnected() bool
}

// DialError is returned when a client cannot establish its connection.
type DialError struct {
	Addr string
	Err  error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("dial %s: %v", e.Addr, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

func (e *DialError) Cause() error { return e.Err }

// Timeout reports whether the dial failed because it timed out.
func (e *DialError) Timeout() bool {
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}
