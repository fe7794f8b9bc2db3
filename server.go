package aio

import "net"

type Server interface {
	// Start binds addr and accepts connections. A bind failure is returned
	// in both modes; with blocking false accepting continues in the
	// background and Start returns nil.
	Start(addr string, blocking bool) error
	ListenAndServe(addr string) error
	Serve(ln net.Listener) error
	SetProtocol(Protocol)
	SetIoHandler(IoHandler)
	Addr() net.Addr
	SessionCount() int
	Close()
}
