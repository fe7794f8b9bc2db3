package aio

import (
	"context"
	"net"
)

type TCPServerConfig ServerConfig

type TCPServer struct {
	*ServerBase
}

func TCPListen(addr string) (ln net.Listener, err error) {
	if ln, err = net.Listen("tcp", addr); err != nil {
		return
	}
	ln = &TCPListener{ln.(*net.TCPListener)}
	return
}

func NewTCPServerConfig() *TCPServerConfig {
	return (*TCPServerConfig)(NewServerConfig())
}

func NewTCPServer(ctx context.Context, conf *TCPServerConfig) *TCPServer {
	if conf == nil {
		conf = NewTCPServerConfig()
	}
	srv := &TCPServer{
		ServerBase: NewServerBase(ctx, TCPListen, (*ServerConfig)(conf)),
	}
	return srv
}
