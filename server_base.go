package aio

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var ErrServerClosed = errors.New("server closed")

type ListenFunc func(addr string) (net.Listener, error)

type ServerConfig struct {
	Io            IoConfig
	MaxConnection int
}

func NewServerConfig() *ServerConfig {
	conf := &ServerConfig{}
	conf.Io.normalize()
	return conf
}

type ServerBase struct {
	*IoServiceBase
	listen ListenFunc
	conf   *ServerConfig

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	closed    bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewServerBase(ctx context.Context, listen ListenFunc, conf *ServerConfig) *ServerBase {
	var (
		newctx, cancel = context.WithCancel(ctx)
		ioConf         = &IoConfig{}
	)

	*ioConf = conf.Io

	srv := &ServerBase{
		IoServiceBase: NewIoServiceBase(ioConf),
		listen:        listen,
		conf:          conf,
		listeners:     make(map[net.Listener]struct{}),
		ctx:           newctx,
		cancel:        cancel,
	}
	return srv
}

func (srv *ServerBase) Start(addr string, blocking bool) error {
	ln, err := srv.Listen(addr)
	if err != nil {
		return err
	}

	// track before returning so Addr works as soon as Start does
	if !srv.trackListener(ln, true) {
		ln.Close()
		return ErrServerClosed
	}

	if blocking {
		return srv.Serve(ln)
	}

	go func() {
		if err := srv.Serve(ln); err != nil && err != ErrServerClosed {
			defaultLogger.Errorf("serve %v: %v", ln.Addr(), err)
		}
	}()
	return nil
}

// Listen binds addr, applying MaxConnection.
func (srv *ServerBase) Listen(addr string) (net.Listener, error) {
	if srv.listen == nil {
		panic("no listen func defined")
	}

	ln, err := srv.listen(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}

	if srv.conf.MaxConnection > 0 {
		ln = LimitListener(ln, srv.conf.MaxConnection)
	}
	return ln, nil
}

func (srv *ServerBase) ListenAndServe(addr string) error {
	ln, err := srv.Listen(addr)
	if err != nil {
		return err
	}
	return srv.Serve(ln)
}

// Serve accepts connections on l until the server is closed or l fails
// permanently. It always closes l before returning. l may already be
// tracked by Start.
func (srv *ServerBase) Serve(l net.Listener) error {
	if !srv.trackListener(l, true) {
		l.Close()
		return ErrServerClosed
	}
	defer func() {
		srv.trackListener(l, false)
		l.Close()
	}()

	defaultLogger.Infof("server started, addr=%v", l.Addr())

	var (
		tempDelay time.Duration
		conn      net.Conn
		err       error
	)

	for {
		if conn, err = l.Accept(); err != nil {

			select {
			case <-srv.ctx.Done():
				return ErrServerClosed
			default:
			}

			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				defaultLogger.Warnf("accept error: %v; retrying in %v", err, tempDelay)

				select {
				case <-srv.ctx.Done():
					return ErrServerClosed
				case <-time.After(tempDelay):
				}
				continue
			}

			return errors.Wrap(err, "accept")
		}

		tempDelay = 0
		srv.serve(srv.newSession(conn))
	}
}

// Addr returns the address of one of the listeners being served, or nil.
func (srv *ServerBase) Addr() net.Addr {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	for ln := range srv.listeners {
		return ln.Addr()
	}
	return nil
}

// Close stops accepting, closes every live session and waits until they
// are all disconnected.
func (srv *ServerBase) Close() {
	srv.closeOnce.Do(func() {
		srv.mu.Lock()
		srv.closed = true
		listeners := srv.listeners
		srv.listeners = make(map[net.Listener]struct{})
		srv.mu.Unlock()

		srv.cancel()

		for ln := range listeners {
			ln.Close()
		}

		for _, session := range srv.sessions.Snapshot() {
			session.Close()
		}

		srv.wg.Wait()
		defaultLogger.Infof("server closed")
	})
}

func (srv *ServerBase) Register(s *IoSession) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if srv.closed {
		return ErrServerClosed
	}
	srv.wg.Add(1)
	return srv.IoServiceBase.Register(s)
}

func (srv *ServerBase) Unregister(s *IoSession) {
	srv.IoServiceBase.Unregister(s)
	srv.wg.Done()
}

func (srv *ServerBase) trackListener(l net.Listener, add bool) bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if add {
		if srv.closed {
			return false
		}
		srv.listeners[l] = struct{}{}
	} else {
		delete(srv.listeners, l)
	}
	return true
}

func (srv *ServerBase) newSession(conn net.Conn) *IoSession {
	session := NewIoSession(srv.ctx, srv, conn)
	return session
}

func (srv *ServerBase) serve(session *IoSession) {
	defer func() {
		if r := recover(); r != nil {
			defaultLogger.Errorf("got panic in serve session: error=%v, stack=%v", r, getPanicStack())
			session.Close()
		}
	}()

	if err := session.Open(); err != nil {
		defaultLogger.Warnf("open session failed: remote_addr=%v, error=%v", session.RemoteAddr(), err)
	}
}
