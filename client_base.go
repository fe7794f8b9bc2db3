package aio

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrClientClosed       = errors.New("client closed")
	ErrClientDisconnected = errors.New("client disconnected")
	ErrClientConnected    = errors.New("client already connected")
)

type DialFunc func(addr string) (net.Conn, error)

type ClientConfig struct {
	Io            IoConfig
	AutoReconnect bool
}

func NewClientConfig() *ClientConfig {
	conf := &ClientConfig{}
	conf.Io.normalize()
	return conf
}

type pendingRequest struct {
	Request
	session *IoSession
	errorCh chan error
	replyCh chan Response
}

type ClientBase struct {
	*IoServiceBase
	sync.Mutex
	remoteAddr   string
	conf         *ClientConfig
	handler      IoHandler
	dial         DialFunc
	dialLock     sync.Mutex
	session      *IoSession
	sessionError error
	closed       bool
	pendingLock  sync.Mutex
	pendingMap   map[uint64]*pendingRequest

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func NewClientBase(ctx context.Context, dial DialFunc, conf *ClientConfig) *ClientBase {
	var (
		newctx, cancel = context.WithCancel(ctx)
		ioConf         = &IoConfig{}
	)

	*ioConf = conf.Io

	c := &ClientBase{
		IoServiceBase: NewIoServiceBase(ioConf),
		conf:          conf,
		dial:          dial,
		handler:       &IoHandlerAdapter{},
		pendingMap:    make(map[uint64]*pendingRequest),
		ctx:           newctx,
		cancel:        cancel,
	}
	c.IoServiceBase.SetIoHandler(c)

	return c
}

func (c *ClientBase) SetIoHandler(h IoHandler) {
	if h == nil {
		h = &IoHandlerAdapter{}
	}
	c.handler = h
}

// Dial connects to addr. Failures are reported as *DialError and leave the
// client without a session. Dialing the current address while connected is
// a no-op; any other address needs a Disconnect first.
func (c *ClientBase) Dial(addr string) (err error) {
	if c.dial == nil {
		panic("no dial func defined")
	}

	c.Lock()
	if c.session != nil && c.session.IsConnected() {
		cur := c.remoteAddr
		c.Unlock()

		if cur == addr {
			return nil
		}
		return errors.Wrapf(ErrClientConnected, "connected to %s", cur)
	}
	c.remoteAddr = addr
	c.Unlock()
	return c.ensureConnected(true)
}

func (c *ClientBase) Close() {
	c.closeOnce.Do(func() {
		c.Lock()
		c.closed = true
		c.Unlock()

		session := c.GetSession()
		if session != nil {
			session.Close()
		}

		c.cancel()
	})
}

func (c *ClientBase) Read() error {
	if err := c.checkSession(); err != nil {
		return err
	}
	return c.GetSession().Read()
}

func (c *ClientBase) Write(msg Message) error {
	if err := c.checkSession(); err != nil {
		return err
	}
	return c.GetSession().Write(msg)
}

func (c *ClientBase) WriteAndClose(msg Message) error {
	if err := c.checkSession(); err != nil {
		return err
	}
	return c.GetSession().WriteAndClose(msg)
}

func (c *ClientBase) Send(ctx context.Context, msg Message) error {
	return c.SendWithTimeout(ctx, msg, 0)
}

func (c *ClientBase) SendWithTimeout(ctx context.Context, msg Message, timeout time.Duration) (err error) {
	if err = c.checkSession(); err != nil {
		return
	}

	return c.GetSession().SendWithTimeout(ctx, msg, timeout)
}

func (c *ClientBase) Call(ctx context.Context, req Request) (Response, error) {
	return c.CallWithTimeout(ctx, req, 0)
}

// CallWithTimeout sends req and waits for the Response carrying the same
// id. The timeout, when non-zero, covers both sending and waiting.
func (c *ClientBase) CallWithTimeout(ctx context.Context, req Request, timeout time.Duration) (resp Response, err error) {
	if err = c.checkSession(); err != nil {
		return
	}

	session := c.GetSession()
	pendingReq := &pendingRequest{
		Request: req,
		session: session,
		replyCh: make(chan Response, 1),
		errorCh: make(chan error, 1),
	}

	c.pendingLock.Lock()
	c.pendingMap[req.Id()] = pendingReq
	c.pendingLock.Unlock()

	tBegin := time.Now()

	if err = session.SendWithTimeout(ctx, req, timeout); err != nil {
		c.removePending(req.Id())
		return
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		wait := timeout - time.Since(tBegin)
		if wait <= 0 {
			c.removePending(req.Id())
			return nil, ErrTimeout
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-c.ctx.Done():
		c.removePending(req.Id())
		return nil, ErrClientClosed
	case <-ctx.Done():
		c.removePending(req.Id())
		return nil, ctx.Err()
	case resp = <-pendingReq.replyCh:
	case err = <-pendingReq.errorCh:
	case <-timeoutCh:
		c.removePending(req.Id())
		err = ErrTimeout
	}
	return
}

func (c *ClientBase) GetSession() (session *IoSession) {
	c.Lock()
	session = c.session
	c.Unlock()
	return
}

// Disconnect drops the current connection but keeps the client usable
// when AutoReconnect is set.
func (c *ClientBase) Disconnect() {
	session := c.GetSession()
	if session == nil {
		return
	}
	c.OnError(session, ErrClientDisconnected)
	session.Close()
}

func (c *ClientBase) IsConnected() bool {
	session := c.GetSession()
	return session != nil && session.IsConnected()
}

func (c *ClientBase) IsClosed() (closed bool) {
	c.Lock()
	closed = c.closed
	c.Unlock()
	return
}

func (c *ClientBase) Register(s *IoSession) error {
	if c.IsClosed() {
		return ErrClientClosed
	}
	return c.IoServiceBase.Register(s)
}

func (c *ClientBase) OnConnected(session *IoSession) error {
	return c.handler.OnConnected(session)
}

func (c *ClientBase) OnDisconnected(session *IoSession) {
	c.settlePendingRequests(session)
	c.handler.OnDisconnected(session)
}

func (c *ClientBase) OnIdle(session *IoSession) error {
	return c.handler.OnIdle(session)
}

func (c *ClientBase) OnError(session *IoSession, err error) {
	c.Lock()
	if c.session == session {
		c.sessionError = err
	}
	c.Unlock()

	c.handler.OnError(session, err)
}

func (c *ClientBase) OnMessage(session *IoSession, msg Message) error {
	if resp, ok := msg.(Response); ok {
		c.pendingLock.Lock()
		req, exists := c.pendingMap[resp.Id()]
		delete(c.pendingMap, resp.Id())
		c.pendingLock.Unlock()

		if exists {
			req.replyCh <- resp
			return nil
		}
	}

	return c.handler.OnMessage(session, msg)
}

func (c *ClientBase) checkSession() error {
	if c.IsClosed() {
		return ErrClientClosed
	}
	return c.ensureConnected(false)
}

func (c *ClientBase) ensureConnected(force bool) (err error) {
	var (
		conn    net.Conn
		session *IoSession
	)

	if c.IsConnected() {
		return
	}

	if !force && !c.conf.AutoReconnect {
		return ErrClientDisconnected
	}

	c.dialLock.Lock()
	defer c.dialLock.Unlock()

	if c.IsConnected() {
		return
	}

	c.Lock()
	addr := c.remoteAddr
	c.Unlock()

	if addr == "" {
		return ErrClientDisconnected
	}

	if conn, err = c.dial(addr); err != nil {
		return &DialError{Addr: addr, Err: err}
	}

	session = NewIoSession(c.ctx, c, conn)

	c.Lock()
	c.session = session
	c.sessionError = nil
	c.Unlock()

	return session.Open()
}

func (c *ClientBase) removePending(id uint64) {
	c.pendingLock.Lock()
	delete(c.pendingMap, id)
	c.pendingLock.Unlock()
}

// settlePendingRequests fails the calls still waiting on session. Calls
// made on a newer session after a reconnect are left alone.
func (c *ClientBase) settlePendingRequests(session *IoSession) {
	var (
		settled []*pendingRequest
		err     error
	)

	c.pendingLock.Lock()
	for id, req := range c.pendingMap {
		if req.session == session {
			settled = append(settled, req)
			delete(c.pendingMap, id)
		}
	}
	c.pendingLock.Unlock()

	c.Lock()
	if c.session == session {
		err = c.sessionError
	}
	c.Unlock()

	if err == nil {
		err = ErrClientDisconnected
		if c.IsClosed() {
			err = ErrClientClosed
		}
	}

	for _, req := range settled {
		req.errorCh <- err
	}
}
