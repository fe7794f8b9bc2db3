package aio

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var ErrClientPoolClosed = errors.New("client pool closed")

type ClientPoolConfig struct {
	IdleMin int `json:"idle_min"`
	IdleMax int `json:"idle_max"`
	Max     int `json:"max"`
}

type ClientFactory interface {
	NewClient() (Client, error)
}

// TCPClientFactory dials a new TCPClient to Addr for every call.
type TCPClientFactory struct {
	Ctx      context.Context
	Addr     string
	Conf     *TCPClientConfig
	Protocol Protocol
	Handler  IoHandler
}

func (f *TCPClientFactory) NewClient() (Client, error) {
	ctx := f.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	c := NewTCPClient(ctx, f.Conf)
	c.SetProtocol(f.Protocol)
	c.SetIoHandler(f.Handler)

	if err := c.Dial(f.Addr); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// ClientPool keeps up to IdleMax idle clients and hands out at most Max at
// a time. Clients that are closed or disconnected are dropped instead of
// being reused.
type ClientPool struct {
	sync.Mutex
	conf     ClientPoolConfig
	factory  ClientFactory
	num      int
	freeList chan Client
	closed   bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func NewClientPool(ctx context.Context, factory ClientFactory, conf ClientPoolConfig) *ClientPool {
	newctx, cancel := context.WithCancel(ctx)

	if conf.Max <= 0 {
		conf.Max = 1
	}

	if conf.IdleMax < conf.Max {
		conf.IdleMax = conf.Max
	}

	if conf.IdleMin > conf.IdleMax {
		conf.IdleMin = conf.IdleMax
	}

	p := &ClientPool{
		conf:     conf,
		factory:  factory,
		freeList: make(chan Client, conf.IdleMax),
		ctx:      newctx,
		cancel:   cancel,
	}
	return p
}

func (p *ClientPool) Open() error {
	if p.factory == nil {
		panic("client factory not defined")
	}

	for i := 0; i < p.conf.IdleMin; i++ {
		client, err := p.factory.NewClient()
		if err != nil {
			return errors.Wrap(err, "client pool open")
		}

		p.Lock()
		p.num++
		p.Unlock()
		p.freeList <- client
	}

	return nil
}

func (p *ClientPool) Close() {
	p.closeOnce.Do(func() {
		p.Lock()
		p.closed = true
		p.cancel()

		close(p.freeList)
		for c := range p.freeList {
			c.Close()
			p.num--
		}
		p.Unlock()
	})
}

// Get returns a client; closing it gives it back to the pool. When the
// pool cannot provide one, the returned client fails every call.
func (p *ClientPool) Get() Client {
	c, err := p.get()
	if err != nil {
		return &errClient{err}
	}

	return &pooledClient{
		p:      p,
		Client: c,
	}
}

// Num returns how many clients the pool currently owns, idle or in use.
func (p *ClientPool) Num() (n int) {
	p.Lock()
	n = p.num
	p.Unlock()
	return
}

func (p *ClientPool) get() (c Client, err error) {
	for {
		if c, err = p.take(); err != nil || c == nil {
			return
		}
		if !c.IsClosed() && c.IsConnected() {
			return
		}
		p.discard(c)
	}
}

func (p *ClientPool) take() (c Client, err error) {
	var ok bool

	if p.isClosed() {
		return nil, ErrClientPoolClosed
	}

	select {
	case c, ok = <-p.freeList:
		if !ok {
			return nil, ErrClientPoolClosed
		}
		return
	default:
	}

	if p.reserve() {
		if c, err = p.factory.NewClient(); err != nil {
			p.Lock()
			p.num--
			p.Unlock()
		}
		return
	}

	select {
	case <-p.ctx.Done():
		return nil, ErrClientPoolClosed
	case c, ok = <-p.freeList:
		if !ok {
			return nil, ErrClientPoolClosed
		}
	}
	return
}

func (p *ClientPool) put(c Client) {
	p.Lock()
	defer p.Unlock()

	if !p.closed && !c.IsClosed() && c.IsConnected() {
		select {
		case p.freeList <- c:
			return
		default:
		}
	}

	p.num--
	c.Close()
}

func (p *ClientPool) discard(c Client) {
	p.Lock()
	p.num--
	p.Unlock()
	c.Close()
}

func (p *ClientPool) isClosed() (closed bool) {
	p.Lock()
	closed = p.closed
	p.Unlock()
	return
}

// reserve claims a slot for a new client if Max is not reached yet.
func (p *ClientPool) reserve() bool {
	p.Lock()
	defer p.Unlock()

	if p.num >= p.conf.Max {
		return false
	}
	p.num++
	return true
}

type pooledClient struct {
	p *ClientPool
	Client
}

func (pc *pooledClient) Close() {
	c := pc.Client
	if _, ok := c.(*errClient); ok {
		return
	}

	pc.Client = &errClient{ErrClientClosed}
	pc.p.put(c)
}

type errClient struct {
	err error
}

func (c *errClient) Dial(addr string) error                          { return c.err }
func (c *errClient) Close()                                          {}
func (c *errClient) Disconnect()                                     {}
func (c *errClient) SetProtocol(Protocol)                            {}
func (c *errClient) SetIoHandler(IoHandler)                          {}
func (c *errClient) Read() error                                     { return c.err }
func (c *errClient) Write(Message) error                             { return c.err }
func (c *errClient) WriteAndClose(Message) error                     { return c.err }
func (c *errClient) Call(context.Context, Request) (Response, error) { return nil, c.err }
func (c *errClient) CallWithTimeout(context.Context, Request, time.Duration) (Response, error) {
	return nil, c.err
}
func (c *errClient) Send(context.Context, Message) error { return c.err }
func (c *errClient) SendWithTimeout(context.Context, Message, time.Duration) error {
	return c.err
}
func (c *errClient) GetSession() *IoSession { return nil }
func (c *errClient) IsClosed() bool         { return true }
func (c *errClient) IsConnected() bool      { return false }
