package aio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrSessionClosing = errors.New("session closing")
	ErrSessionNotOpen = errors.New("session not open")
	ErrWouldBlock     = errors.New("send queue full")
	ErrPeerDead       = errors.New("peer dead")
	ErrTimeout        = errors.New("timeout")
)

// outbound is one entry of the send queue.
type outbound struct {
	m          Message
	raw        []byte
	hasMsg     bool
	closeAfter bool
}

type IoSession struct {
	id        uint64
	srv       IoService
	conf      *IoConfig
	handler   IoHandler
	protocol  Protocol
	conn      *Conn
	log       Logger
	attrs     map[interface{}]interface{}
	attrsLock sync.RWMutex

	rbuf      *ioBuffer
	wbuf      *bytes.Buffer
	readReady chan struct{}
	sendQ     chan outbound
	sendLock  sync.RWMutex
	recvQ     chan Message

	idleCount     uint32
	readMsgCount  uint32
	writeMsgCount uint32

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	state      uint32
	registered uint32
	done       chan struct{}
}

func NewIoSession(ctx context.Context, srv IoService, conn net.Conn) *IoSession {
	var (
		id             = srv.NextSessionId()
		newctx, cancel = context.WithCancel(ctx)
		conf           = *srv.IoConfig()
	)
	conf.normalize()

	handler := srv.IoHandler()
	if handler == nil {
		handler = &IoHandlerAdapter{}
	}

	s := &IoSession{
		id:        id,
		srv:       srv,
		handler:   handler,
		conf:      &conf,
		protocol:  srv.Protocol(),
		conn:      newConn(conn, &conf),
		attrs:     make(map[interface{}]interface{}),
		rbuf:      newIoBuffer(conf.ReadBufferSize, conf.MaxReadBufferSize),
		wbuf:      bytes.NewBuffer(make([]byte, 0, conf.WriteBufferSize)),
		readReady: make(chan struct{}, 1),
		sendQ:     make(chan outbound, conf.SendQueueSize),
		recvQ:     make(chan Message, conf.RecvQueueSize),
		ctx:       newctx,
		cancel:    cancel,
		state:     uint32(StateConnecting),
		done:      make(chan struct{}),
	}
	s.log = withFields(defaultLogger, logrus.Fields{
		"session_id":  id,
		"remote_addr": addrString(conn.RemoteAddr()),
	})

	return s
}

func (s *IoSession) Id() uint64 {
	return s.id
}

func (s *IoSession) IoService() IoService {
	return s.srv
}

func (s *IoSession) Context() context.Context {
	return s.ctx
}

func (s *IoSession) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *IoSession) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *IoSession) GetAttr(key interface{}) (v interface{}) {
	s.attrsLock.RLock()
	v = s.attrs[key]
	s.attrsLock.RUnlock()
	return
}

func (s *IoSession) SetAttr(key, value interface{}) {
	s.attrsLock.Lock()
	s.attrs[key] = value
	s.attrsLock.Unlock()
}

func (s *IoSession) RemoveAttr(key interface{}) {
	s.attrsLock.Lock()
	delete(s.attrs, key)
	s.attrsLock.Unlock()
}

// Open registers the session with its service, starts the read, write and
// handle loops, and issues the first read. OnConnected runs on the handle
// loop before any message is delivered.
func (s *IoSession) Open() error {
	if !s.casState(StateConnecting, StateConnected) {
		return ErrSessionClosed
	}

	if err := s.srv.Register(s); err != nil {
		s.setState(StateClosed)
		s.cancel()
		s.conn.Close()
		close(s.done)
		return err
	}
	atomic.StoreUint32(&s.registered, 1)

	s.wg.Add(3)
	go s.handleLoop()
	go s.readLoop()
	go s.writeLoop()
	return nil
}

// Close releases the connection and cancels pending I/O. It returns at
// once; OnDisconnected is called after all loops have exited. Calling Close
// more than once is safe.
func (s *IoSession) Close() {
	for {
		st := s.State()
		if st == StateClosed {
			return
		}
		if s.casState(st, StateClosed) {
			break
		}
	}

	s.cancel()
	s.conn.Close()

	go func() {
		s.wg.Wait()

		if atomic.LoadUint32(&s.registered) == 1 {
			s.handler.OnDisconnected(s)
			s.srv.Unregister(s)
		}
		s.log.Debugf("session closed: %v", s)
		close(s.done)
	}()
}

// Done is closed once the session has fully shut down.
func (s *IoSession) Done() <-chan struct{} {
	return s.done
}

func (s *IoSession) State() State {
	return State(atomic.LoadUint32(&s.state))
}

func (s *IoSession) IsConnected() bool {
	return s.State() == StateConnected
}

func (s *IoSession) IsClosed() bool {
	return s.State() == StateClosed
}

// Read arms one read from the connection. Sessions re-arm themselves
// unless IoConfig.ManualRead is set, in which case the handler calls Read
// once it wants more messages. Read never blocks and at most one read is
// armed at a time.
func (s *IoSession) Read() error {
	if s.IsClosed() {
		return ErrSessionClosed
	}

	select {
	case s.readReady <- struct{}{}:
	default:
	}
	return nil
}

// Write queues m to be encoded and written. It never blocks: a full send
// queue yields ErrWouldBlock. Without a protocol only []byte is accepted
// and written as is.
func (s *IoSession) Write(m Message) error {
	if s.protocol == nil {
		if b, ok := m.([]byte); ok {
			return s.WriteRaw(b)
		}
		return ErrNoProtocol
	}
	return s.enqueue(nil, outbound{m: m, hasMsg: true}, 0, false)
}

// WriteRaw queues bytes that are already in wire format.
func (s *IoSession) WriteRaw(b []byte) error {
	return s.enqueue(nil, outbound{raw: b}, 0, false)
}

func (s *IoSession) Send(ctx context.Context, m Message) error {
	return s.SendWithTimeout(ctx, m, 0)
}

// SendWithTimeout queues m, waiting for room in the send queue until ctx
// is done, the timeout elapses or the session closes.
func (s *IoSession) SendWithTimeout(ctx context.Context, m Message, timeout time.Duration) error {
	if s.protocol == nil {
		if _, ok := m.([]byte); !ok {
			return ErrNoProtocol
		}
		return s.enqueue(ctx, outbound{raw: m.([]byte)}, timeout, true)
	}
	return s.enqueue(ctx, outbound{m: m, hasMsg: true}, timeout, true)
}

// WriteAndClose queues m, stops accepting further writes and closes the
// session once everything queued so far is on the wire. A nil m only
// flushes. It waits for room in the send queue.
func (s *IoSession) WriteAndClose(m Message) error {
	o := outbound{closeAfter: true}
	if m != nil {
		if s.protocol == nil {
			b, ok := m.([]byte)
			if !ok {
				return ErrNoProtocol
			}
			o.raw = b
		} else {
			o.m, o.hasMsg = m, true
		}
	}

	s.sendLock.Lock()
	defer s.sendLock.Unlock()

	switch s.State() {
	case StateConnecting:
		return ErrSessionNotOpen
	case StateClosed:
		return ErrSessionClosed
	case StateClosing:
		return ErrSessionClosing
	}
	if !s.casState(StateConnected, StateClosing) {
		return ErrSessionClosed
	}

	select {
	case <-s.ctx.Done():
		return ErrSessionClosed
	case s.sendQ <- o:
	}
	return nil
}

func (s *IoSession) enqueue(ctx context.Context, o outbound, timeout time.Duration, wait bool) error {
	s.sendLock.RLock()
	defer s.sendLock.RUnlock()

	switch s.State() {
	case StateClosed:
		return ErrSessionClosed
	case StateClosing:
		return ErrSessionClosing
	}

	if !wait {
		select {
		case <-s.ctx.Done():
			return ErrSessionClosed
		case s.sendQ <- o:
			return nil
		default:
			return ErrWouldBlock
		}
	}

	if timeout == 0 {
		select {
		case <-s.ctx.Done():
			return ErrSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		case s.sendQ <- o:
		}
	} else {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-s.ctx.Done():
			return ErrSessionClosed
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return ErrTimeout
		case s.sendQ <- o:
		}
	}

	return nil
}

func (s *IoSession) GetIdleCount() uint32 {
	return atomic.LoadUint32(&s.idleCount)
}

type SessionStats struct {
	BytesIn   uint64
	BytesOut  uint64
	MsgsIn    uint32
	MsgsOut   uint32
	IdleCount uint32
}

func (s *IoSession) Stats() SessionStats {
	return SessionStats{
		BytesIn:   s.conn.GetReadBytes(),
		BytesOut:  s.conn.GetWriteBytes(),
		MsgsIn:    atomic.LoadUint32(&s.readMsgCount),
		MsgsOut:   atomic.LoadUint32(&s.writeMsgCount),
		IdleCount: atomic.LoadUint32(&s.idleCount),
	}
}

func (s *IoSession) String() string {
	return fmt.Sprintf("session %d, State: %v, Read Byte Count: %d, Write Byte Count: %d, Read Msg Count: %d, Write Msg Count: %d",
		s.id,
		s.State(),
		s.conn.GetReadBytes(),
		s.conn.GetWriteBytes(),
		atomic.LoadUint32(&s.readMsgCount),
		atomic.LoadUint32(&s.writeMsgCount),
	)
}

func (s *IoSession) setState(st State) {
	atomic.StoreUint32(&s.state, uint32(st))
}

func (s *IoSession) casState(from, to State) bool {
	return atomic.CompareAndSwapUint32(&s.state, uint32(from), uint32(to))
}

func (s *IoSession) handleLoop() {
	var (
		m       Message
		ok      bool
		drained bool
		err     error
	)

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("got panic in handle loop: error=%v, stack=%v", r, getPanicStack())
		}

		if err != nil {
			s.log.Warnf("handle loop: %v", err)
			s.handler.OnError(s, err)
		}

		s.wg.Done()

		if drained && err == nil {
			s.shutdown()
			return
		}
		s.Close()
	}()

	if err = s.handler.OnConnected(s); err != nil {
		err = errors.Wrap(err, "on connected")
		return
	}

	for {
		select {
		case <-s.ctx.Done():
			return

		case m, ok = <-s.recvQ:
			if !ok {
				drained = true
				return
			}
			if err = s.handler.OnMessage(s, m); err != nil {
				err = errors.Wrap(err, "on message")
				return
			}
		}
	}
}

// shutdown closes the session once the peer has finished sending and every
// message it sent was handled. Queued writes are flushed first.
func (s *IoSession) shutdown() {
	switch err := s.WriteAndClose(nil); err {
	case nil, ErrSessionClosing:
	default:
		s.Close()
	}
}

// readLoop closes recvQ when it exits. On end of stream it leaves the
// session open so the handle loop can drain what was already decoded.
func (s *IoSession) readLoop() {
	var (
		armed     = true
		delivered int
		err       error
	)

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("got panic in read loop: error=%v, stack=%v", r, getPanicStack())
		}
		close(s.recvQ)

		eof := err != nil && errors.Cause(err) == io.EOF
		if !s.IsClosed() && err != nil && !eof {
			s.log.Warnf("read loop: %v", err)
			s.handler.OnError(s, err)
		}

		s.wg.Done()
		if !eof {
			s.Close()
		}
	}()

	for {
		if !armed {
			select {
			case <-s.ctx.Done():
				return
			case <-s.readReady:
			}
		}

		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if delivered, err = s.readOnce(); err != nil {
			return
		}

		// an incomplete residue always needs more bytes
		armed = !s.conf.ManualRead || delivered == 0
	}
}

// readOnce performs one wire read and decodes everything it completed.
func (s *IoSession) readOnce() (delivered int, err error) {
	var (
		buf  []byte
		n    int
		rerr error
	)

	if buf, err = s.rbuf.Free(); err != nil {
		return 0, &DecodeError{Err: err}
	}

	n, rerr = s.conn.Read(buf)
	if n > 0 {
		s.rbuf.Commit(n)
		atomic.StoreUint32(&s.idleCount, 0)

		if delivered, err = s.decode(); err != nil {
			return
		}
	}

	if rerr != nil {
		var ne net.Error
		if errors.As(rerr, &ne) && ne.Timeout() && !s.IsClosed() {
			atomic.AddUint32(&s.idleCount, 1)

			if err = s.handler.OnIdle(s); err != nil {
				return delivered, errors.Wrap(err, "on idle")
			}
			return delivered, nil
		}
		return delivered, rerr
	}
	return
}

func (s *IoSession) decode() (delivered int, err error) {
	if s.protocol == nil {
		data := make([]byte, s.rbuf.Len())
		copy(data, s.rbuf.Bytes())
		s.rbuf.Consume(len(data))
		return 1, s.deliver(data)
	}

	for s.rbuf.Len() > 0 {
		var (
			residue = s.rbuf.Bytes()
			m       Message
			n       int
		)

		if m, n, err = s.protocol.Decode(s, residue); err != nil {
			return delivered, &DecodeError{Err: err}
		}

		switch {
		case n == 0 && m != nil:
			return delivered, &DecodeError{Err: ErrNoProgress}
		case n == 0:
			return delivered, nil
		case n < 0 || n > len(residue):
			return delivered, &DecodeError{Err: errors.Errorf("decoder consumed %d of %d bytes", n, len(residue))}
		}

		s.rbuf.Consume(n)
		if err = s.deliver(m); err != nil {
			return
		}
		delivered++
	}
	return
}

func (s *IoSession) deliver(m Message) error {
	select {
	case <-s.ctx.Done():
		return ErrSessionClosed
	case s.recvQ <- m:
	}
	atomic.AddUint32(&s.readMsgCount, 1)
	return nil
}

func (s *IoSession) writeLoop() {
	var (
		o   outbound
		err error
	)

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("got panic in write loop: error=%v, stack=%v", r, getPanicStack())
		}

		if !s.IsClosed() && err != nil {
			s.log.Warnf("write loop: %v", err)
			s.handler.OnError(s, err)
		}

		s.wg.Done()
		s.Close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case o = <-s.sendQ:
			if o, err = s.flush(o); err != nil {
				return
			}
			if o.closeAfter {
				return
			}
		}
	}
}

// flush writes o together with whatever is already queued behind it, up to
// WriteBufferSize bytes, in a single write. It returns the last entry
// written.
func (s *IoSession) flush(o outbound) (last outbound, err error) {
	var count uint32

	s.wbuf.Reset()
	for {
		if err = s.encode(o); err != nil {
			return o, err
		}
		if o.hasMsg || o.raw != nil {
			count++
		}
		last = o

		if o.closeAfter || s.wbuf.Len() >= s.conf.WriteBufferSize {
			break
		}

		select {
		case o = <-s.sendQ:
			continue
		default:
		}
		break
	}

	if s.wbuf.Len() > 0 {
		if _, err = s.conn.Write(s.wbuf.Bytes()); err != nil {
			return
		}
	}
	atomic.AddUint32(&s.writeMsgCount, count)

	if s.wbuf.Cap() > 4*s.conf.WriteBufferSize {
		s.wbuf = bytes.NewBuffer(make([]byte, 0, s.conf.WriteBufferSize))
	}
	return
}

func (s *IoSession) encode(o outbound) error {
	switch {
	case o.raw != nil:
		s.wbuf.Write(o.raw)
	case o.hasMsg:
		if s.protocol == nil {
			return ErrNoProtocol
		}
		if err := s.protocol.Encode(s, s.wbuf, o.m); err != nil {
			return errors.Wrap(err, "encode")
		}
	}
	return nil
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
