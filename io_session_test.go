package aio

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipeSession(t *testing.T, p Protocol, h IoHandler, conf *IoConfig) (*IoSession, net.Conn, *IoServiceBase) {
	srv := NewIoServiceBase(conf)
	srv.SetProtocol(p)
	srv.SetIoHandler(h)

	local, peer := net.Pipe()
	s := NewIoSession(context.Background(), srv, local)
	require.NoError(t, s.Open())

	t.Cleanup(func() {
		s.Close()
		peer.Close()
	})
	return s, peer, srv
}

func TestSessionWaitsForFullFrame(t *testing.T) {
	h := newTestHandler()
	_, peer, _ := newPipeSession(t, &frameProtocol{}, h, nil)

	_, err := peer.Write([]byte{0, 0, 0})
	require.NoError(t, err)
	noMessage(t, h.msgs, 50*time.Millisecond)

	_, err = peer.Write([]byte{4, 'P', 'I', 'N', 'G'})
	require.NoError(t, err)
	assert.Equal(t, []byte("PING"), waitMessage(t, h.msgs))
}

func TestSessionByteAtATime(t *testing.T) {
	h := newTestHandler()
	_, peer, _ := newPipeSession(t, &frameProtocol{}, h, nil)

	var stream bytes.Buffer
	for i := 0; i < 5; i++ {
		stream.Write(frame("msg" + strconv.Itoa(i)))
	}
	stream.Write(frame(""))

	for _, b := range stream.Bytes() {
		_, err := peer.Write([]byte{b})
		require.NoError(t, err)
	}

	for i := 0; i < 5; i++ {
		assert.Equal(t, []byte("msg"+strconv.Itoa(i)), waitMessage(t, h.msgs))
	}
	assert.Equal(t, []byte{}, waitMessage(t, h.msgs))
}

func TestSessionManyFramesInOneRead(t *testing.T) {
	h := newTestHandler()
	_, peer, _ := newPipeSession(t, &frameProtocol{}, h, nil)

	var stream bytes.Buffer
	for i := 0; i < 20; i++ {
		stream.Write(frame(strconv.Itoa(i)))
	}
	_, err := peer.Write(stream.Bytes())
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		assert.Equal(t, []byte(strconv.Itoa(i)), waitMessage(t, h.msgs))
	}
}

func TestSessionGrowsForLargeFrame(t *testing.T) {
	h := newTestHandler()
	_, peer, _ := newPipeSession(t, &frameProtocol{}, h, &IoConfig{ReadBufferSize: 16, MaxReadBufferSize: 1024})

	big := string(bytes.Repeat([]byte{'x'}, 600))
	go peer.Write(frame(big))

	assert.Equal(t, []byte(big), waitMessage(t, h.msgs))
}

func TestSessionWriteOrder(t *testing.T) {
	s, peer, _ := newPipeSession(t, &frameProtocol{}, newTestHandler(), nil)

	const count = 100
	go func() {
		for i := 0; i < count; i++ {
			if err := s.Send(context.Background(), strconv.Itoa(i)); err != nil {
				return
			}
		}
	}()

	for i := 0; i < count; i++ {
		require.Equal(t, strconv.Itoa(i), readFrame(t, peer))
	}
	assert.Eventually(t, func() bool {
		return s.Stats().MsgsOut == count
	}, waitTimeout, 10*time.Millisecond)
}

func TestSessionWriteWouldBlock(t *testing.T) {
	s, _, _ := newPipeSession(t, &frameProtocol{}, newTestHandler(), &IoConfig{SendQueueSize: 1})

	// nobody reads the peer, so the write loop stalls after one entry
	var err error
	for i := 0; i < 10 && err == nil; i++ {
		err = s.Write("x")
	}
	assert.Equal(t, ErrWouldBlock, err)

	err = s.SendWithTimeout(context.Background(), "x", 20*time.Millisecond)
	assert.Equal(t, ErrTimeout, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, s.Send(ctx, "x"))
}

func TestSessionConnectedRunsFirst(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(ev string) {
		mu.Lock()
		order = append(order, ev)
		mu.Unlock()
	}

	h := newTestHandler()
	h.Connected = func(s *IoSession) error {
		record("connected")
		return s.Write("hello")
	}
	h.Message = func(_ *IoSession, m Message) error {
		record("message")
		h.msgs <- m
		return nil
	}
	_, peer, _ := newPipeSession(t, &frameProtocol{}, h, nil)

	go peer.Write(frame("first"))
	assert.Equal(t, "hello", readFrame(t, peer))
	waitMessage(t, h.msgs)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"connected", "message"}, order)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	h := newTestHandler()
	s, peer, srv := newPipeSession(t, &frameProtocol{}, h, nil)
	assert.Equal(t, 1, srv.SessionCount())
	assert.Same(t, s, srv.GetSession(s.Id()))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	peer.Close()
	wg.Wait()

	waitDone(t, s)
	s.Close()

	assert.True(t, s.IsClosed())
	assert.Equal(t, int32(1), h.disconnects())
	assert.Equal(t, 0, srv.SessionCount())
	assert.Equal(t, ErrSessionClosed, s.Write("late"))
	assert.Equal(t, ErrSessionClosed, s.Read())
	assert.Equal(t, ErrSessionClosed, s.WriteAndClose("late"))
	assert.Equal(t, ErrSessionClosed, s.Open())
}

func TestSessionPeerCloseDisconnects(t *testing.T) {
	h := newTestHandler()
	s, peer, _ := newPipeSession(t, &frameProtocol{}, h, nil)

	peer.Close()
	waitDone(t, s)

	assert.Equal(t, int32(1), h.disconnects())
	select {
	case err := <-h.errs:
		assert.Fail(t, "end of stream reported as error", "%v", err)
	default:
	}
}

func TestSessionWriteAndClose(t *testing.T) {
	h := newTestHandler()
	s, peer, _ := newPipeSession(t, &frameProtocol{}, h, nil)

	require.NoError(t, s.Write("first"))
	require.NoError(t, s.WriteAndClose("last"))

	err := s.Write("too late")
	assert.True(t, err == ErrSessionClosing || err == ErrSessionClosed, "%v", err)
	err = s.WriteAndClose("again")
	assert.True(t, err == ErrSessionClosing || err == ErrSessionClosed, "%v", err)

	assert.Equal(t, "first", readFrame(t, peer))
	assert.Equal(t, "last", readFrame(t, peer))
	expectEOF(t, peer)

	waitDone(t, s)
	assert.Equal(t, int32(1), h.disconnects())
}

func TestSessionDecodeErrorCloses(t *testing.T) {
	h := newTestHandler()
	s, peer, _ := newPipeSession(t, &frameProtocol{max: 8}, h, nil)

	go peer.Write([]byte{0, 0, 1, 0})

	err := waitError(t, h.errs)
	assert.True(t, IsDecodeError(err), "%v", err)
	assert.True(t, errors.Is(err, ErrMessageTooLarge))
	waitDone(t, s)
	assert.Equal(t, int32(1), h.disconnects())
}

type stuckProtocol struct {
	frameProtocol
}

func (p *stuckProtocol) Decode(_ *IoSession, buf []byte) (Message, int, error) {
	return "never consumed", 0, nil
}

func TestSessionDecoderWithoutProgress(t *testing.T) {
	h := newTestHandler()
	s, peer, _ := newPipeSession(t, &stuckProtocol{}, h, nil)

	go peer.Write([]byte("abc"))

	err := waitError(t, h.errs)
	assert.True(t, errors.Is(err, ErrNoProgress), "%v", err)
	waitDone(t, s)
}

func TestSessionBufferOverflowCloses(t *testing.T) {
	h := newTestHandler()
	s, peer, _ := newPipeSession(t, &frameProtocol{}, h, &IoConfig{ReadBufferSize: 8, MaxReadBufferSize: 16})

	go peer.Write(frame(string(bytes.Repeat([]byte{'y'}, 100))))

	err := waitError(t, h.errs)
	assert.True(t, IsDecodeError(err), "%v", err)
	assert.True(t, errors.Is(err, ErrBufferOverflow))
	waitDone(t, s)
}

func TestSessionHandlerErrorCloses(t *testing.T) {
	errBoom := errors.New("boom")

	h := newTestHandler()
	h.Message = func(*IoSession, Message) error {
		return errBoom
	}
	s, peer, _ := newPipeSession(t, &frameProtocol{}, h, nil)

	go peer.Write(frame("x"))

	err := waitError(t, h.errs)
	assert.Equal(t, errBoom, errors.Cause(err))
	waitDone(t, s)
	assert.Equal(t, int32(1), h.disconnects())
}

func TestSessionHandlerPanicCloses(t *testing.T) {
	h := newTestHandler()
	h.Message = func(*IoSession, Message) error {
		panic("handler exploded")
	}
	s, peer, _ := newPipeSession(t, &frameProtocol{}, h, nil)

	go peer.Write(frame("x"))

	err := waitError(t, h.errs)
	assert.Contains(t, err.Error(), "handler exploded")
	waitDone(t, s)
}

func TestSessionConnectedErrorCloses(t *testing.T) {
	h := newTestHandler()
	h.Connected = func(*IoSession) error {
		return errors.New("not welcome")
	}
	s, _, _ := newPipeSession(t, &frameProtocol{}, h, nil)

	err := waitError(t, h.errs)
	assert.Contains(t, err.Error(), "not welcome")
	waitDone(t, s)
	assert.Equal(t, int32(1), h.disconnects())
}

func TestSessionManualRead(t *testing.T) {
	h := newTestHandler()
	s, peer, _ := newPipeSession(t, &frameProtocol{}, h, &IoConfig{ManualRead: true})

	_, err := peer.Write(append(frame("a"), frame("b")...))
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), waitMessage(t, h.msgs))
	assert.Equal(t, []byte("b"), waitMessage(t, h.msgs))

	go peer.Write(frame("c"))
	noMessage(t, h.msgs, 100*time.Millisecond)

	require.NoError(t, s.Read())
	require.NoError(t, s.Read())
	assert.Equal(t, []byte("c"), waitMessage(t, h.msgs))
}

func TestSessionManualReadKeepsReadingPartialFrame(t *testing.T) {
	h := newTestHandler()
	_, peer, _ := newPipeSession(t, &frameProtocol{}, h, &IoConfig{ManualRead: true})

	_, err := peer.Write([]byte{0, 0})
	require.NoError(t, err)
	_, err = peer.Write([]byte{0, 1, 'z'})
	require.NoError(t, err)

	assert.Equal(t, []byte("z"), waitMessage(t, h.msgs))
}

func TestSessionRawMode(t *testing.T) {
	h := newTestHandler()
	s, peer, _ := newPipeSession(t, nil, h, nil)

	go peer.Write([]byte("abc"))
	assert.Equal(t, []byte("abc"), waitMessage(t, h.msgs))

	require.NoError(t, s.Write([]byte("xyz")))
	buf := make([]byte, 3)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(waitTimeout)))
	_, err := peer.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "xyz", string(buf))

	assert.Equal(t, ErrNoProtocol, s.Write("string"))
	assert.Equal(t, ErrNoProtocol, s.Send(context.Background(), 1))
}

func TestSessionIdle(t *testing.T) {
	idle := make(chan uint32, 8)

	h := newTestHandler()
	h.Idle = func(s *IoSession) error {
		n := s.GetIdleCount()
		idle <- n
		if n >= 2 {
			return ErrPeerDead
		}
		return nil
	}
	s, _, _ := newPipeSession(t, &frameProtocol{}, h, &IoConfig{ReadTimeout: 20 * time.Millisecond})

	waitDone(t, s)
	assert.Equal(t, uint32(1), <-idle)
	assert.Equal(t, uint32(2), <-idle)

	err := waitError(t, h.errs)
	assert.Equal(t, ErrPeerDead, errors.Cause(err))
}

func TestSessionAttrs(t *testing.T) {
	s, _, _ := newPipeSession(t, &frameProtocol{}, newTestHandler(), nil)

	s.SetAttr("k", 1)
	assert.Equal(t, 1, s.GetAttr("k"))
	s.RemoveAttr("k")
	assert.Nil(t, s.GetAttr("k"))
	assert.Equal(t, StateConnected, s.State())
	assert.Contains(t, s.String(), "session")
}

func TestSessionPeerCloseDrainsDecoded(t *testing.T) {
	h := newTestHandler()
	h.Message = func(_ *IoSession, m Message) error {
		time.Sleep(time.Millisecond)
		h.msgs <- m
		return nil
	}
	s, peer, _ := newPipeSession(t, &frameProtocol{}, h, &IoConfig{RecvQueueSize: 2})

	var stream bytes.Buffer
	for i := 0; i < 10; i++ {
		stream.Write(frame(strconv.Itoa(i)))
	}
	_, err := peer.Write(stream.Bytes())
	require.NoError(t, err)
	peer.Close()

	for i := 0; i < 10; i++ {
		assert.Equal(t, []byte(strconv.Itoa(i)), waitMessage(t, h.msgs))
	}
	waitDone(t, s)
	assert.Equal(t, int32(1), h.disconnects())
	assert.Equal(t, uint32(10), s.Stats().MsgsIn)
}

func TestSessionWriteAndCloseBeforeOpen(t *testing.T) {
	srv := NewIoServiceBase(nil)
	srv.SetProtocol(&frameProtocol{})

	local, peer := net.Pipe()
	defer peer.Close()
	defer local.Close()

	s := NewIoSession(context.Background(), srv, local)
	assert.Equal(t, StateConnecting, s.State())
	assert.Equal(t, ErrSessionNotOpen, s.WriteAndClose("early"))
	assert.Equal(t, StateConnecting, s.State())
}
