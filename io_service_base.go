package aio

import "sync/atomic"

type IoServiceBase struct {
	nextSessionId uint64
	conf          *IoConfig
	protocol      Protocol
	handler       IoHandler
	sessions      *sessionRegistry
}

func NewIoServiceBase(conf *IoConfig) *IoServiceBase {
	if conf == nil {
		conf = &IoConfig{}
	}
	conf.normalize()

	return &IoServiceBase{
		conf:     conf,
		handler:  &IoHandlerAdapter{},
		sessions: newSessionRegistry(),
	}
}

func (srv *IoServiceBase) SetIoHandler(h IoHandler) {
	if h == nil {
		h = &IoHandlerAdapter{}
	}
	srv.handler = h
}

func (srv *IoServiceBase) Protocol() Protocol {
	return srv.protocol
}

func (srv *IoServiceBase) SetProtocol(p Protocol) {
	srv.protocol = p
}

func (srv *IoServiceBase) IoHandler() IoHandler {
	return srv.handler
}

func (srv *IoServiceBase) IoConfig() *IoConfig {
	return srv.conf
}

func (srv *IoServiceBase) Register(s *IoSession) error {
	srv.sessions.Add(s)
	return nil
}

func (srv *IoServiceBase) Unregister(s *IoSession) {
	srv.sessions.Remove(s)
}

func (srv *IoServiceBase) NextSessionId() uint64 {
	return atomic.AddUint64(&srv.nextSessionId, 1)
}

func (srv *IoServiceBase) SessionCount() int {
	return srv.sessions.Len()
}

func (srv *IoServiceBase) GetSession(id uint64) *IoSession {
	return srv.sessions.Get(id)
}

// RangeSessions calls fn for every live session until fn returns false.
func (srv *IoServiceBase) RangeSessions(fn func(*IoSession) bool) {
	for _, s := range srv.sessions.Snapshot() {
		if !fn(s) {
			return
		}
	}
}

// Broadcast queues m on every live session without blocking and returns
// how many sessions accepted it.
func (srv *IoServiceBase) Broadcast(m Message) (n int) {
	for _, s := range srv.sessions.Snapshot() {
		if err := s.Write(m); err == nil {
			n++
		}
	}
	return
}
