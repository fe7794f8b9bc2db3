package aio

type IoHandlerAdapter struct {
}

func (h *IoHandlerAdapter) OnConnected(*IoSession) error {
	return nil
}

func (h *IoHandlerAdapter) OnDisconnected(*IoSession) {
}

func (h *IoHandlerAdapter) OnIdle(*IoSession) error {
	return nil
}

func (h *IoHandlerAdapter) OnError(*IoSession, error) {
}

func (h *IoHandlerAdapter) OnMessage(*IoSession, Message) error {
	return nil
}

// IoHandlerFuncs builds an IoHandler from plain functions. Nil fields are
// no-ops.
type IoHandlerFuncs struct {
	Connected    func(*IoSession) error
	Disconnected func(*IoSession)
	Idle         func(*IoSession) error
	Error        func(*IoSession, error)
	Message      func(*IoSession, Message) error
}

func (h *IoHandlerFuncs) OnConnected(s *IoSession) error {
	if h.Connected == nil {
		return nil
	}
	return h.Connected(s)
}

func (h *IoHandlerFuncs) OnDisconnected(s *IoSession) {
	if h.Disconnected != nil {
		h.Disconnected(s)
	}
}

func (h *IoHandlerFuncs) OnIdle(s *IoSession) error {
	if h.Idle == nil {
		return nil
	}
	return h.Idle(s)
}

func (h *IoHandlerFuncs) OnError(s *IoSession, err error) {
	if h.Error != nil {
		h.Error(s, err)
	}
}

func (h *IoHandlerFuncs) OnMessage(s *IoSession, m Message) error {
	if h.Message == nil {
		return nil
	}
	return h.Message(s, m)
}
