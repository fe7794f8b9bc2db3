package aio

// IoHandler receives session events. One handler serves every session of a
// service, so implementations must be safe for concurrent use.
type IoHandler interface {
	// OnConnected is called once when the session is established. A non-nil
	// error closes the session.
	OnConnected(*IoSession) error
	// OnDisconnected is called once after the session is closed and its
	// loops have exited.
	OnDisconnected(*IoSession)
	// OnIdle is called when no bytes arrived within IoConfig.ReadTimeout.
	// A non-nil error closes the session.
	OnIdle(*IoSession) error
	OnError(*IoSession, error)
	// OnMessage is called once per decoded message, in stream order. A
	// non-nil error closes the session.
	OnMessage(*IoSession, Message) error
}
