package aio

type IoService interface {
	Protocol() Protocol
	IoHandler() IoHandler
	IoConfig() *IoConfig
	// Register is called by IoSession.Open. A non-nil error aborts the open.
	Register(*IoSession) error
	// Unregister is called once a registered session has fully closed.
	Unregister(*IoSession)
	NextSessionId() uint64
}
