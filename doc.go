/*
Package aio is an asynchronous TCP session framework with pluggable codecs.

A Server or Client wraps every connection in an IoSession. The session reads
into a growable buffer, hands the undecoded residue to the Protocol until it
reports an incomplete message, and delivers each decoded Message to the
IoHandler in stream order. Writes are queued and reach the wire in the order
they were made.

Every session runs three goroutines: the read loop, which owns the read
buffer and keeps at most one read in flight; the write loop, which owns the
connection's write side; and the handle loop, which calls the IoHandler.
Errors stay inside the session that raised them: decode errors, handler
errors and panics close only that session.

A minimal echo server:

	srv := aio.NewTCPServer(ctx, aio.NewTCPServerConfig())
	srv.SetProtocol(codec.NewLineProtocol())
	srv.SetIoHandler(&aio.IoHandlerFuncs{
		Message: func(s *aio.IoSession, m aio.Message) error {
			return s.Write(m)
		},
	})
	err := srv.Start(":8888", true)
*/
package aio
