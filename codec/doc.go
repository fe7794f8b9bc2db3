/*
Package codec offers ready made protocols for aio sessions.

All protocols are stateless and can be shared by any number of sessions:

	LengthFieldProtocol  fixed size length prefix, then the payload
	DelimiterProtocol    payload terminated by a byte sequence
	LineProtocol         newline terminated text
	FixedLengthProtocol  frames of one fixed size

Decoders copy what they return, so messages stay valid after the session
reuses its read buffer.
*/
package codec
