package aio

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNoProgress      = errors.New("decoder returned a message without consuming bytes")
	ErrMessageTooLarge = errors.New("message too large")
	ErrNoProtocol      = errors.New("no protocol set")
)

type Message interface{}

type Request interface {
	Message
	Id() uint64
}

type Response interface {
	Message
	Id() uint64
}

// ProtocolDecoder turns the residue of a session's read buffer into messages.
//
// Decode returns the message and the number of bytes it consumed from buf.
// If buf does not hold a full message yet, it must return (nil, 0, nil); the
// session keeps the residue and calls Decode again once more bytes arrived.
// A non-nil error means buf can never become a valid message.
//
// buf is owned by the session and is reused after Decode returns, so a
// message must copy any bytes it keeps.
type ProtocolDecoder interface {
	Decode(s *IoSession, buf []byte) (m Message, n int, err error)
}

// ProtocolEncoder appends exactly one message in wire format to out.
type ProtocolEncoder interface {
	Encode(s *IoSession, out *bytes.Buffer, m Message) error
}

// Protocol is shared by every session of a service and must not keep
// per-connection state. Use IoSession attributes for that.
type Protocol interface {
	ProtocolEncoder
	ProtocolDecoder
}

// DecodeError reports bytes that violate the session protocol.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Cause() error {
	return e.Err
}

// IsDecodeError reports whether err, or anything it wraps, is a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
