package codec

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/stn81/aio"
)

const DefaultMaxFrameLength = 1 << 20

// LengthFieldProtocol frames each payload with a fixed size length prefix.
// Decoded messages are []byte; []byte and string are accepted for encoding.
type LengthFieldProtocol struct {
	// FieldLength is the prefix size in bytes: 1, 2, 4 or 8.
	FieldLength int
	ByteOrder   binary.ByteOrder
	// MaxFrameLength bounds the payload size; 0 means no limit beyond the
	// session read buffer.
	MaxFrameLength int
}

// NewLengthFieldProtocol returns a 4-byte big-endian length prefix codec
// with a 1 MiB payload limit.
func NewLengthFieldProtocol() *LengthFieldProtocol {
	return &LengthFieldProtocol{
		FieldLength:    4,
		ByteOrder:      binary.BigEndian,
		MaxFrameLength: DefaultMaxFrameLength,
	}
}

func (p *LengthFieldProtocol) Decode(_ *aio.IoSession, buf []byte) (aio.Message, int, error) {
	if len(buf) < p.FieldLength {
		return nil, 0, nil
	}

	size, err := p.readLength(buf)
	if err != nil {
		return nil, 0, err
	}

	if p.MaxFrameLength > 0 && size > uint64(p.MaxFrameLength) {
		return nil, 0, errors.Wrapf(aio.ErrMessageTooLarge, "frame length %d exceeds %d", size, p.MaxFrameLength)
	}

	if uint64(len(buf)-p.FieldLength) < size {
		return nil, 0, nil
	}

	total := p.FieldLength + int(size)
	payload := make([]byte, size)
	copy(payload, buf[p.FieldLength:total])
	return payload, total, nil
}

func (p *LengthFieldProtocol) Encode(_ *aio.IoSession, out *bytes.Buffer, m aio.Message) error {
	payload, err := toBytes(m)
	if err != nil {
		return err
	}

	if p.MaxFrameLength > 0 && len(payload) > p.MaxFrameLength {
		return errors.Wrapf(aio.ErrMessageTooLarge, "payload length %d exceeds %d", len(payload), p.MaxFrameLength)
	}

	var header [8]byte
	switch p.FieldLength {
	case 1:
		if len(payload) > 0xff {
			return errors.Wrapf(aio.ErrMessageTooLarge, "payload length %d does not fit 1 byte", len(payload))
		}
		header[0] = byte(len(payload))
	case 2:
		if len(payload) > 0xffff {
			return errors.Wrapf(aio.ErrMessageTooLarge, "payload length %d does not fit 2 bytes", len(payload))
		}
		p.ByteOrder.PutUint16(header[:], uint16(len(payload)))
	case 4:
		if uint64(len(payload)) > 0xffffffff {
			return errors.Wrapf(aio.ErrMessageTooLarge, "payload length %d does not fit 4 bytes", len(payload))
		}
		p.ByteOrder.PutUint32(header[:], uint32(len(payload)))
	case 8:
		p.ByteOrder.PutUint64(header[:], uint64(len(payload)))
	default:
		return errors.Errorf("unsupported length field size %d", p.FieldLength)
	}

	out.Grow(p.FieldLength + len(payload))
	out.Write(header[:p.FieldLength])
	out.Write(payload)
	return nil
}

func (p *LengthFieldProtocol) readLength(buf []byte) (uint64, error) {
	switch p.FieldLength {
	case 1:
		return uint64(buf[0]), nil
	case 2:
		return uint64(p.ByteOrder.Uint16(buf)), nil
	case 4:
		return uint64(p.ByteOrder.Uint32(buf)), nil
	case 8:
		return p.ByteOrder.Uint64(buf), nil
	default:
		return 0, errors.Errorf("unsupported length field size %d", p.FieldLength)
	}
}

func toBytes(m aio.Message) ([]byte, error) {
	switch v := m.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.Errorf("unsupported message type %T", m)
	}
}
