package codec

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/stn81/aio"
)

// FixedLengthProtocol exchanges frames of exactly FrameLength bytes.
type FixedLengthProtocol struct {
	FrameLength int
}

func (p *FixedLengthProtocol) Decode(_ *aio.IoSession, buf []byte) (aio.Message, int, error) {
	if p.FrameLength <= 0 {
		return nil, 0, errors.Errorf("invalid frame length %d", p.FrameLength)
	}
	if len(buf) < p.FrameLength {
		return nil, 0, nil
	}

	frame := make([]byte, p.FrameLength)
	copy(frame, buf)
	return frame, p.FrameLength, nil
}

func (p *FixedLengthProtocol) Encode(_ *aio.IoSession, out *bytes.Buffer, m aio.Message) error {
	payload, err := toBytes(m)
	if err != nil {
		return err
	}

	if len(payload) != p.FrameLength {
		return errors.Errorf("frame is %d bytes, want %d", len(payload), p.FrameLength)
	}

	out.Write(payload)
	return nil
}
