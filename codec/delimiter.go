package codec

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/stn81/aio"
)

// DelimiterProtocol splits the stream on a byte sequence, such as the
// "]]>]]>" end-of-message token. Decoded messages are []byte without the
// delimiter; encoding appends it.
type DelimiterProtocol struct {
	Delimiter []byte
	// MaxFrameLength bounds the bytes buffered while looking for the
	// delimiter; 0 means no limit beyond the session read buffer.
	MaxFrameLength int
}

func NewDelimiterProtocol(delim []byte) *DelimiterProtocol {
	return &DelimiterProtocol{
		Delimiter:      delim,
		MaxFrameLength: DefaultMaxFrameLength,
	}
}

func (p *DelimiterProtocol) Decode(_ *aio.IoSession, buf []byte) (aio.Message, int, error) {
	frame, n, err := p.split(buf)
	if err != nil || n == 0 {
		return nil, 0, err
	}

	payload := make([]byte, len(frame))
	copy(payload, frame)
	return payload, n, nil
}

func (p *DelimiterProtocol) Encode(_ *aio.IoSession, out *bytes.Buffer, m aio.Message) error {
	payload, err := toBytes(m)
	if err != nil {
		return err
	}

	if bytes.Contains(payload, p.Delimiter) {
		return errors.New("payload contains the delimiter")
	}

	out.Grow(len(payload) + len(p.Delimiter))
	out.Write(payload)
	out.Write(p.Delimiter)
	return nil
}

// split finds the first frame in buf. It returns n == 0 when no complete
// frame is buffered yet.
func (p *DelimiterProtocol) split(buf []byte) (frame []byte, n int, err error) {
	if len(p.Delimiter) == 0 {
		return nil, 0, errors.New("empty delimiter")
	}

	idx := bytes.Index(buf, p.Delimiter)
	if idx < 0 {
		// the delimiter may still be arriving, so only whole frames count
		if p.MaxFrameLength > 0 && len(buf) > p.MaxFrameLength+len(p.Delimiter) {
			return nil, 0, errors.Wrapf(aio.ErrMessageTooLarge, "no delimiter within %d bytes", len(buf))
		}
		return nil, 0, nil
	}

	if p.MaxFrameLength > 0 && idx > p.MaxFrameLength {
		return nil, 0, errors.Wrapf(aio.ErrMessageTooLarge, "frame length %d exceeds %d", idx, p.MaxFrameLength)
	}
	return buf[:idx], idx + len(p.Delimiter), nil
}
