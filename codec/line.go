package codec

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"

	"github.com/stn81/aio"
)

// LineProtocol exchanges newline terminated text. Decoded messages are
// strings without the line ending; a trailing "\r" is dropped as well.
type LineProtocol struct {
	MaxLineLength int
}

func NewLineProtocol() *LineProtocol {
	return &LineProtocol{MaxLineLength: 64 << 10}
}

func (p *LineProtocol) Decode(_ *aio.IoSession, buf []byte) (aio.Message, int, error) {
	d := DelimiterProtocol{Delimiter: []byte{'\n'}, MaxFrameLength: p.MaxLineLength}

	line, n, err := d.split(buf)
	if err != nil || n == 0 {
		return nil, 0, err
	}

	line = bytes.TrimSuffix(line, []byte{'\r'})
	return string(line), n, nil
}

func (p *LineProtocol) Encode(_ *aio.IoSession, out *bytes.Buffer, m aio.Message) error {
	var line string

	switch v := m.(type) {
	case string:
		line = v
	case []byte:
		line = string(v)
	default:
		return errors.Errorf("unsupported message type %T", m)
	}

	if strings.ContainsRune(line, '\n') {
		return errors.New("line contains a newline")
	}

	out.WriteString(line)
	out.WriteByte('\n')
	return nil
}
