package codec

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stn81/aio"
)

func TestLineDecode(t *testing.T) {
	p := NewLineProtocol()

	m, n, err := p.Decode(nil, []byte("hello\r\nworld"))
	require.NoError(t, err)
	assert.Equal(t, "hello", m)
	assert.Equal(t, 7, n)

	m, n, err = p.Decode(nil, []byte("world"))
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Equal(t, 0, n)

	m, n, err = p.Decode(nil, []byte("\n"))
	require.NoError(t, err)
	assert.Equal(t, "", m)
	assert.Equal(t, 1, n)
}

func TestLineTooLong(t *testing.T) {
	p := &LineProtocol{MaxLineLength: 3}
	_, _, err := p.Decode(nil, []byte("abcdef"))
	assert.True(t, errors.Is(err, aio.ErrMessageTooLarge))
}

func TestLineEncode(t *testing.T) {
	p := NewLineProtocol()

	var out bytes.Buffer
	require.NoError(t, p.Encode(nil, &out, "hi"))
	require.NoError(t, p.Encode(nil, &out, []byte("there")))
	assert.Equal(t, "hi\nthere\n", out.String())

	assert.Error(t, p.Encode(nil, &out, "a\nb"))
	assert.Error(t, p.Encode(nil, &out, 1))
}
