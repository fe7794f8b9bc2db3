package codec

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stn81/aio"
)

func TestLengthFieldDecode(t *testing.T) {
	for _, tc := range []struct {
		name     string
		input    []byte
		want     []byte
		wantN    int
		tooLarge bool
	}{
		{name: "empty", input: nil},
		{name: "short header", input: []byte{0, 0, 0}},
		{name: "short payload", input: []byte{0, 0, 0, 4, 'P', 'I'}},
		{name: "ping", input: []byte{0, 0, 0, 4, 'P', 'I', 'N', 'G'}, want: []byte("PING"), wantN: 8},
		{name: "trailing bytes", input: []byte{0, 0, 0, 2, 'h', 'i', 0, 0}, want: []byte("hi"), wantN: 6},
		{name: "zero length", input: []byte{0, 0, 0, 0}, want: []byte{}, wantN: 4},
		{name: "too large", input: []byte{0x7f, 0xff, 0xff, 0xff}, tooLarge: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m, n, err := NewLengthFieldProtocol().Decode(nil, tc.input)
			if tc.tooLarge {
				assert.True(t, errors.Is(err, aio.ErrMessageTooLarge))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantN, n)
			if tc.wantN == 0 {
				assert.Nil(t, m)
				return
			}
			assert.Equal(t, tc.want, m)
		})
	}
}

func TestLengthFieldDecodeCopiesPayload(t *testing.T) {
	buf := []byte{0, 0, 0, 2, 'o', 'k'}
	m, _, err := NewLengthFieldProtocol().Decode(nil, buf)
	require.NoError(t, err)

	buf[4] = 'x'
	assert.Equal(t, []byte("ok"), m)
}

func TestLengthFieldEncode(t *testing.T) {
	for _, size := range []int{1, 2, 4, 8} {
		p := &LengthFieldProtocol{FieldLength: size, ByteOrder: binary.LittleEndian}

		var out bytes.Buffer
		require.NoError(t, p.Encode(nil, &out, "hello"))
		assert.Equal(t, size+5, out.Len())

		m, n, err := p.Decode(nil, out.Bytes())
		require.NoError(t, err)
		assert.Equal(t, out.Len(), n)
		assert.Equal(t, []byte("hello"), m)
	}
}

func TestLengthFieldEncodeErrors(t *testing.T) {
	var out bytes.Buffer

	p := &LengthFieldProtocol{FieldLength: 1, ByteOrder: binary.BigEndian}
	err := p.Encode(nil, &out, make([]byte, 256))
	assert.True(t, errors.Is(err, aio.ErrMessageTooLarge))

	p = &LengthFieldProtocol{FieldLength: 4, ByteOrder: binary.BigEndian, MaxFrameLength: 3}
	err = p.Encode(nil, &out, []byte("four"))
	assert.True(t, errors.Is(err, aio.ErrMessageTooLarge))

	p = &LengthFieldProtocol{FieldLength: 3, ByteOrder: binary.BigEndian}
	assert.Error(t, p.Encode(nil, &out, []byte("x")))

	assert.Error(t, NewLengthFieldProtocol().Encode(nil, &out, 42))
	assert.Equal(t, 0, out.Len())
}
