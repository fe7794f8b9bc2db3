package aio

import (
	"github.com/pkg/errors"
)

var ErrBufferOverflow = errors.New("read buffer overflow")

const (
	defaultReadBufferSize    = 4 << 10
	defaultMaxReadBufferSize = 4 << 20
	defaultWriteBufferSize   = 4 << 10
)

// ioBuffer holds the bytes read from the wire that have not been decoded
// yet. The residue is buf[r:w], the free tail is buf[w:].
type ioBuffer struct {
	buf []byte
	r   int
	w   int
	max int
}

func newIoBuffer(size, max int) *ioBuffer {
	if size <= 0 {
		size = defaultReadBufferSize
	}
	if max < size {
		max = size
	}
	return &ioBuffer{
		buf: make([]byte, size),
		max: max,
	}
}

// Len returns the number of undecoded bytes.
func (b *ioBuffer) Len() int {
	return b.w - b.r
}

func (b *ioBuffer) Cap() int {
	return len(b.buf)
}

func (b *ioBuffer) Bytes() []byte {
	return b.buf[b.r:b.w]
}

// Free returns the writable tail, making room first. It compacts the residue
// to the front and doubles the buffer up to max when that is not enough.
func (b *ioBuffer) Free() ([]byte, error) {
	if b.w < len(b.buf) {
		return b.buf[b.w:], nil
	}

	if b.r > 0 {
		b.compact()
		return b.buf[b.w:], nil
	}

	if len(b.buf) >= b.max {
		return nil, errors.Wrapf(ErrBufferOverflow, "%d bytes pending", b.Len())
	}

	size := len(b.buf) * 2
	if size > b.max {
		size = b.max
	}
	buf := make([]byte, size)
	copy(buf, b.buf[b.r:b.w])
	b.buf = buf
	return b.buf[b.w:], nil
}

// Commit marks n bytes of the tail returned by Free as filled.
func (b *ioBuffer) Commit(n int) {
	b.w += n
}

// Consume drops n decoded bytes from the front of the residue.
func (b *ioBuffer) Consume(n int) {
	b.r += n
	if b.r >= b.w {
		b.r, b.w = 0, 0
	}
}

func (b *ioBuffer) compact() {
	n := copy(b.buf, b.buf[b.r:b.w])
	b.r, b.w = 0, n
}
