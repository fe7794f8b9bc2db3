package aio

import (
	"io"
	"net"
	"sync/atomic"
	"time"
)

// Conn wraps a net.Conn, applying per-call deadlines and counting bytes.
type Conn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
	bytesIn      uint64
	bytesOut     uint64
}

func newConn(c net.Conn, conf *IoConfig) *Conn {
	conn := &Conn{Conn: c}
	_ = conn.SetReadTimeout(conf.ReadTimeout)
	_ = conn.SetWriteTimeout(conf.WriteTimeout)
	return conn
}

func (c *Conn) SetTimeout(d time.Duration) {
	_ = c.SetReadTimeout(d)
	_ = c.SetWriteTimeout(d)
}

func (c *Conn) SetReadTimeout(d time.Duration) (err error) {
	c.readTimeout = d

	if d == 0 {
		if err = c.Conn.SetReadDeadline(time.Time{}); err != nil {
			return
		}
	}
	return
}

func (c *Conn) SetWriteTimeout(d time.Duration) (err error) {
	c.writeTimeout = d

	if d == 0 {
		if err = c.Conn.SetWriteDeadline(time.Time{}); err != nil {
			return
		}
	}
	return
}

func (c *Conn) Read(b []byte) (n int, err error) {
	if c.readTimeout > 0 {
		if err = c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return
		}
	}
	n, err = c.Conn.Read(b)
	atomic.AddUint64(&c.bytesIn, uint64(n))
	return
}

// Write writes all of b unless an error occurs.
func (c *Conn) Write(b []byte) (n int, err error) {
	if c.writeTimeout > 0 {
		if err = c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return
		}
	}
	for n < len(b) && err == nil {
		var nw int
		nw, err = c.Conn.Write(b[n:])
		if nw == 0 && err == nil {
			err = io.ErrShortWrite
		}
		n += nw
	}
	atomic.AddUint64(&c.bytesOut, uint64(n))
	return
}

func (c *Conn) GetReadBytes() uint64 {
	return atomic.LoadUint64(&c.bytesIn)
}

func (c *Conn) GetWriteBytes() uint64 {
	return atomic.LoadUint64(&c.bytesOut)
}
