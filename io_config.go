package aio

import "time"

type IoConfig struct {
	SendQueueSize int
	RecvQueueSize int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration

	// ReadBufferSize is the initial size of a session read buffer, which
	// grows up to MaxReadBufferSize to hold one undecoded message.
	ReadBufferSize    int
	MaxReadBufferSize int
	WriteBufferSize   int

	// ManualRead makes the session wait for IoSession.Read before each
	// wire read instead of re-arming itself.
	ManualRead bool
}

func NewIoConfig() *IoConfig {
	conf := &IoConfig{}
	conf.normalize()
	return conf
}

func (conf *IoConfig) normalize() {
	if conf.SendQueueSize <= 0 {
		conf.SendQueueSize = 16
	}
	if conf.RecvQueueSize <= 0 {
		conf.RecvQueueSize = 16
	}
	if conf.ReadBufferSize <= 0 {
		conf.ReadBufferSize = defaultReadBufferSize
	}
	if conf.MaxReadBufferSize <= 0 {
		conf.MaxReadBufferSize = defaultMaxReadBufferSize
	}
	if conf.MaxReadBufferSize < conf.ReadBufferSize {
		conf.MaxReadBufferSize = conf.ReadBufferSize
	}
	if conf.WriteBufferSize <= 0 {
		conf.WriteBufferSize = defaultWriteBufferSize
	}
}
