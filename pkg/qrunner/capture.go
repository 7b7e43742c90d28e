package qrunner

import (
	"bytes"
	"sync"
)

// capture buffers one output stream. Past the limit it keeps accepting
// writes so the producer never blocks, but drops the bytes.
type capture struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int64 // 0 = unlimited
	truncated bool
}

func newCapture(limit int64) *capture {
	return &capture{limit: limit}
}

func (c *capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.limit <= 0 {
		return c.buf.Write(p)
	}
	room := c.limit - int64(c.buf.Len())
	if room <= 0 {
		c.truncated = c.truncated || len(p) > 0
		return len(p), nil
	}
	if int64(len(p)) > room {
		c.buf.Write(p[:room])
		c.truncated = true
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *capture) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Clone(c.buf.Bytes())
}

func (c *capture) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated
}
