package sandbox

import (
	"strings"
	"sync"
)

const truncationMarker = "\n... output truncated\n"

// capture collects a script's printed output up to a byte limit. It is
// safe for concurrent use because an abandoned runner may still be
// printing while the caller reads.
type capture struct {
	mu        sync.Mutex
	buf       strings.Builder
	limit     int
	truncated bool
}

func newCapture(limit int) *capture {
	return &capture{limit: limit}
}

// WriteString appends s, dropping whatever would exceed the limit.
func (c *capture) WriteString(s string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.truncated {
		return len(s), nil
	}
	room := c.limit - c.buf.Len()
	if len(s) > room {
		if room > 0 {
			c.buf.WriteString(s[:room])
		}
		c.truncated = true
		return len(s), nil
	}
	c.buf.WriteString(s)
	return len(s), nil
}

// Write implements io.Writer.
func (c *capture) Write(p []byte) (int, error) {
	return c.WriteString(string(p))
}

// Line appends s followed by a newline, the way print does.
func (c *capture) Line(s string) {
	c.WriteString(s + "\n")
}

// String returns the captured text, marked when it was cut short.
func (c *capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.truncated {
		return c.buf.String() + truncationMarker
	}
	return c.buf.String()
}

// Truncated reports whether output was dropped.
func (c *capture) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated
}
