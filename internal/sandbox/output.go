package sandbox

import (
	"bytes"
	"fmt"
	"strings"
)

// cappedBuffer keeps the first max bytes written to it and counts the rest.
// Writes never fail so a chatty process is not killed by a broken pipe.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	discarded int64
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if c.max <= 0 {
		return c.buf.Write(p)
	}
	room := c.max - c.buf.Len()
	if room <= 0 {
		c.discarded += int64(len(p))
		return len(p), nil
	}
	if len(p) > room {
		c.buf.Write(p[:room])
		c.discarded += int64(len(p) - room)
		return len(p), nil
	}
	return c.buf.Write(p)
}

// String decodes the captured bytes leniently: invalid UTF-8 sequences are
// replaced rather than rejected.
func (c *cappedBuffer) String() string {
	s := strings.ToValidUTF8(c.buf.String(), "\uFFFD")
	if c.discarded > 0 {
		s += fmt.Sprintf("\n... (output truncated, %d bytes discarded)", c.discarded)
	}
	return s
}
