package engine

import "bytes"

// limitBuffer accepts writes up to a byte cap and silently discards the
// rest, so a runaway print loop cannot grow memory past the output budget.
// Writes always report success to keep the sandbox's print path error-free.
type limitBuffer struct {
	buf bytes.Buffer
	max int
}

func newLimitBuffer(max int) *limitBuffer {
	return &limitBuffer{max: max}
}

func (b *limitBuffer) Write(p []byte) (int, error) {
	n := len(p)
	remaining := b.max - b.buf.Len()
	if remaining <= 0 {
		return n, nil
	}
	if len(p) > remaining {
		p = p[:remaining]
	}
	b.buf.Write(p)
	return n, nil
}

func (b *limitBuffer) String() string {
	return b.buf.String()
}
