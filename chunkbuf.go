package emmap

import "fmt"

// chunkBuffer is an append-only byte queue with a read cursor. The
// orchestrator appends network chunks; the decode layers consume bytes
// through nextByte/take. Offsets handed out by checkpoint are absolute
// (monotonic across compactions), so a restore stays valid even after
// the consumed prefix has been discarded.
type chunkBuffer struct {
	data   []byte
	off    int   // read cursor into data
	base   int64 // absolute offset of data[0]
	closed bool
}

// append pushes a chunk onto the queue. Chunks arriving after closeEnd
// are ignored; end-of-stream is a one-way latch.
func (c *chunkBuffer) append(p []byte) {
	if c.closed {
		return
	}
	c.data = append(c.data, p...)
}

// closeEnd latches end-of-stream.
func (c *chunkBuffer) closeEnd() { c.closed = true }

// avail returns the number of unconsumed bytes.
func (c *chunkBuffer) avail() int { return len(c.data) - c.off }

// nextByte consumes and returns one byte, or errNeedMore / ErrTruncated
// on underflow depending on whether the stream is still open.
func (c *chunkBuffer) nextByte() (byte, error) {
	if c.off >= len(c.data) {
		if c.closed {
			return 0, ErrTruncated
		}
		return 0, errNeedMore
	}
	b := c.data[c.off]
	c.off++
	return b, nil
}

// peekByte returns the next byte without consuming it.
func (c *chunkBuffer) peekByte() (byte, error) {
	if c.off >= len(c.data) {
		if c.closed {
			return 0, ErrTruncated
		}
		return 0, errNeedMore
	}
	return c.data[c.off], nil
}

// advance moves the read cursor forward over bytes already seen via
// peekByte. Precondition: n ≤ avail().
func (c *chunkBuffer) advance(n int) {
	if n > c.avail() {
		panic(fmt.Sprintf("chunkBuffer: advance %d with %d available", n, c.avail()))
	}
	c.off += n
}

// take consumes exactly n bytes and returns them as a subslice of the
// internal buffer (valid until the next compact). Underflow consumes
// nothing.
func (c *chunkBuffer) take(n int) ([]byte, error) {
	if c.avail() < n {
		if c.closed {
			return nil, ErrTruncated
		}
		return nil, errNeedMore
	}
	p := c.data[c.off : c.off+n]
	c.off += n
	return p, nil
}

// checkpoint returns the absolute read offset.
func (c *chunkBuffer) checkpoint() int64 { return c.base + int64(c.off) }

// restore rewinds the read cursor to a previously taken checkpoint.
// Rewinding below the compacted base is a programming error.
func (c *chunkBuffer) restore(abs int64) error {
	rel := abs - c.base
	if rel < 0 || rel > int64(len(c.data)) {
		return fmt.Errorf("chunkBuffer: restore to %d outside [%d, %d]",
			abs, c.base, c.base+int64(len(c.data)))
	}
	c.off = int(rel)
	return nil
}

// compact discards the consumed prefix. Callers must only compact when no
// outstanding checkpoint references bytes below the cursor; the decoder
// compacts immediately after refreshing its block snapshot, which is the
// oldest position it can ever rewind to.
func (c *chunkBuffer) compact() {
	if c.off == 0 {
		return
	}
	c.base += int64(c.off)
	c.data = append(c.data[:0], c.data[c.off:]...)
	c.off = 0
}
