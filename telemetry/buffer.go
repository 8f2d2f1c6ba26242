package telemetry

import "github.com/lone-faerie/sensorlink/config"

// DefaultSize is the capacity of a serial message buffer.
const DefaultSize = config.DefaultBufferSize

// Buffer accumulates the bytes of one serial message in a fixed amount of
// memory. The last slot is reserved for the terminator, so a message holds at
// most Cap()-1 bytes.
//
// Overflow policy: once the write index reaches the last slot it stays there,
// and every further byte overwrites that slot. The overwritten bytes are lost
// and the message is truncated to its first Cap()-1 bytes when terminated.
type Buffer struct {
	buf     []byte
	n       int
	written int
}

// NewBuffer returns a Buffer with the given capacity including the
// terminator slot. The capacity is at least 2.
func NewBuffer(size int) *Buffer {
	return &Buffer{buf: make([]byte, max(size, 2))}
}

// WriteByte stores c at the write index. It never fails; on overflow c
// replaces the byte in the last slot.
func (b *Buffer) WriteByte(c byte) error {
	b.buf[b.n] = c
	b.written++
	if b.n++; b.n >= len(b.buf) {
		b.n = len(b.buf) - 1
	}
	return nil
}

// Terminate writes term at the write index and returns the message before
// it. The returned slice aliases the buffer and is only valid until the
// next call to WriteByte or Reset.
func (b *Buffer) Terminate(term byte) []byte {
	b.buf[b.n] = term
	return b.buf[:b.n]
}

// Bytes returns the bytes written so far that are part of the message.
func (b *Buffer) Bytes() []byte {
	return b.buf[:b.n]
}

// Len returns the number of message bytes held.
func (b *Buffer) Len() int { return b.n }

// Cap returns the capacity of the buffer including the terminator slot.
func (b *Buffer) Cap() int { return len(b.buf) }

// Truncated reports whether more bytes were written than the message can hold.
func (b *Buffer) Truncated() bool {
	return b.written > len(b.buf)-1
}

// Dropped returns the number of bytes written that are not part of the message.
func (b *Buffer) Dropped() int {
	return b.written - b.n
}

// Reset empties the buffer for the next message.
func (b *Buffer) Reset() {
	b.n = 0
	b.written = 0
}
