// Package blockio provides zero-allocation primitive decoding over a raw
// byte window, the same little-endian/varint primitives every block-file
// parser in the corpus builds on.
package blockio

import (
	"encoding/binary"
	"fmt"
)

// Kind classifies a decode failure so callers can recover locally
// (tail-EOF, unknown magic) instead of string-matching error text.
type Kind int

const (
	// TruncatedInput means the cursor ran out of bytes before a read
	// could complete.
	TruncatedInput Kind = iota
	// InvalidVarint means a CompactSize prefix byte did not match any
	// of the four encodings Bitcoin defines.
	InvalidVarint
)

func (k Kind) String() string {
	switch k {
	case TruncatedInput:
		return "truncated_input"
	case InvalidVarint:
		return "invalid_varint"
	default:
		return "unknown"
	}
}

// DecodeError reports a failure to decode a primitive from a Cursor, along
// with the byte offset at which it occurred.
type DecodeError struct {
	Kind   Kind
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("blockio: %s at offset %d: %v", e.Kind, e.Offset, e.Err)
	}
	return fmt.Sprintf("blockio: %s at offset %d", e.Kind, e.Offset)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func truncated(offset, want, have int) error {
	return &DecodeError{
		Kind:   TruncatedInput,
		Offset: offset,
		Err:    fmt.Errorf("need %d bytes, have %d", want, have),
	}
}

// Cursor reads primitives out of an immutable byte window without copying.
// Every slice it returns aliases the underlying buffer; callers that need
// to retain a read past the buffer's lifetime must copy it themselves.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor wraps buf for sequential reads starting at offset 0.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Offset reports the current read position.
func (c *Cursor) Offset() int { return c.off }

// Buffer returns the full underlying byte window the cursor was created
// over, letting callers slice out a byte range they tracked via Offset
// (e.g. to reserialize a sub-region for hashing) without copying.
func (c *Cursor) Buffer() []byte { return c.buf }

// Len reports the number of unread bytes remaining.
func (c *Cursor) Len() int { return len(c.buf) - c.off }

// Remaining returns the unread tail of the buffer, without advancing.
func (c *Cursor) Remaining() []byte { return c.buf[c.off:] }

func (c *Cursor) require(n int) error {
	if c.Len() < n {
		return truncated(c.off, n, c.Len())
	}
	return nil
}

// ReadByte reads a single byte.
func (c *Cursor) ReadByte() (byte, error) {
	if err := c.require(1); err != nil {
		return 0, err
	}
	b := c.buf[c.off]
	c.off++
	return b, nil
}

// ReadUint16LE reads a little-endian uint16.
func (c *Cursor) ReadUint16LE() (uint16, error) {
	if err := c.require(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.buf[c.off:])
	c.off += 2
	return v, nil
}

// ReadUint32LE reads a little-endian uint32.
func (c *Cursor) ReadUint32LE() (uint32, error) {
	if err := c.require(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v, nil
}

// ReadInt32LE reads a little-endian signed int32 (block/tx version fields).
func (c *Cursor) ReadInt32LE() (int32, error) {
	v, err := c.ReadUint32LE()
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// ReadUint64LE reads a little-endian uint64.
func (c *Cursor) ReadUint64LE() (uint64, error) {
	if err := c.require(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(c.buf[c.off:])
	c.off += 8
	return v, nil
}

// ReadFixed reads exactly n bytes and returns a slice aliasing the buffer.
func (c *Cursor) ReadFixed(n int) ([]byte, error) {
	if err := c.require(n); err != nil {
		return nil, err
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

// ReadVarint reads a Bitcoin CompactSize-encoded unsigned integer: a single
// prefix byte selects 1/3/5/9-byte encodings keyed by value
// (<0xfd, =0xfd, =0xfe, =0xff respectively).
func (c *Cursor) ReadVarint() (uint64, error) {
	start := c.off
	prefix, err := c.ReadByte()
	if err != nil {
		return 0, err
	}

	switch {
	case prefix < 0xfd:
		return uint64(prefix), nil
	case prefix == 0xfd:
		v, err := c.ReadUint16LE()
		if err != nil {
			return 0, &DecodeError{Kind: InvalidVarint, Offset: start, Err: err}
		}
		return uint64(v), nil
	case prefix == 0xfe:
		v, err := c.ReadUint32LE()
		if err != nil {
			return 0, &DecodeError{Kind: InvalidVarint, Offset: start, Err: err}
		}
		return uint64(v), nil
	default: // 0xff
		v, err := c.ReadUint64LE()
		if err != nil {
			return 0, &DecodeError{Kind: InvalidVarint, Offset: start, Err: err}
		}
		return v, nil
	}
}

// ReadVarBytes reads a varint length prefix followed by that many bytes.
func (c *Cursor) ReadVarBytes() ([]byte, error) {
	n, err := c.ReadVarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(c.Len()) {
		return nil, truncated(c.off, int(n), c.Len())
	}
	return c.ReadFixed(int(n))
}
