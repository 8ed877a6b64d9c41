package blockio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorFixedWidthReads(t *testing.T) {
	c := NewCursor([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08})

	b, err := c.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), b)

	u16, err := c.ReadUint16LE()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0302), u16)

	u32, err := c.ReadUint32LE()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x07060504), u32)

	assert.Equal(t, 1, c.Len())
}

func TestCursorReadFixedAliasesBuffer(t *testing.T) {
	buf := []byte{0xaa, 0xbb, 0xcc, 0xdd}
	c := NewCursor(buf)

	got, err := c.ReadFixed(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0xbb}, got)

	buf[0] = 0xff
	assert.Equal(t, byte(0xff), got[0], "ReadFixed must alias, not copy")
}

func TestCursorTruncated(t *testing.T) {
	c := NewCursor([]byte{0x01})
	_, err := c.ReadUint32LE()
	require.Error(t, err)

	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, TruncatedInput, decErr.Kind)
}

func TestCursorVarintEncodings(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want uint64
	}{
		{"single-byte", []byte{0x0c}, 12},
		{"fd-prefix", []byte{0xfd, 0x34, 0x12}, 0x1234},
		{"fe-prefix", []byte{0xfe, 0x78, 0x56, 0x34, 0x12}, 0x12345678},
		{"ff-prefix", []byte{0xff, 0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}, 0x0102030405060708},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCursor(tt.in)
			got, err := c.ReadVarint()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 0, c.Len())
		})
	}
}

func TestCursorVarintTruncatedPrefix(t *testing.T) {
	c := NewCursor([]byte{0xfd, 0x01})
	_, err := c.ReadVarint()
	require.Error(t, err)

	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, InvalidVarint, decErr.Kind)
}

func TestCursorVarBytes(t *testing.T) {
	c := NewCursor([]byte{0x03, 0x01, 0x02, 0x03, 0xff})
	got, err := c.ReadVarBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x03}, got)
	assert.Equal(t, 1, c.Len())
}

func TestCursorVarBytesTruncatedPayload(t *testing.T) {
	c := NewCursor([]byte{0x05, 0x01, 0x02})
	_, err := c.ReadVarBytes()
	require.Error(t, err)
}
