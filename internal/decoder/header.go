package decoder

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/blockparser/blockparser/internal/blockio"
)

// HeaderSize is the fixed on-disk size of a block header.
const HeaderSize = 80

// DecodeHeader decodes the 80-byte header at the start of raw and returns
// it together with its double-SHA-256 hash. It reads nothing past the
// header, so Phase A header collection never touches transaction bytes.
func DecodeHeader(raw []byte) (Header, chainhash.Hash, error) {
	c := blockio.NewCursor(raw)
	header, err := decodeHeader(c)
	if err != nil {
		return Header{}, chainhash.Hash{}, err
	}
	return header, chainhash.DoubleHashH(raw[:HeaderSize]), nil
}
