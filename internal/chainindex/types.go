// Package chainindex collects block headers across an entire blk*.dat
// corpus, selects the canonical (longest) chain, and persists it so
// repeated runs can resume without re-hashing unchanged files.
package chainindex

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// HeaderEntry is the transient, in-RAM record kept per header during Phase
// A — six small fields only, so the index phase scales to millions of headers
// without scaling with chain byte size.
type HeaderEntry struct {
	FileID   int
	Offset   int64
	Size     uint32
	Hash     chainhash.Hash
	PrevHash chainhash.Hash
	Bits     uint32
}

// Index is the selected canonical chain: ordered block hashes from genesis
// to tip.
type Index struct {
	Coin   string
	Hashes []chainhash.Hash
}

// Watermark is the highest height recorded, or -1 for an empty index.
func (idx *Index) Watermark() int {
	return len(idx.Hashes) - 1
}

// Tip returns the last (highest) hash in the chain, and false if the index
// is empty.
func (idx *Index) Tip() (chainhash.Hash, bool) {
	if len(idx.Hashes) == 0 {
		return chainhash.Hash{}, false
	}
	return idx.Hashes[len(idx.Hashes)-1], true
}

// At returns the hash at the given height, and false if out of range.
func (idx *Index) At(height uint64) (chainhash.Hash, bool) {
	if height >= uint64(len(idx.Hashes)) {
		return chainhash.Hash{}, false
	}
	return idx.Hashes[height], true
}

// Heights inverts the chain into a hash-to-height lookup, the read-only
// snapshot every decode worker matches scanned records against.
func (idx *Index) Heights() map[chainhash.Hash]uint64 {
	m := make(map[chainhash.Hash]uint64, len(idx.Hashes))
	for i, h := range idx.Hashes {
		m[h] = uint64(i)
	}
	return m
}
