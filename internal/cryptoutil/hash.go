// Package cryptoutil wraps the hashing and address-encoding primitives the
// decoder and verifier need, built on the same btcsuite packages the rest
// of the stack already depends on.
package cryptoutil

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Hash256 is a double-SHA-256 digest in its on-wire, little-endian form.
type Hash256 = chainhash.Hash

// DoubleSHA256 computes the double-SHA-256 digest of b, on-wire byte order
// (little-endian, matching how block/transaction hashes are serialized).
func DoubleSHA256(b []byte) Hash256 {
	return chainhash.DoubleHashH(b)
}

// ReverseHex returns the big-endian hex string conventionally used to
// display a hash, reversing the on-wire little-endian byte order.
func ReverseHex(h Hash256) string {
	return h.String()
}

// MerkleRoot recomputes the merkle root over a list of txids (already
// little-endian digests), applying Bitcoin's classical odd-tail
// duplication rule at each level.
func MerkleRoot(txids []Hash256) Hash256 {
	if len(txids) == 0 {
		return Hash256{}
	}

	level := make([]Hash256, len(txids))
	copy(level, txids)

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}

		next := make([]Hash256, len(level)/2)
		for i := 0; i < len(next); i++ {
			var buf [64]byte
			copy(buf[:32], level[2*i][:])
			copy(buf[32:], level[2*i+1][:])
			next[i] = chainhash.DoubleHashH(buf[:])
		}
		level = next
	}

	return level[0]
}
