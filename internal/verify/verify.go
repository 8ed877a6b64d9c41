// Package verify implements the optional merkle-root recomputation and
// prev-hash chain-link checks gated by --verify.
package verify

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/blockparser/blockparser/internal/cryptoutil"
	"github.com/blockparser/blockparser/internal/decoder"
)

// Reason names which invariant failed.
type Reason string

const (
	ReasonMerkle Reason = "merkle"
	ReasonChain  Reason = "chain"
)

// Error reports a verification failure at a specific height.
type Error struct {
	Height uint64
	Reason Reason
}

func (e *Error) Error() string {
	return fmt.Sprintf("verify: height %d: %s mismatch", e.Height, e.Reason)
}

// Block recomputes the merkle root over legacy (non-witness) txids and
// compares it to the header field.
func Block(height uint64, b decoder.Block) error {
	txids := make([]chainhash.Hash, len(b.Transactions))
	for i, tx := range b.Transactions {
		txids[i] = tx.TxID
	}

	got := cryptoutil.MerkleRoot(txids)
	if got != b.Header.MerkleRoot {
		return &Error{Height: height, Reason: ReasonMerkle}
	}
	return nil
}

// ChainLink checks that cur's declared prev_hash names the hash of the
// block delivered immediately before it. Callers invoke this for each
// consecutive pair in delivery order; only the previous hash needs to be
// retained, never the previous block.
func ChainLink(height uint64, prevHash chainhash.Hash, cur decoder.Block) error {
	if cur.Header.PrevHash != prevHash {
		return &Error{Height: height, Reason: ReasonChain}
	}
	return nil
}
