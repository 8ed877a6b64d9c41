// Package decoder turns raw block bytes (as produced by internal/blockfile)
// into fully structured blocks: headers, transactions, inputs, outputs, and
// derived addresses, parameterized by a coin profile.
package decoder

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// Header is the 80-byte block header.
type Header struct {
	Version    int32
	PrevHash   chainhash.Hash
	MerkleRoot chainhash.Hash
	Time       uint32
	Bits       uint32
	Nonce      uint32
}

// Block is a fully decoded block.
type Block struct {
	Header       Header
	Hash         chainhash.Hash
	Size         uint32
	FileID       int
	Offset       int64
	Transactions []Transaction
}

// TxIn is a decoded transaction input.
type TxIn struct {
	PrevTxID   chainhash.Hash
	PrevIndex  uint32
	ScriptSig  []byte
	Sequence   uint32
	Witness    [][]byte
	IsCoinbase bool
}

// TxOut is a decoded transaction output, already classified and with
// addresses derived per the injected coin profile.
type TxOut struct {
	Value        uint64
	ScriptPubKey []byte
	ScriptType   string
	Addresses    []string
	OpReturnData []byte
}

// Transaction is a fully decoded transaction.
type Transaction struct {
	Version    int32
	HasWitness bool
	Inputs     []TxIn
	Outputs    []TxOut
	LockTime   uint32
	TxID       chainhash.Hash
	WTxID      chainhash.Hash
}
