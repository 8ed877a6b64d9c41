// Package model defines the rows the UTXO consumer persists to ClickHouse
// and the projections it reads back for spend resolution and dumps.
package model

import "time"

// Output is one created transaction output.
type Output struct {
	Coin        string
	Network     string
	BlockHeight uint64
	BlockTime   time.Time
	TxID        string
	Index       uint32
	Value       uint64
	ScriptType  string
	ScriptHex   string
	Addresses   []string
}

// Spend records one consumed outpoint, carrying the value and addresses of
// the output it spends.
type Spend struct {
	Coin        string
	Network     string
	BlockHeight uint64
	TxID        string
	PrevTxID    string
	PrevIndex   uint32
	Value       uint64
	Addresses   []string
}

// OutputLookup is the slim projection used to resolve a spend to the value
// and addresses of the output it consumes.
type OutputLookup struct {
	TxID      string
	Index     uint32
	Value     uint64
	Addresses []string
}

// UnspentOutput is one row of an unspent-set dump.
type UnspentOutput struct {
	TxID        string
	Index       uint32
	Value       uint64
	Addresses   []string
	BlockHeight uint64
}

// AddressBalance is one row of a balance dump.
type AddressBalance struct {
	Address string
	Balance uint64
}
