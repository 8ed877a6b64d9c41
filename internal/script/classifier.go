// Package script classifies a scriptPubKey into one of Bitcoin's standard
// output types by matching the opcode sequence against a fixed pattern
// table, in the exact recognition order the wire format requires.
package script

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
)

var errTruncatedPush = errors.New("script: truncated push data")

// Type names a recognized scriptPubKey pattern.
type Type string

const (
	P2PK        Type = "p2pk"
	P2PKH       Type = "p2pkh"
	P2SH        Type = "p2sh"
	P2MS        Type = "p2ms"
	P2WPKH      Type = "p2wpkh"
	P2WSH       Type = "p2wsh"
	P2TR        Type = "p2tr"
	OpReturn    Type = "op_return"
	NonStandard Type = "nonstandard"
)

// Result is the outcome of classifying one scriptPubKey. Only the fields
// relevant to Type are populated; address derivation (which needs a coin
// profile) is left to the caller.
type Result struct {
	Type Type

	// PubKeys holds the candidate public key(s): one for P2PK, M..N for
	// P2MS.
	PubKeys [][]byte
	// Hash holds the 20-byte Hash160 for P2PKH/P2SH/P2WPKH, or the
	// 32-byte program for P2WSH/P2TR.
	Hash []byte
	// WitnessVersion is set for P2WPKH (0), P2WSH (0), P2TR (1).
	WitnessVersion byte
	// M, N are the threshold and key count for P2MS.
	M, N int
	// OpReturnPayload is the concatenation of pushes following OP_RETURN.
	OpReturnPayload []byte
}

// isValidPubKey reports whether data is a 33- or 65-byte value that parses
// as a valid secp256k1 public key, the shape check patterns 1 and 4 need.
func isValidPubKey(data []byte) bool {
	if len(data) != 33 && len(data) != 65 {
		return false
	}
	_, err := btcec.ParsePubKey(data)
	return err == nil
}

// Classify pattern-matches scriptPubKey against the nine recognized
// output types, in the fixed recognition order spec'd for Bitcoin-family
// scripts: P2PK, P2PKH, P2SH, P2MS, P2WPKH, P2WSH, P2TR, OP_RETURN, then
// non-standard. The earliest matching pattern wins.
func Classify(scriptPubKey []byte) Result {
	ops, err := disassemble(scriptPubKey)
	if err != nil {
		return Result{Type: NonStandard}
	}

	if r, ok := matchP2PK(ops); ok {
		return r
	}
	if r, ok := matchP2PKH(ops); ok {
		return r
	}
	if r, ok := matchP2SH(ops); ok {
		return r
	}
	if r, ok := matchP2MS(ops); ok {
		return r
	}
	if r, ok := matchP2WPKH(ops); ok {
		return r
	}
	if r, ok := matchP2WSH(ops); ok {
		return r
	}
	if r, ok := matchP2TR(ops); ok {
		return r
	}
	if r, ok := matchOpReturn(ops); ok {
		return r
	}

	return Result{Type: NonStandard}
}

// matchP2PK: <PUSH pubkey (33 or 65 bytes)> OP_CHECKSIG
func matchP2PK(ops []op) (Result, bool) {
	if len(ops) != 2 || ops[1].code != opCheckSig {
		return Result{}, false
	}
	if ops[0].data == nil || !isValidPubKey(ops[0].data) {
		return Result{}, false
	}
	return Result{Type: P2PK, PubKeys: [][]byte{ops[0].data}}, true
}

// matchP2PKH: OP_DUP OP_HASH160 <PUSH 20B> OP_EQUALVERIFY OP_CHECKSIG
func matchP2PKH(ops []op) (Result, bool) {
	if len(ops) != 5 {
		return Result{}, false
	}
	if ops[0].code != opDup || ops[1].code != opHash160 || ops[3].code != opEqualVerify || ops[4].code != opCheckSig {
		return Result{}, false
	}
	if ops[2].data == nil || len(ops[2].data) != 20 {
		return Result{}, false
	}
	return Result{Type: P2PKH, Hash: ops[2].data}, true
}

// matchP2SH: OP_HASH160 <PUSH 20B> OP_EQUAL
func matchP2SH(ops []op) (Result, bool) {
	if len(ops) != 3 {
		return Result{}, false
	}
	if ops[0].code != opHash160 || ops[2].code != opEqual {
		return Result{}, false
	}
	if ops[1].data == nil || len(ops[1].data) != 20 {
		return Result{}, false
	}
	return Result{Type: P2SH, Hash: ops[1].data}, true
}

// matchP2MS: <OP_M> <pubkey>+ <OP_N> OP_CHECKMULTISIG, 1<=M<=N<=3, each
// pushed key 33 or 65 bytes and a valid secp256k1 point.
func matchP2MS(ops []op) (Result, bool) {
	if len(ops) < 4 {
		return Result{}, false
	}
	if ops[len(ops)-1].code != opCheckMultiSig {
		return Result{}, false
	}

	m, ok := isSmallInt(ops[0].code)
	if !ok {
		return Result{}, false
	}
	nOp := ops[len(ops)-2]
	n, ok := isSmallInt(nOp.code)
	if !ok {
		return Result{}, false
	}

	if m < 1 || n > 3 || m > n {
		return Result{}, false
	}

	keyOps := ops[1 : len(ops)-2]
	if len(keyOps) != n {
		return Result{}, false
	}

	pubKeys := make([][]byte, 0, n)
	for _, keyOp := range keyOps {
		if keyOp.data == nil || !isValidPubKey(keyOp.data) {
			return Result{}, false
		}
		pubKeys = append(pubKeys, keyOp.data)
	}

	return Result{Type: P2MS, PubKeys: pubKeys, M: m, N: n}, true
}

// matchP2WPKH: OP_0 <PUSH 20B>
func matchP2WPKH(ops []op) (Result, bool) {
	if len(ops) != 2 || ops[0].code != opFalse {
		return Result{}, false
	}
	if ops[1].data == nil || len(ops[1].data) != 20 {
		return Result{}, false
	}
	return Result{Type: P2WPKH, Hash: ops[1].data, WitnessVersion: 0}, true
}

// matchP2WSH: OP_0 <PUSH 32B>
func matchP2WSH(ops []op) (Result, bool) {
	if len(ops) != 2 || ops[0].code != opFalse {
		return Result{}, false
	}
	if ops[1].data == nil || len(ops[1].data) != 32 {
		return Result{}, false
	}
	return Result{Type: P2WSH, Hash: ops[1].data, WitnessVersion: 0}, true
}

// matchP2TR: OP_1 <PUSH 32B>
func matchP2TR(ops []op) (Result, bool) {
	if len(ops) != 2 || ops[0].code != op1 {
		return Result{}, false
	}
	if ops[1].data == nil || len(ops[1].data) != 32 {
		return Result{}, false
	}
	return Result{Type: P2TR, Hash: ops[1].data, WitnessVersion: 1}, true
}

// matchOpReturn: OP_RETURN <any pushes>
func matchOpReturn(ops []op) (Result, bool) {
	if len(ops) == 0 || ops[0].code != opReturn {
		return Result{}, false
	}

	var payload []byte
	for _, o := range ops[1:] {
		if o.data != nil {
			payload = append(payload, o.data...)
		}
	}
	return Result{Type: OpReturn, OpReturnPayload: payload}, true
}
