package decoder

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/blockparser/blockparser/internal/blockio"
	"github.com/blockparser/blockparser/internal/coinprofile"
	"github.com/blockparser/blockparser/internal/cryptoutil"
	"github.com/blockparser/blockparser/internal/script"
	"github.com/blockparser/blockparser/pkg/safe"
)

var segwitMarker = [2]byte{0x00, 0x01}

// DecodeBlock decodes one raw block (as produced by blockfile.Record) into
// a fully structured Block, classifying every output and deriving
// addresses per profile.
func DecodeBlock(raw []byte, fileID int, offset int64, profile *coinprofile.Profile) (Block, error) {
	c := blockio.NewCursor(raw)

	header, err := decodeHeader(c)
	if err != nil {
		return Block{}, fmt.Errorf("decode header: %w", err)
	}

	txCount, err := c.ReadVarint()
	if err != nil {
		return Block{}, fmt.Errorf("decode tx count: %w", err)
	}

	txs := make([]Transaction, 0, txCount)
	for i := uint64(0); i < txCount; i++ {
		tx, err := decodeTransaction(c, profile)
		if err != nil {
			return Block{}, fmt.Errorf("decode transaction %d: %w", i, err)
		}
		txs = append(txs, tx)
	}

	size, err := safe.Uint32(len(raw))
	if err != nil {
		return Block{}, fmt.Errorf("block size: %w", err)
	}

	headerBytes := raw[:HeaderSize]
	return Block{
		Header:       header,
		Hash:         chainhash.DoubleHashH(headerBytes),
		Size:         size,
		FileID:       fileID,
		Offset:       offset,
		Transactions: txs,
	}, nil
}

func decodeHeader(c *blockio.Cursor) (Header, error) {
	version, err := c.ReadInt32LE()
	if err != nil {
		return Header{}, err
	}
	prevHashBytes, err := c.ReadFixed(32)
	if err != nil {
		return Header{}, err
	}
	merkleRootBytes, err := c.ReadFixed(32)
	if err != nil {
		return Header{}, err
	}
	t, err := c.ReadUint32LE()
	if err != nil {
		return Header{}, err
	}
	bits, err := c.ReadUint32LE()
	if err != nil {
		return Header{}, err
	}
	nonce, err := c.ReadUint32LE()
	if err != nil {
		return Header{}, err
	}

	var h Header
	h.Version = version
	copy(h.PrevHash[:], prevHashBytes)
	copy(h.MerkleRoot[:], merkleRootBytes)
	h.Time = t
	h.Bits = bits
	h.Nonce = nonce
	return h, nil
}

// decodeTransaction decodes one transaction starting at the cursor's
// current offset, computing both txid (legacy serialization, no witness)
// and wtxid (full serialization) by slicing the original byte ranges
// rather than reserializing field-by-field.
func decodeTransaction(c *blockio.Cursor, profile *coinprofile.Profile) (Transaction, error) {
	buf := c.Buffer()
	txStart := c.Offset()

	version, err := c.ReadInt32LE()
	if err != nil {
		return Transaction{}, err
	}

	hasWitness := false
	if profile.SegwitEnabled {
		if peek := c.Remaining(); len(peek) >= 2 && peek[0] == segwitMarker[0] && peek[1] == segwitMarker[1] {
			if _, err := c.ReadFixed(2); err != nil {
				return Transaction{}, err
			}
			hasWitness = true
		}
	}

	legacyPrefixEnd := c.Offset()

	inCount, err := c.ReadVarint()
	if err != nil {
		return Transaction{}, fmt.Errorf("input count: %w", err)
	}

	inputs := make([]TxIn, 0, inCount)
	for i := uint64(0); i < inCount; i++ {
		in, err := decodeTxIn(c)
		if err != nil {
			return Transaction{}, fmt.Errorf("input %d: %w", i, err)
		}
		inputs = append(inputs, in)
	}

	outCount, err := c.ReadVarint()
	if err != nil {
		return Transaction{}, fmt.Errorf("output count: %w", err)
	}

	outputs := make([]TxOut, 0, outCount)
	for i := uint64(0); i < outCount; i++ {
		out, err := decodeTxOut(c, profile)
		if err != nil {
			return Transaction{}, fmt.Errorf("output %d: %w", i, err)
		}
		outputs = append(outputs, out)
	}

	legacySuffixEnd := c.Offset()

	if hasWitness {
		for i := range inputs {
			stackLen, err := c.ReadVarint()
			if err != nil {
				return Transaction{}, fmt.Errorf("witness stack length for input %d: %w", i, err)
			}
			stack := make([][]byte, 0, stackLen)
			for j := uint64(0); j < stackLen; j++ {
				item, err := c.ReadVarBytes()
				if err != nil {
					return Transaction{}, fmt.Errorf("witness item %d for input %d: %w", j, i, err)
				}
				stack = append(stack, append([]byte(nil), item...))
			}
			inputs[i].Witness = stack
		}
	}

	lockTimeStart := c.Offset()
	lockTime, err := c.ReadUint32LE()
	if err != nil {
		return Transaction{}, fmt.Errorf("locktime: %w", err)
	}
	txEnd := c.Offset()

	legacyBytes := make([]byte, 0, 4+(legacySuffixEnd-legacyPrefixEnd)+4)
	legacyBytes = append(legacyBytes, buf[txStart:txStart+4]...)
	legacyBytes = append(legacyBytes, buf[legacyPrefixEnd:legacySuffixEnd]...)
	legacyBytes = append(legacyBytes, buf[lockTimeStart:lockTimeStart+4]...)

	txid := chainhash.DoubleHashH(legacyBytes)
	wtxid := txid
	if hasWitness {
		wtxid = chainhash.DoubleHashH(buf[txStart:txEnd])
	}

	return Transaction{
		Version:    version,
		HasWitness: hasWitness,
		Inputs:     inputs,
		Outputs:    outputs,
		LockTime:   lockTime,
		TxID:       txid,
		WTxID:      wtxid,
	}, nil
}

var coinbasePrevTxID chainhash.Hash // zero value: 32 zero bytes

const coinbasePrevIndex = 0xFFFFFFFF

func decodeTxIn(c *blockio.Cursor) (TxIn, error) {
	prevTxIDBytes, err := c.ReadFixed(32)
	if err != nil {
		return TxIn{}, err
	}
	prevIndex, err := c.ReadUint32LE()
	if err != nil {
		return TxIn{}, err
	}
	scriptSig, err := c.ReadVarBytes()
	if err != nil {
		return TxIn{}, err
	}
	sequence, err := c.ReadUint32LE()
	if err != nil {
		return TxIn{}, err
	}

	var prevTxID chainhash.Hash
	copy(prevTxID[:], prevTxIDBytes)

	return TxIn{
		PrevTxID:   prevTxID,
		PrevIndex:  prevIndex,
		ScriptSig:  append([]byte(nil), scriptSig...),
		Sequence:   sequence,
		IsCoinbase: prevTxID == coinbasePrevTxID && prevIndex == coinbasePrevIndex,
	}, nil
}

func decodeTxOut(c *blockio.Cursor, profile *coinprofile.Profile) (TxOut, error) {
	value, err := c.ReadUint64LE()
	if err != nil {
		return TxOut{}, err
	}
	scriptPubKey, err := c.ReadVarBytes()
	if err != nil {
		return TxOut{}, err
	}
	scriptPubKey = append([]byte(nil), scriptPubKey...)

	classified := script.Classify(scriptPubKey)
	addresses := DeriveAddresses(classified, profile)

	return TxOut{
		Value:        value,
		ScriptPubKey: scriptPubKey,
		ScriptType:   string(classified.Type),
		Addresses:    addresses,
		OpReturnData: classified.OpReturnPayload,
	}, nil
}

// DeriveAddresses turns a classified scriptPubKey into the address
// string(s) it implies, parameterized by the coin profile supplying
// version bytes and HRP. Patterns that carry no hash or key (OP_RETURN,
// non-standard) yield no addresses.
func DeriveAddresses(r script.Result, profile *coinprofile.Profile) []string {
	switch r.Type {
	case script.P2PKH, script.P2WPKH:
		if r.Type == script.P2WPKH {
			if !profile.HasBech32() {
				return nil
			}
			addr, err := cryptoutil.SegwitAddress(profile.Bech32HRP, r.WitnessVersion, r.Hash)
			if err != nil {
				return nil
			}
			return []string{addr}
		}
		return []string{cryptoutil.Base58CheckAddress(profile.P2PKHVersion, r.Hash)}
	case script.P2SH:
		return []string{cryptoutil.Base58CheckAddress(profile.P2SHVersion, r.Hash)}
	case script.P2WSH, script.P2TR:
		if !profile.HasBech32() {
			return nil
		}
		addr, err := cryptoutil.SegwitAddress(profile.Bech32HRP, r.WitnessVersion, r.Hash)
		if err != nil {
			return nil
		}
		return []string{addr}
	case script.P2PK:
		hash := cryptoutil.Hash160(r.PubKeys[0])
		return []string{cryptoutil.Base58CheckAddress(profile.P2PKHVersion, hash)}
	case script.P2MS:
		addrs := make([]string, 0, len(r.PubKeys))
		for _, pk := range r.PubKeys {
			addrs = append(addrs, cryptoutil.Base58CheckAddress(profile.P2PKHVersion, cryptoutil.Hash160(pk)))
		}
		return addrs
	default:
		return nil
	}
}
