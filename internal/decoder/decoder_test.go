package decoder

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockparser/blockparser/internal/coinprofile"
)

func varint(n uint64) []byte {
	switch {
	case n < 0xfd:
		return []byte{byte(n)}
	case n <= 0xffff:
		b := make([]byte, 3)
		b[0] = 0xfd
		binary.LittleEndian.PutUint16(b[1:], uint16(n))
		return b
	default:
		b := make([]byte, 9)
		b[0] = 0xff
		binary.LittleEndian.PutUint64(b[1:], n)
		return b
	}
}

func varBytes(b []byte) []byte {
	out := varint(uint64(len(b)))
	return append(out, b...)
}

func u32le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func u64le(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// buildLegacyTx serializes a non-segwit transaction with a single coinbase
// input and a single output paying to scriptPubKey.
func buildLegacyTx(t *testing.T, scriptSig, scriptPubKey []byte, value uint64) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(u32le(1)) // version

	buf.Write(varint(1)) // input count
	buf.Write(bytes.Repeat([]byte{0x00}, 32))
	buf.Write(u32le(0xFFFFFFFF))
	buf.Write(varBytes(scriptSig))
	buf.Write(u32le(0xFFFFFFFF)) // sequence

	buf.Write(varint(1)) // output count
	buf.Write(u64le(value))
	buf.Write(varBytes(scriptPubKey))

	buf.Write(u32le(0)) // locktime
	return buf.Bytes()
}

func buildBlock(t *testing.T, txs [][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(u32le(1))                            // version
	buf.Write(bytes.Repeat([]byte{0x00}, 32))      // prev hash
	buf.Write(bytes.Repeat([]byte{0x00}, 32))      // merkle root (placeholder)
	buf.Write(u32le(1231006505))                   // time
	buf.Write(u32le(0x1d00ffff))                   // bits
	buf.Write(u32le(2083236893))                   // nonce
	buf.Write(varint(uint64(len(txs))))            // tx count
	for _, tx := range txs {
		buf.Write(tx)
	}
	return buf.Bytes()
}

func TestDecodeBlockCoinbaseOnly(t *testing.T) {
	profile, ok := coinprofile.Builtin("BTC", coinprofile.Mainnet)
	require.True(t, ok)

	scriptSig := []byte("arbitrary coinbase data")
	pubKey := mustHexDecode(t, "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798")
	scriptPubKey := append([]byte{byte(len(pubKey))}, pubKey...)
	scriptPubKey = append(scriptPubKey, 0xac) // OP_CHECKSIG

	tx := buildLegacyTx(t, scriptSig, scriptPubKey, 5000000000)
	raw := buildBlock(t, [][]byte{tx})

	block, err := DecodeBlock(raw, 0, 0, &profile)
	require.NoError(t, err)

	require.Len(t, block.Transactions, 1)
	got := block.Transactions[0]

	assert.True(t, got.Inputs[0].IsCoinbase)
	assert.False(t, got.HasWitness)
	assert.Equal(t, got.TxID, got.WTxID, "non-segwit tx must have txid == wtxid")

	require.Len(t, got.Outputs, 1)
	assert.Equal(t, "p2pk", got.Outputs[0].ScriptType)
	require.Len(t, got.Outputs[0].Addresses, 1)

	wantTxID := chainhash.DoubleHashH(tx)
	assert.Equal(t, wantTxID, got.TxID)
}

func TestDeriveAddressesOpReturnIsEmpty(t *testing.T) {
	profile, ok := coinprofile.Builtin("BTC", coinprofile.Mainnet)
	require.True(t, ok)

	scriptPubKey := append([]byte{0x6a}, varBytes([]byte("hello"))...)
	tx := buildLegacyTx(t, []byte{}, scriptPubKey, 0)
	raw := buildBlock(t, [][]byte{tx})

	block, err := DecodeBlock(raw, 0, 0, &profile)
	require.NoError(t, err)

	out := block.Transactions[0].Outputs[0]
	assert.Equal(t, "op_return", out.ScriptType)
	assert.Empty(t, out.Addresses)
	assert.Equal(t, []byte("hello"), out.OpReturnData)
}

func mustHexDecode(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}
