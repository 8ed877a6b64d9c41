package chainindex

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blockparser/blockparser/internal/coinprofile"
)

const testMagic = 0xd9b4bef9

// testHeader builds a syntactically valid 80-byte header. nonce makes
// sibling headers distinct; bits stays zero so accumulated work never
// decides a test's outcome unless the test sets it explicitly.
func testHeader(prev chainhash.Hash, nonce uint32) []byte {
	h := make([]byte, 80)
	binary.LittleEndian.PutUint32(h[0:4], 1)
	copy(h[4:36], prev[:])
	binary.LittleEndian.PutUint32(h[76:80], nonce)
	return h
}

func headerHash(h []byte) chainhash.Hash {
	return chainhash.DoubleHashH(h)
}

// testChain builds n headers chained from a zero prev_hash.
func testChain(n int) ([][]byte, []chainhash.Hash) {
	headers := make([][]byte, n)
	hashes := make([]chainhash.Hash, n)
	var prev chainhash.Hash
	for i := 0; i < n; i++ {
		headers[i] = testHeader(prev, uint32(i))
		hashes[i] = headerHash(headers[i])
		prev = hashes[i]
	}
	return headers, hashes
}

func testProfile(genesis chainhash.Hash) *coinprofile.Profile {
	return &coinprofile.Profile{
		Name:        "BTC",
		Network:     coinprofile.Mainnet,
		Magic:       testMagic,
		GenesisHash: genesis.String(),
	}
}

func writeBlockFile(t *testing.T, dir string, id int, raws ...[]byte) string {
	t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("blk%05d.dat", id))
	f, err := os.Create(path)
	require.NoError(t, err)
	for _, raw := range raws {
		var hdr [8]byte
		binary.LittleEndian.PutUint32(hdr[:4], testMagic)
		binary.LittleEndian.PutUint32(hdr[4:], uint32(len(raw)))
		_, err = f.Write(hdr[:])
		require.NoError(t, err)
		_, err = f.Write(raw)
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())
	return path
}

func TestCollectAndSelectLinearChainAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	headers, hashes := testChain(3)

	// Heights 0 and 2 land in file 0, height 1 in file 1: reception order,
	// not height order, like a real corpus.
	writeBlockFile(t, dir, 0, headers[0], headers[2])
	writeBlockFile(t, dir, 1, headers[1])

	b := &Builder{Profile: testProfile(hashes[0]), Workers: 2}
	collected, err := b.CollectHeaders(context.Background(), dir, 0)
	require.NoError(t, err)
	require.Len(t, collected, 3)

	idx, err := b.SelectCanonicalChain(collected)
	require.NoError(t, err)
	assert.Equal(t, hashes, idx.Hashes)
	assert.Equal(t, 2, idx.Watermark())
}

func TestSelectExcludesOrphanBranch(t *testing.T) {
	dir := t.TempDir()
	headers, hashes := testChain(11)

	// A fork of length 1 off height 5 with no successors.
	orphan := testHeader(hashes[5], 0xdead)
	orphanHash := headerHash(orphan)

	all := append(append([][]byte{}, headers...), orphan)
	writeBlockFile(t, dir, 0, all...)

	b := &Builder{Profile: testProfile(hashes[0]), Workers: 1}
	collected, err := b.CollectHeaders(context.Background(), dir, 0)
	require.NoError(t, err)

	idx, err := b.SelectCanonicalChain(collected)
	require.NoError(t, err)
	require.Len(t, idx.Hashes, 11)
	for _, h := range idx.Hashes {
		assert.NotEqual(t, orphanHash, h)
	}
}

func TestSelectTieBreakByGreatestTipHash(t *testing.T) {
	genesis := testHeader(chainhash.Hash{}, 0)
	genesisHash := headerHash(genesis)

	childA := testHeader(genesisHash, 1)
	childB := testHeader(genesisHash, 2)
	hashA, hashB := headerHash(childA), headerHash(childB)

	dir := t.TempDir()
	writeBlockFile(t, dir, 0, genesis, childA, childB)

	b := &Builder{Profile: testProfile(genesisHash), Workers: 1}
	collected, err := b.CollectHeaders(context.Background(), dir, 0)
	require.NoError(t, err)

	idx, err := b.SelectCanonicalChain(collected)
	require.NoError(t, err)
	require.Len(t, idx.Hashes, 2)

	want := hashA
	if compareHashes(hashB, hashA) > 0 {
		want = hashB
	}
	tip, ok := idx.Tip()
	require.True(t, ok)
	assert.Equal(t, want, tip)
}

func compareHashes(a, b chainhash.Hash) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] > b[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

func TestSelectMissingGenesis(t *testing.T) {
	dir := t.TempDir()
	headers, hashes := testChain(3)
	writeBlockFile(t, dir, 0, headers[1], headers[2])

	b := &Builder{Profile: testProfile(hashes[0]), Workers: 1}
	collected, err := b.CollectHeaders(context.Background(), dir, 0)
	require.NoError(t, err)

	_, err = b.SelectCanonicalChain(collected)
	assert.ErrorIs(t, err, ErrMissingGenesis)
}

func TestStorageRoundTripAndTailInvariant(t *testing.T) {
	_, hashes := testChain(4)
	idx := Index{Coin: "BTC", Hashes: hashes}

	path := filepath.Join(t.TempDir(), "chain.json")
	require.NoError(t, Save(path, idx, 7))

	loaded, maxFileID, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, idx, loaded)
	assert.Equal(t, 7, maxFileID)

	// The commit invariant is checkable from the file tail alone.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tail := data
	if len(tail) > 100 {
		tail = tail[len(tail)-100:]
	}
	assert.Contains(t, string(tail), `"hashes_len":4,"index":4}`)
}

func TestLoadRejectsPartialCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.json")
	partial := `{"coin":"BTC","max_file_id":0,"hashes":["` +
		chainhash.Hash{}.String() + `"],"hashes_len":2,"index":1}`
	require.NoError(t, os.WriteFile(path, []byte(partial), 0o644))

	_, _, err := Load(path)
	assert.ErrorIs(t, err, ErrInconsistentStorage)
}

func TestLoadRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, _, err := Load(path)
	assert.ErrorIs(t, err, ErrInconsistentStorage)
}

func TestBuildResumeSkipsAlreadyIndexedFiles(t *testing.T) {
	dir := t.TempDir()
	headers, hashes := testChain(5)

	file0 := writeBlockFile(t, dir, 0, headers[0], headers[1], headers[2])
	storage := filepath.Join(t.TempDir(), "chain.json")

	b := &Builder{Profile: testProfile(hashes[0]), Workers: 2}
	idx, err := b.Build(context.Background(), dir, storage, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 2, idx.Watermark())

	// Replace the already-indexed file with a longer competing branch and
	// extend the corpus. A resumed build must not re-scan file 0, so the
	// competing branch stays invisible and the stored prefix wins.
	require.NoError(t, os.Remove(file0))
	alt := make([][]byte, 6)
	prev := hashes[0]
	for i := range alt {
		alt[i] = testHeader(prev, uint32(0x1000+i))
		prev = headerHash(alt[i])
	}
	writeBlockFile(t, dir, 0, alt...)
	writeBlockFile(t, dir, 1, headers[3], headers[4])

	idx2, err := b.Build(context.Background(), dir, storage, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, hashes, idx2.Hashes)
}

func TestBuildDiscardsInconsistentStorage(t *testing.T) {
	dir := t.TempDir()
	headers, hashes := testChain(2)
	writeBlockFile(t, dir, 0, headers[0], headers[1])

	storage := filepath.Join(t.TempDir(), "chain.json")
	require.NoError(t, os.WriteFile(storage, []byte(`{"hashes_len":9,"index":3}`), 0o644))

	b := &Builder{Profile: testProfile(hashes[0]), Workers: 1}
	idx, err := b.Build(context.Background(), dir, storage, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, hashes, idx.Hashes)

	// The rebuild recommitted a consistent file.
	_, _, err = Load(storage)
	assert.NoError(t, err)
}
