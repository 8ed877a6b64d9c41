package utxoconsumer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blockparser/blockparser/internal/coinprofile"
	"github.com/blockparser/blockparser/internal/decoder"
	"github.com/blockparser/blockparser/internal/utxoconsumer/model"
)

type fakeRepo struct {
	mu      sync.Mutex
	outputs []model.Output
	spends  []model.Spend
	lookups map[string][]model.OutputLookup
	unspent []model.UnspentOutput
}

func (f *fakeRepo) InsertOutputs(_ context.Context, outputs []model.Output) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs = append(f.outputs, outputs...)
	return nil
}

func (f *fakeRepo) InsertSpends(_ context.Context, spends []model.Spend) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spends = append(f.spends, spends...)
	return nil
}

func (f *fakeRepo) OutputsLookupByTxIDs(_ context.Context, _, _ string, txids []string) (map[string][]model.OutputLookup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := make(map[string][]model.OutputLookup)
	for _, txid := range txids {
		if outs, ok := f.lookups[txid]; ok {
			result[txid] = outs
		}
	}
	return result, nil
}

func (f *fakeRepo) UnspentOutputs(_ context.Context, _, _ string, fn func(model.UnspentOutput) error) error {
	for _, out := range f.unspent {
		if err := fn(out); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRepo) AddressBalances(_ context.Context, _, _ string, fn func(model.AddressBalance) error) error {
	return fn(model.AddressBalance{Address: "addr1", Balance: 150})
}

func hashWithByte(b byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = b
	return h
}

var testProfile = &coinprofile.Profile{Name: "BTC", Network: coinprofile.Mainnet}

func TestConsumerIngestsOutputsAndResolvesSpends(t *testing.T) {
	ctx := context.Background()

	oldTxID := hashWithByte(0x01)
	tx1ID := hashWithByte(0x02)
	tx2ID := hashWithByte(0x03)

	repo := &fakeRepo{
		lookups: map[string][]model.OutputLookup{
			oldTxID.String(): {{TxID: oldTxID.String(), Index: 0, Value: 999, Addresses: []string{"old-addr"}}},
		},
	}

	c := New(zap.NewNop(), repo, ModeUnspentDump)
	require.NoError(t, c.OnStart(ctx, testProfile, t.TempDir()))

	// Block 10: a coinbase creating two outputs.
	block10 := decoder.Block{
		Header: decoder.Header{Time: 1231006505},
		Transactions: []decoder.Transaction{
			{
				TxID: tx1ID,
				Inputs: []decoder.TxIn{
					{PrevIndex: 0xFFFFFFFF, IsCoinbase: true},
				},
				Outputs: []decoder.TxOut{
					{Value: 100, Addresses: []string{"addr-a"}},
					{Value: 50, Addresses: []string{"addr-b"}},
				},
			},
		},
	}
	require.NoError(t, c.OnBlock(ctx, 10, block10))

	// Block 11 spends one output created in block 10 (resolved from the
	// seeded cache) and one pre-run outpoint (resolved from the repo).
	block11 := decoder.Block{
		Header: decoder.Header{Time: 1231006506},
		Transactions: []decoder.Transaction{
			{
				TxID: tx2ID,
				Inputs: []decoder.TxIn{
					{PrevTxID: tx1ID, PrevIndex: 1},
					{PrevTxID: oldTxID, PrevIndex: 0},
				},
				Outputs: []decoder.TxOut{
					{Value: 1040, Addresses: []string{"addr-c"}},
				},
			},
		},
	}
	require.NoError(t, c.OnBlock(ctx, 11, block11))

	summary, err := c.OnComplete(ctx)
	require.NoError(t, err)
	assert.Contains(t, summary, "3 outputs")
	assert.Contains(t, summary, "2 spends")
	assert.Contains(t, summary, "0 unresolved")

	require.Len(t, repo.outputs, 3)
	require.Len(t, repo.spends, 2)

	byPrev := make(map[string]model.Spend)
	for _, s := range repo.spends {
		byPrev[s.PrevTxID] = s
	}
	assert.Equal(t, uint64(50), byPrev[tx1ID.String()].Value)
	assert.Equal(t, []string{"addr-b"}, byPrev[tx1ID.String()].Addresses)
	assert.Equal(t, uint64(999), byPrev[oldTxID.String()].Value)
}

func TestConsumerDumpsUnspentCSV(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	repo := &fakeRepo{
		lookups: map[string][]model.OutputLookup{},
		unspent: []model.UnspentOutput{
			{TxID: "aa", Index: 0, Value: 100, Addresses: []string{"addr-a"}, BlockHeight: 3},
		},
	}

	c := New(zap.NewNop(), repo, ModeUnspentDump)
	require.NoError(t, c.OnStart(ctx, testProfile, dir))
	summary, err := c.OnComplete(ctx)
	require.NoError(t, err)
	assert.Contains(t, summary, "unspent.csv")

	data, err := os.ReadFile(filepath.Join(dir, "unspent.csv"))
	require.NoError(t, err)
	assert.Equal(t, "aa;0;3;100;addr-a\n", string(data))
}

func TestConsumerDumpsBalancesCSV(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	repo := &fakeRepo{lookups: map[string][]model.OutputLookup{}}

	c := New(zap.NewNop(), repo, ModeBalances)
	require.NoError(t, c.OnStart(ctx, testProfile, dir))
	summary, err := c.OnComplete(ctx)
	require.NoError(t, err)
	assert.Contains(t, summary, "balances.csv")

	data, err := os.ReadFile(filepath.Join(dir, "balances.csv"))
	require.NoError(t, err)
	assert.Equal(t, "addr1;150\n", string(data))
}
