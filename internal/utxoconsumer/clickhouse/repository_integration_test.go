package clickhouse

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockparser/blockparser/internal/utxoconsumer/model"
)

type noopMetrics struct{}

func (noopMetrics) Observe(string, string, string, error, time.Time) {}

// TestRepositoryRoundTrip exercises the real insert and query paths against
// a live ClickHouse. Set BLOCKPARSER_TEST_CLICKHOUSE_DSN to run it.
func TestRepositoryRoundTrip(t *testing.T) {
	dsn := os.Getenv("BLOCKPARSER_TEST_CLICKHOUSE_DSN")
	if dsn == "" {
		t.Skip("requires a running ClickHouse instance; set BLOCKPARSER_TEST_CLICKHOUSE_DSN")
	}

	ctx := context.Background()
	repo, err := NewRepository(dsn, noopMetrics{})
	require.NoError(t, err)
	defer repo.Close()

	outputs := []model.Output{
		{
			Coin:        "TESTCOIN",
			Network:     "integration",
			BlockHeight: 1,
			BlockTime:   time.Unix(1231006505, 0).UTC(),
			TxID:        "itest-tx-1",
			Index:       0,
			Value:       100,
			ScriptType:  "p2pkh",
			Addresses:   []string{"itest-addr"},
		},
		{
			Coin:        "TESTCOIN",
			Network:     "integration",
			BlockHeight: 1,
			BlockTime:   time.Unix(1231006505, 0).UTC(),
			TxID:        "itest-tx-1",
			Index:       1,
			Value:       50,
			ScriptType:  "p2pkh",
			Addresses:   []string{"itest-addr-2"},
		},
	}
	require.NoError(t, repo.InsertOutputs(ctx, outputs))

	require.NoError(t, repo.InsertSpends(ctx, []model.Spend{
		{
			Coin:        "TESTCOIN",
			Network:     "integration",
			BlockHeight: 2,
			TxID:        "itest-tx-2",
			PrevTxID:    "itest-tx-1",
			PrevIndex:   0,
			Value:       100,
			Addresses:   []string{"itest-addr"},
		},
	}))

	lookups, err := repo.OutputsLookupByTxIDs(ctx, "TESTCOIN", "integration", []string{"itest-tx-1"})
	require.NoError(t, err)
	require.Len(t, lookups["itest-tx-1"], 2)

	var unspent []model.UnspentOutput
	require.NoError(t, repo.UnspentOutputs(ctx, "TESTCOIN", "integration", func(out model.UnspentOutput) error {
		unspent = append(unspent, out)
		return nil
	}))
	require.Len(t, unspent, 1)
	require.Equal(t, uint32(1), unspent[0].Index)

	height, err := repo.MaxBlockHeight(ctx, "TESTCOIN", "integration")
	require.NoError(t, err)
	require.Equal(t, uint64(1), height)
}
