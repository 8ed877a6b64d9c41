package clickhouse

import (
	"context"
	"fmt"
	"time"
)

// MaxBlockHeight returns the highest block height already persisted for a
// coin/network pair, so a resumed run can be sanity-checked against the
// chain index's watermark before re-ingesting.
func (r *Repository) MaxBlockHeight(ctx context.Context, coin, network string) (uint64, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("max_block_height", coin, network, err, start)
	}()

	const query = `
SELECT max(block_height)
FROM utxo_outputs
WHERE coin = ? AND network = ?`

	var height uint64
	row := r.conn.QueryRow(ctx, query, coin, network)
	if err = row.Scan(&height); err != nil {
		return 0, fmt.Errorf("scan max block height: %w", err)
	}
	return height, nil
}
