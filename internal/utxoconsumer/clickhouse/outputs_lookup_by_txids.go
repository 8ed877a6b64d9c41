package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/blockparser/blockparser/internal/utxoconsumer/model"
)

// OutputsLookupByTxIDs returns the outputs of multiple transactions, keyed
// by txid, for spend resolution.
func (r *Repository) OutputsLookupByTxIDs(ctx context.Context, coin, network string, txids []string) (map[string][]model.OutputLookup, error) {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("outputs_lookup_by_txids", coin, network, err, start)
	}()

	result := make(map[string][]model.OutputLookup, len(txids))
	if len(txids) == 0 {
		return result, nil
	}

	const query = `
SELECT
	txid,
	output_index,
	anyLast(value) AS value,
	anyLast(addresses) AS addresses
FROM utxo_outputs
WHERE coin = ? AND network = ? AND txid IN ?
GROUP BY
	txid,
	output_index
ORDER BY output_index ASC
SETTINGS max_threads = 1`

	rows, err := r.conn.Query(ctx, query, coin, network, txids)
	if err != nil {
		return nil, fmt.Errorf("query outputs by txids: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", cerr)
		}
	}()

	for rows.Next() {
		var lookup model.OutputLookup
		if err = rows.Scan(
			&lookup.TxID,
			&lookup.Index,
			&lookup.Value,
			&lookup.Addresses,
		); err != nil {
			return nil, fmt.Errorf("scan output lookup: %w", err)
		}

		result[lookup.TxID] = append(result[lookup.TxID], lookup)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate output lookups: %w", err)
	}

	return result, nil
}
