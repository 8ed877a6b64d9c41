package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/blockparser/blockparser/internal/utxoconsumer/model"
)

// UnspentOutputs streams every output without a matching spend row to fn,
// one row at a time, so dumping a full UTXO set never materializes it in
// memory.
func (r *Repository) UnspentOutputs(ctx context.Context, coin, network string, fn func(model.UnspentOutput) error) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("unspent_outputs", coin, network, err, start)
	}()

	const query = `
SELECT
	o.txid,
	o.output_index,
	anyLast(o.value) AS value,
	anyLast(o.addresses) AS addresses,
	anyLast(o.block_height) AS block_height
FROM utxo_outputs AS o
LEFT ANTI JOIN utxo_spends AS s
	ON o.coin = s.coin AND o.network = s.network
	AND o.txid = s.prev_txid AND o.output_index = s.prev_index
WHERE o.coin = ? AND o.network = ?
GROUP BY
	o.txid,
	o.output_index
ORDER BY block_height ASC, o.txid ASC, o.output_index ASC`

	rows, err := r.conn.Query(ctx, query, coin, network)
	if err != nil {
		return fmt.Errorf("query unspent outputs: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", cerr)
		}
	}()

	for rows.Next() {
		var out model.UnspentOutput
		if err = rows.Scan(
			&out.TxID,
			&out.Index,
			&out.Value,
			&out.Addresses,
			&out.BlockHeight,
		); err != nil {
			return fmt.Errorf("scan unspent output: %w", err)
		}
		if err = fn(out); err != nil {
			return err
		}
	}

	if err = rows.Err(); err != nil {
		return fmt.Errorf("iterate unspent outputs: %w", err)
	}
	return nil
}
