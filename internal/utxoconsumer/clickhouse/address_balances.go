package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/blockparser/blockparser/internal/utxoconsumer/model"
)

// AddressBalances streams the per-address sum of unspent output values to
// fn in descending balance order.
func (r *Repository) AddressBalances(ctx context.Context, coin, network string, fn func(model.AddressBalance) error) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("address_balances", coin, network, err, start)
	}()

	const query = `
SELECT
	address,
	sum(value) AS balance
FROM (
	SELECT
		anyLast(o.value) AS value,
		anyLast(o.addresses) AS addresses
	FROM utxo_outputs AS o
	LEFT ANTI JOIN utxo_spends AS s
		ON o.coin = s.coin AND o.network = s.network
		AND o.txid = s.prev_txid AND o.output_index = s.prev_index
	WHERE o.coin = ? AND o.network = ?
	GROUP BY
		o.txid,
		o.output_index
)
ARRAY JOIN addresses AS address
GROUP BY address
ORDER BY balance DESC, address ASC`

	rows, err := r.conn.Query(ctx, query, coin, network)
	if err != nil {
		return fmt.Errorf("query address balances: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close rows: %w", cerr)
		}
	}()

	for rows.Next() {
		var bal model.AddressBalance
		if err = rows.Scan(&bal.Address, &bal.Balance); err != nil {
			return fmt.Errorf("scan address balance: %w", err)
		}
		if err = fn(bal); err != nil {
			return err
		}
	}

	if err = rows.Err(); err != nil {
		return fmt.Errorf("iterate address balances: %w", err)
	}
	return nil
}
