package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/blockparser/blockparser/internal/utxoconsumer/model"
)

// InsertSpends stores consumed outpoints in ClickHouse.
func (r *Repository) InsertSpends(ctx context.Context, spends []model.Spend) error {
	start := time.Now()
	var err error
	defer func() {
		coin, network := "", ""
		if len(spends) > 0 {
			coin, network = spends[0].Coin, spends[0].Network
		}
		r.metrics.Observe("insert_spends", coin, network, err, start)
	}()

	if len(spends) == 0 {
		return nil
	}

	const query = `
INSERT INTO utxo_spends (
	coin,
	network,
	block_height,
	txid,
	prev_txid,
	prev_index,
	value,
	addresses
) VALUES`

	batch, err := r.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare spends batch: %w", err)
	}

	for _, spend := range spends {
		if err = batch.Append(
			spend.Coin,
			spend.Network,
			spend.BlockHeight,
			spend.TxID,
			spend.PrevTxID,
			spend.PrevIndex,
			spend.Value,
			spend.Addresses,
		); err != nil {
			return fmt.Errorf("append spend: %w", err)
		}
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("send spends batch: %w", err)
	}
	return nil
}
