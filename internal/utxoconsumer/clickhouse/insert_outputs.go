package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/blockparser/blockparser/internal/utxoconsumer/model"
)

// InsertOutputs stores created transaction outputs in ClickHouse.
func (r *Repository) InsertOutputs(ctx context.Context, outputs []model.Output) error {
	start := time.Now()
	var err error
	defer func() {
		r.metrics.Observe("insert_outputs", firstCoin(outputs), firstNetwork(outputs), err, start)
	}()

	if len(outputs) == 0 {
		return nil
	}

	const query = `
INSERT INTO utxo_outputs (
	coin,
	network,
	block_height,
	block_time,
	txid,
	output_index,
	value,
	script_type,
	script_hex,
	addresses
) VALUES`

	batch, err := r.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare outputs batch: %w", err)
	}

	for _, output := range outputs {
		if err = batch.Append(
			output.Coin,
			output.Network,
			output.BlockHeight,
			output.BlockTime,
			output.TxID,
			output.Index,
			output.Value,
			output.ScriptType,
			output.ScriptHex,
			output.Addresses,
		); err != nil {
			return fmt.Errorf("append output: %w", err)
		}
	}

	if err = batch.Send(); err != nil {
		return fmt.Errorf("send outputs batch: %w", err)
	}
	return nil
}

func firstCoin(outputs []model.Output) string {
	if len(outputs) == 0 {
		return ""
	}
	return outputs[0].Coin
}

func firstNetwork(outputs []model.Output) string {
	if len(outputs) == 0 {
		return ""
	}
	return outputs[0].Network
}
