// Package utxoconsumer tracks the unspent-output set and address balances
// in ClickHouse while blocks stream through, then dumps either the UTXO
// set or per-address balances as CSV when the run completes.
package utxoconsumer

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blockparser/blockparser/internal/coinprofile"
	"github.com/blockparser/blockparser/internal/consumer"
	"github.com/blockparser/blockparser/internal/decoder"
	"github.com/blockparser/blockparser/internal/utxoconsumer/model"
	"github.com/blockparser/blockparser/pkg/batcher"
)

const (
	outputBatcherCapacity = 5000
	spendBatcherCapacity  = 5000
	batcherFlushInterval  = 5 * time.Second
	batcherRPS            = 10
)

// Mode selects what OnComplete dumps once ingestion is done.
type Mode string

const (
	// ModeUnspentDump writes unspent.csv: every unspent output.
	ModeUnspentDump Mode = "unspentcsvdump"
	// ModeBalances writes balances.csv: per-address unspent sums.
	ModeBalances Mode = "balances"
)

// Repository is what the consumer needs from ClickHouse.
type Repository interface {
	InsertOutputs(ctx context.Context, outputs []model.Output) error
	InsertSpends(ctx context.Context, spends []model.Spend) error
	OutputsLookupByTxIDs(ctx context.Context, coin, network string, txids []string) (map[string][]model.OutputLookup, error)
	UnspentOutputs(ctx context.Context, coin, network string, fn func(model.UnspentOutput) error) error
	AddressBalances(ctx context.Context, coin, network string, fn func(model.AddressBalance) error) error
}

// Consumer implements consumer.Consumer on top of a ClickHouse-backed
// output/spend store.
type Consumer struct {
	logger *zap.Logger
	repo   Repository
	mode   Mode

	coin      string
	network   string
	outputDir string

	resolver      *Resolver
	outputBatcher *batcher.Batcher[model.Output]
	spendBatcher  *batcher.Batcher[model.Spend]

	mu       sync.Mutex
	flushErr error

	outputs    uint64
	spends     uint64
	unresolved uint64
}

var _ consumer.Consumer = (*Consumer)(nil)

// New builds a UTXO consumer in the given dump mode.
func New(logger *zap.Logger, repo Repository, mode Mode) *Consumer {
	return &Consumer{logger: logger, repo: repo, mode: mode}
}

func (c *Consumer) OnStart(ctx context.Context, profile *coinprofile.Profile, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	c.coin = profile.Name
	c.network = string(profile.Network)
	c.outputDir = outputDir
	c.resolver = NewResolver(c.repo, c.coin, c.network)

	c.outputBatcher = batcher.New[model.Output](
		c.logger.Named("outputBatcher"),
		c.flushOutputs,
		outputBatcherCapacity,
		batcherFlushInterval,
		batcherRPS,
	)
	c.spendBatcher = batcher.New[model.Spend](
		c.logger.Named("spendBatcher"),
		c.flushSpends,
		spendBatcherCapacity,
		batcherFlushInterval,
		batcherRPS,
	)
	c.outputBatcher.Start(ctx)
	c.spendBatcher.Start(ctx)
	return nil
}

func (c *Consumer) flushOutputs(ctx context.Context, outputs []model.Output) error {
	err := c.repo.InsertOutputs(ctx, outputs)
	if err != nil {
		c.recordErr(err)
	}
	return err
}

func (c *Consumer) flushSpends(ctx context.Context, spends []model.Spend) error {
	err := c.repo.InsertSpends(ctx, spends)
	if err != nil {
		c.recordErr(err)
	}
	return err
}

func (c *Consumer) recordErr(err error) {
	c.mu.Lock()
	if c.flushErr == nil {
		c.flushErr = err
	}
	c.mu.Unlock()
}

func (c *Consumer) firstErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushErr
}

// OnBlock seeds every output the block creates, then resolves and records
// every outpoint it spends. Seeding the whole block first matters: a
// transaction may spend an output created earlier in the same block.
func (c *Consumer) OnBlock(ctx context.Context, height uint64, block decoder.Block) error {
	if err := c.firstErr(); err != nil {
		return fmt.Errorf("clickhouse flush: %w", err)
	}

	blockTime := time.Unix(int64(block.Header.Time), 0).UTC()

	for _, tx := range block.Transactions {
		txid := tx.TxID.String()
		lookups := make([]model.OutputLookup, len(tx.Outputs))

		for i, out := range tx.Outputs {
			lookups[i] = model.OutputLookup{
				TxID:      txid,
				Index:     uint32(i),
				Value:     out.Value,
				Addresses: out.Addresses,
			}

			if err := c.outputBatcher.Add(ctx, model.Output{
				Coin:        c.coin,
				Network:     c.network,
				BlockHeight: height,
				BlockTime:   blockTime,
				TxID:        txid,
				Index:       uint32(i),
				Value:       out.Value,
				ScriptType:  out.ScriptType,
				ScriptHex:   hex.EncodeToString(out.ScriptPubKey),
				Addresses:   out.Addresses,
			}); err != nil {
				return err
			}
			c.outputs++
		}

		c.resolver.Seed(txid, lookups)
	}

	for _, tx := range block.Transactions {
		txid := tx.TxID.String()

		prevTxIDs := make([]string, 0, len(tx.Inputs))
		for _, in := range tx.Inputs {
			if in.IsCoinbase {
				continue
			}
			prevTxIDs = append(prevTxIDs, in.PrevTxID.String())
		}
		if len(prevTxIDs) == 0 {
			continue
		}

		resolved, err := c.resolver.ResolveBatch(ctx, prevTxIDs)
		if err != nil {
			return err
		}

		for _, in := range tx.Inputs {
			if in.IsCoinbase {
				continue
			}
			prevTxID := in.PrevTxID.String()

			var lookup *model.OutputLookup
			for i := range resolved[prevTxID] {
				if resolved[prevTxID][i].Index == in.PrevIndex {
					lookup = &resolved[prevTxID][i]
					break
				}
			}
			if lookup == nil {
				c.unresolved++
				c.logger.Warn("unresolved outpoint",
					zap.Uint64("height", height),
					zap.String("prev_txid", prevTxID),
					zap.Uint32("prev_index", in.PrevIndex))
				continue
			}

			if err := c.spendBatcher.Add(ctx, model.Spend{
				Coin:        c.coin,
				Network:     c.network,
				BlockHeight: height,
				TxID:        txid,
				PrevTxID:    prevTxID,
				PrevIndex:   in.PrevIndex,
				Value:       lookup.Value,
				Addresses:   lookup.Addresses,
			}); err != nil {
				return err
			}
			c.spends++
		}
	}

	return nil
}

// OnComplete drains both batchers, then dumps the requested artifact from
// ClickHouse.
func (c *Consumer) OnComplete(ctx context.Context) (string, error) {
	c.outputBatcher.Stop()
	c.spendBatcher.Stop()
	if err := c.firstErr(); err != nil {
		return "", fmt.Errorf("clickhouse flush: %w", err)
	}

	var (
		rows uint64
		err  error
		name string
	)
	switch c.mode {
	case ModeBalances:
		name = "balances.csv"
		rows, err = c.dumpBalances(ctx)
	default:
		name = "unspent.csv"
		rows, err = c.dumpUnspent(ctx)
	}
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Ingested %d outputs and %d spends (%d unresolved); wrote %d rows to %s.",
		c.outputs, c.spends, c.unresolved, rows, name), nil
}

func (c *Consumer) dumpUnspent(ctx context.Context) (uint64, error) {
	path := filepath.Join(c.outputDir, "unspent.csv")
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	w := bufio.NewWriterSize(f, 1<<20)

	var rows uint64
	err = c.repo.UnspentOutputs(ctx, c.coin, c.network, func(out model.UnspentOutput) error {
		rows++
		_, werr := fmt.Fprintf(w, "%s;%d;%d;%d;%s\n",
			out.TxID, out.Index, out.BlockHeight, out.Value,
			strings.Join(out.Addresses, ","))
		return werr
	})
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("dump unspent outputs: %w", err)
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return 0, fmt.Errorf("flush %s: %w", path, err)
	}
	return rows, f.Close()
}

func (c *Consumer) dumpBalances(ctx context.Context) (uint64, error) {
	path := filepath.Join(c.outputDir, "balances.csv")
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	w := bufio.NewWriterSize(f, 1<<20)

	var rows uint64
	err = c.repo.AddressBalances(ctx, c.coin, c.network, func(bal model.AddressBalance) error {
		rows++
		_, werr := fmt.Fprintf(w, "%s;%d\n", bal.Address, bal.Balance)
		return werr
	})
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("dump address balances: %w", err)
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return 0, fmt.Errorf("flush %s: %w", path, err)
	}
	return rows, f.Close()
}
