// Package csvconsumer is the reference consumer: it dumps every block,
// transaction, input, and output to one semicolon-separated file per
// entity, hex values lowercase without a 0x prefix.
package csvconsumer

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
	"github.com/blockparser/blockparser/pkg/batcher"
)

const (
	defaultFlushSize     = 2000
	defaultFlushInterval = 2 * time.Second
	defaultWriteRPS      = 100
)

// Config tunes the buffered CSV writers.
type Config struct {
	FlushSize     int
	FlushInterval time.Duration
	WriteRPS      int
}

type csvFile struct {
	file    *os.File
	writer  *bufio.Writer
	batcher *batcher.Batcher[string]
}

// Consumer implements consumer.Consumer by dumping four CSV files into the
// output directory: blocks.csv, transactions.csv, tx_in.csv, tx_out.csv.
type Consumer struct {
	logger *zap.Logger
	cfg    Config

	files map[string]*csvFile

	mu       sync.Mutex
	writeErr error

	blocks uint64
	txs    uint64
	ins    uint64
	outs   uint64
}

var _ consumer.Consumer = (*Consumer)(nil)

// New builds a CSV consumer; zero config fields get defaults.
func New(logger *zap.Logger, cfg Config) *Consumer {
	if cfg.FlushSize < 1 {
		cfg.FlushSize = defaultFlushSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.WriteRPS < 1 {
		cfg.WriteRPS = defaultWriteRPS
	}
	return &Consumer{logger: logger, cfg: cfg}
}

// OnStart creates the four entity files and starts their batched writers.
func (c *Consumer) OnStart(ctx context.Context, _ *coinprofile.Profile, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	c.files = make(map[string]*csvFile, 4)
	for _, name := range []string{"blocks", "transactions", "tx_in", "tx_out"} {
		path := filepath.Join(outputDir, name+".csv")
		f, err := os.Create(path)
		if err != nil {
			c.teardown()
			return fmt.Errorf("create %s: %w", path, err)
		}

		cf := &csvFile{file: f, writer: bufio.NewWriterSize(f, 1<<20)}
		cf.batcher = batcher.New[string](
			c.logger.Named(name+"Batcher"),
			c.flushLines(cf),
			c.cfg.FlushSize,
			c.cfg.FlushInterval,
			c.cfg.WriteRPS,
		)
		cf.batcher.Start(ctx)
		c.files[name] = cf
	}
	return nil
}

// flushLines writes one batch of formatted rows. The first write failure is
// remembered and surfaced from the next OnBlock call, since the batcher
// itself only logs flush errors.
func (c *Consumer) flushLines(cf *csvFile) func(context.Context, []string) error {
	return func(_ context.Context, lines []string) error {
		for _, line := range lines {
			if _, err := cf.writer.WriteString(line); err != nil {
				c.recordErr(err)
				return err
			}
		}
		return nil
	}
}

func (c *Consumer) recordErr(err error) {
	c.mu.Lock()
	if c.writeErr == nil {
		c.writeErr = err
	}
	c.mu.Unlock()
}

func (c *Consumer) firstErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeErr
}

// OnBlock formats and enqueues one row per entity occurrence.
func (c *Consumer) OnBlock(ctx context.Context, height uint64, block decoder.Block) error {
	if err := c.firstErr(); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}

	blockHash := block.Hash.String()

	if err := c.files["blocks"].batcher.Add(ctx, fmt.Sprintf("%s;%d;%d;%d;%s;%s;%d;%d;%d\n",
		blockHash, height, block.Header.Version, block.Size,
		block.Header.PrevHash.String(), block.Header.MerkleRoot.String(),
		block.Header.Time, block.Header.Bits, block.Header.Nonce)); err != nil {
		return err
	}
	c.blocks++

	for _, tx := range block.Transactions {
		txid := tx.TxID.String()
		if err := c.files["transactions"].batcher.Add(ctx, fmt.Sprintf("%s;%s;%d;%d\n",
			txid, blockHash, tx.Version, tx.LockTime)); err != nil {
			return err
		}
		c.txs++

		for _, in := range tx.Inputs {
			if err := c.files["tx_in"].batcher.Add(ctx, fmt.Sprintf("%s;%s;%d;%s;%d\n",
				txid, in.PrevTxID.String(), in.PrevIndex,
				hex.EncodeToString(in.ScriptSig), in.Sequence)); err != nil {
				return err
			}
			c.ins++
		}

		for i, out := range tx.Outputs {
			if err := c.files["tx_out"].batcher.Add(ctx, fmt.Sprintf("%s;%d;%d;%s;%s\n",
				txid, i, out.Value,
				hex.EncodeToString(out.ScriptPubKey),
				strings.Join(out.Addresses, ","))); err != nil {
				return err
			}
			c.outs++
		}
	}
	return nil
}

// OnComplete drains the batchers, flushes and closes every file, and
// reports what was written.
func (c *Consumer) OnComplete(_ context.Context) (string, error) {
	if err := c.teardown(); err != nil {
		return "", err
	}
	if err := c.firstErr(); err != nil {
		return "", fmt.Errorf("csv write: %w", err)
	}

	return fmt.Sprintf("Dumped %d blocks, %d transactions, %d inputs, %d outputs.",
		c.blocks, c.txs, c.ins, c.outs), nil
}

// teardown stops every batcher (flushing what it holds), then flushes and
// closes the files. Safe to call once per run; it clears the file table.
func (c *Consumer) teardown() error {
	var first error
	for _, cf := range c.files {
		if cf.batcher != nil {
			cf.batcher.Stop()
		}
		if err := cf.writer.Flush(); err != nil && first == nil {
			first = fmt.Errorf("flush csv: %w", err)
		}
		if err := cf.file.Close(); err != nil && first == nil {
			first = fmt.Errorf("close csv: %w", err)
		}
	}
	c.files = nil
	return first
}
