package csvconsumer

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/blockparser/blockparser/internal/coinprofile"
	"github.com/blockparser/blockparser/internal/consumer"
	"github.com/blockparser/blockparser/internal/decoder"
	"github.com/blockparser/blockparser/internal/script"
)

// OpReturn extracts every OP_RETURN payload in the scanned range into
// opreturn.csv: height, txid, output index, payload hex. OP_RETURN volume
// is a tiny fraction of total outputs, so a plain buffered writer is
// enough here.
type OpReturn struct {
	logger *zap.Logger

	file   *os.File
	writer *bufio.Writer
	rows   uint64
}

var _ consumer.Consumer = (*OpReturn)(nil)

// NewOpReturn builds the OP_RETURN consumer.
func NewOpReturn(logger *zap.Logger) *OpReturn {
	return &OpReturn{logger: logger}
}

func (c *OpReturn) OnStart(_ context.Context, _ *coinprofile.Profile, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	path := filepath.Join(outputDir, "opreturn.csv")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	c.file = f
	c.writer = bufio.NewWriterSize(f, 1<<16)
	return nil
}

func (c *OpReturn) OnBlock(_ context.Context, height uint64, block decoder.Block) error {
	for _, tx := range block.Transactions {
		for i, out := range tx.Outputs {
			if out.ScriptType != string(script.OpReturn) {
				continue
			}
			_, err := fmt.Fprintf(c.writer, "%d;%s;%d;%s\n",
				height, tx.TxID.String(), i, hex.EncodeToString(out.OpReturnData))
			if err != nil {
				return fmt.Errorf("write opreturn row: %w", err)
			}
			c.rows++
		}
	}
	return nil
}

func (c *OpReturn) OnComplete(_ context.Context) (string, error) {
	if err := c.writer.Flush(); err != nil {
		return "", fmt.Errorf("flush opreturn.csv: %w", err)
	}
	if err := c.file.Close(); err != nil {
		return "", fmt.Errorf("close opreturn.csv: %w", err)
	}
	return fmt.Sprintf("Dumped %d OP_RETURN outputs.", c.rows), nil
}
