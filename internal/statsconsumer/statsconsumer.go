// Package statsconsumer aggregates whole-chain statistics in memory, the
// simplest conforming consumer: no output files, just a summary.
package statsconsumer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/blockparser/blockparser/internal/coinprofile"
	"github.com/blockparser/blockparser/internal/consumer"
	"github.com/blockparser/blockparser/internal/decoder"
)

// Consumer counts blocks, transactions, inputs, outputs, and total output
// value, and keeps a histogram of scriptPubKey types.
type Consumer struct {
	coin string

	blocks      uint64
	txs         uint64
	ins         uint64
	outs        uint64
	valueOut    uint64
	scriptTypes map[string]uint64

	firstTime uint32
	lastTime  uint32
}

var _ consumer.Consumer = (*Consumer)(nil)

// New builds a stats consumer.
func New() *Consumer {
	return &Consumer{scriptTypes: make(map[string]uint64)}
}

func (c *Consumer) OnStart(_ context.Context, profile *coinprofile.Profile, _ string) error {
	c.coin = profile.Name
	return nil
}

func (c *Consumer) OnBlock(_ context.Context, _ uint64, block decoder.Block) error {
	if c.blocks == 0 {
		c.firstTime = block.Header.Time
	}
	c.lastTime = block.Header.Time
	c.blocks++

	for _, tx := range block.Transactions {
		c.txs++
		c.ins += uint64(len(tx.Inputs))
		for _, out := range tx.Outputs {
			c.outs++
			c.valueOut += out.Value
			c.scriptTypes[out.ScriptType]++
		}
	}
	return nil
}

func (c *Consumer) OnComplete(_ context.Context) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s statistics:\n", c.coin)
	fmt.Fprintf(&b, "  blocks:        %d\n", c.blocks)
	fmt.Fprintf(&b, "  transactions:  %d\n", c.txs)
	fmt.Fprintf(&b, "  inputs:        %d\n", c.ins)
	fmt.Fprintf(&b, "  outputs:       %d\n", c.outs)
	fmt.Fprintf(&b, "  total output:  %d satoshi\n", c.valueOut)
	fmt.Fprintf(&b, "  time span:     %d..%d\n", c.firstTime, c.lastTime)

	types := make([]string, 0, len(c.scriptTypes))
	for t := range c.scriptTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	b.WriteString("  script types:\n")
	for _, t := range types {
		fmt.Fprintf(&b, "    %-12s %d\n", t, c.scriptTypes[t])
	}
	return b.String(), nil
}
