// Package consumer defines the contract between the ordered pipeline and
// downstream extractors: CSV dumpers, UTXO trackers, stats aggregators.
package consumer

import (
	"context"

	"github.com/blockparser/blockparser/internal/coinprofile"
	"github.com/blockparser/blockparser/internal/decoder"
)

// Consumer receives every canonical block exactly once, in strictly
// ascending height order. All three callbacks run on the dispatcher
// goroutine, so implementations never need their own locking. A Consumer
// must not retain a reference to a Block past the OnBlock call that
// delivered it; the pipeline considers ownership transferred back when
// OnBlock returns.
//
// Any error from any callback is fatal to the run: the dispatcher cancels
// all workers and surfaces the error to the caller.
type Consumer interface {
	// OnStart is called once before the first block, with the coin profile
	// the run was configured for and the directory output should go to.
	OnStart(ctx context.Context, profile *coinprofile.Profile, outputDir string) error

	// OnBlock is called once per block, heights strictly ascending with no
	// gaps or duplicates.
	OnBlock(ctx context.Context, height uint64, block decoder.Block) error

	// OnComplete is called once after the last block and returns a
	// human-readable summary of what the consumer produced.
	OnComplete(ctx context.Context) (string, error)
}
