// Package pipeline drives the parallel decode pass: a pool of workers,
// each parsing whole block files, and a dispatcher that restores strict
// height order before handing blocks to the consumer, with a bounded
// reorder backlog.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"go.uber.org/zap"

	"github.com/blockparser/blockparser/internal/blockfile"
	"github.com/blockparser/blockparser/internal/chainindex"
	"github.com/blockparser/blockparser/internal/clock"
	"github.com/blockparser/blockparser/internal/coinprofile"
	"github.com/blockparser/blockparser/internal/consumer"
	"github.com/blockparser/blockparser/internal/decoder"
	"github.com/blockparser/blockparser/internal/verify"
	"github.com/blockparser/blockparser/pkg/workerpool"
)

const (
	defaultBacklog          = 100
	defaultProgressInterval = 10 * time.Second
)

// ConsumerError marks a failure reported by a consumer callback. It is
// always fatal: the dispatcher cancels every worker and surfaces it.
type ConsumerError struct {
	Callback string
	Err      error
}

func (e *ConsumerError) Error() string {
	return fmt.Sprintf("consumer %s: %v", e.Callback, e.Err)
}

func (e *ConsumerError) Unwrap() error { return e.Err }

// Metrics is the observation hook the dispatcher reports into; a nil
// Metrics disables observation entirely.
type Metrics interface {
	ObserveDecode(err error, height uint64, started time.Time)
	ObserveDeliver(height uint64)
	ObserveBacklog(size int)
}

// Config tunes one decode pass. Start and End are inclusive heights; End
// must already be resolved by the caller (default: chain tip).
type Config struct {
	Workers          int
	Backlog          int
	Start            uint64
	End              uint64
	Verify           bool
	ProgressInterval time.Duration
	OnProgress       func(Progress)
}

// Dispatcher owns the reorder buffer and the consumer handle. Workers own
// each decoded block until it is moved into the results channel; after
// OnBlock returns the core retains no reference to the block.
type Dispatcher struct {
	profile *coinprofile.Profile
	cfg     Config
	metrics Metrics
	logger  *zap.Logger
	tracker atomic.Pointer[progressTracker]
}

// New builds a Dispatcher, applying defaults for unset config fields.
func New(profile *coinprofile.Profile, cfg Config, metrics Metrics, logger *zap.Logger) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Backlog < 1 {
		cfg.Backlog = defaultBacklog
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaultProgressInterval
	}
	return &Dispatcher{profile: profile, cfg: cfg, metrics: metrics, logger: logger}
}

// Tracker exposes the live progress counters, for a status endpoint that
// wants to poll instead of subscribing to OnProgress.
func (d *Dispatcher) Tracker() func() Progress {
	return func() Progress {
		t := d.tracker.Load()
		if t == nil {
			return Progress{}
		}
		return t.snapshot()
	}
}

type result struct {
	height uint64
	block  decoder.Block
}

// Run executes the decode pass over dir for the canonical chain idx and
// returns the consumer's summary. Blocks reach cons.OnBlock in strictly
// ascending height order from cfg.Start to cfg.End with no gaps and no
// duplicates; the reorder backlog never holds more than cfg.Backlog
// decoded blocks.
func (d *Dispatcher) Run(ctx context.Context, dir, outputDir string, idx chainindex.Index, cons consumer.Consumer) (string, error) {
	if d.cfg.End > uint64(idx.Watermark()) || d.cfg.Start > d.cfg.End {
		return "", fmt.Errorf("pipeline: height range %d..%d outside chain 0..%d",
			d.cfg.Start, d.cfg.End, idx.Watermark())
	}

	files, err := blockfile.ListFiles(dir)
	if err != nil {
		return "", err
	}

	heights := idx.Heights()
	tracker := newProgressTracker(d.cfg.End - d.cfg.Start + 1)
	d.tracker.Store(tracker)

	d.logger.Info("decode pass starting",
		zap.Int("workers", d.cfg.Workers),
		zap.Int("backlog", d.cfg.Backlog),
		zap.Uint64("start", d.cfg.Start),
		zap.Uint64("end", d.cfg.End),
		zap.Int("files", len(files)))

	if err := cons.OnStart(ctx, d.profile, outputDir); err != nil {
		return "", &ConsumerError{Callback: "on_start", Err: err}
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	win := newWindow(d.cfg.Start, d.cfg.Backlog)
	defer win.Abort()

	results := make(chan result, d.cfg.Workers)
	errs := make(chan error, 1)
	var stop atomic.Bool
	var success atomic.Bool

	fail := func(err error) {
		select {
		case errs <- err:
		default:
		}
		stop.Store(true)
		cancel()
		win.Abort()
	}

	go func() {
		err := workerpool.Process(wctx, d.cfg.Workers, files, func(ctx context.Context, f blockfile.FileEntry) error {
			return d.processFile(ctx, f, heights, win, results, &stop)
		}, win.Abort)
		if err != nil && !success.Load() {
			fail(err)
		}
		close(results)
	}()

	if d.cfg.OnProgress != nil {
		go func() {
			for clock.SleepWithContext(wctx, d.cfg.ProgressInterval) == nil {
				d.cfg.OnProgress(tracker.snapshot())
			}
		}()
	}

	buffer := make(map[uint64]decoder.Block, d.cfg.Backlog)
	next := d.cfg.Start
	var prevHash chainhash.Hash
	havePrev := false

	for res := range results {
		if stop.Load() {
			continue // drain in-flight results without delivering
		}

		buffer[res.height] = res.block
		d.observeBacklog(len(buffer))

		for {
			blk, ok := buffer[next]
			if !ok {
				break
			}
			delete(buffer, next)

			if d.cfg.Verify && havePrev {
				if err := verify.ChainLink(next, prevHash, blk); err != nil {
					fail(err)
					break
				}
			}

			if err := cons.OnBlock(ctx, next, blk); err != nil {
				fail(&ConsumerError{Callback: "on_block", Err: err})
				break
			}
			prevHash = blk.Hash
			havePrev = true

			tracker.blockDelivered()
			if d.metrics != nil {
				d.metrics.ObserveDeliver(next)
			}

			next++
			win.Advance(next)

			if next > d.cfg.End {
				// Requested range complete: same stop mechanism as a
				// fatal error, with a success code.
				success.Store(true)
				stop.Store(true)
				cancel()
				win.Abort()
				break
			}
		}
		d.observeBacklog(len(buffer))
	}

	select {
	case err := <-errs:
		return "", err
	default:
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if next <= d.cfg.End {
		return "", fmt.Errorf("pipeline: canonical block at height %d missing from corpus", next)
	}

	summary, err := cons.OnComplete(ctx)
	if err != nil {
		return "", &ConsumerError{Callback: "on_complete", Err: err}
	}
	return summary, nil
}

// processFile scans one block file, decodes every canonical block in the
// configured height range, and submits each tagged with its height. The
// stop flag is checked between blocks only; there is no mid-block
// cancellation.
func (d *Dispatcher) processFile(ctx context.Context, f blockfile.FileEntry, heights map[chainhash.Hash]uint64, win *window, results chan<- result, stop *atomic.Bool) error {
	var werr error

	blockfile.ScanFile(f.Path, f.ID, d.profile.Magic)(func(rec blockfile.Record, err error) bool {
		if err != nil {
			werr = err
			return false
		}
		if stop.Load() || ctx.Err() != nil {
			werr = ctx.Err()
			return false
		}
		if len(rec.Raw) < decoder.HeaderSize {
			return true
		}

		hash := chainhash.DoubleHashH(rec.Raw[:decoder.HeaderSize])
		height, ok := heights[hash]
		if !ok || height < d.cfg.Start || height > d.cfg.End {
			return true // orphan, or outside the requested range
		}

		// Admission before decoding: a block beyond the reorder window
		// must not be pre-decoded, it would not fit in the backlog.
		if !win.Acquire(height) {
			werr = ctx.Err()
			return false
		}

		started := time.Now()
		block, err := decoder.DecodeBlock(rec.Raw, rec.FileID, rec.Offset, d.profile)
		if d.metrics != nil {
			d.metrics.ObserveDecode(err, height, started)
		}
		if err != nil {
			werr = fmt.Errorf("decode block at height %d (%s offset %d): %w", height, f.Path, rec.Offset, err)
			return false
		}

		if d.cfg.Verify {
			if err := verify.Block(height, block); err != nil {
				werr = err
				return false
			}
		}

		select {
		case results <- result{height: height, block: block}:
			return true
		case <-ctx.Done():
			werr = ctx.Err()
			return false
		}
	})

	if werr != nil && errors.Is(werr, context.Canceled) && stop.Load() {
		return nil // shutdown, not a failure of this file
	}
	return werr
}

func (d *Dispatcher) observeBacklog(size int) {
	if t := d.tracker.Load(); t != nil {
		t.setBacklog(size)
	}
	if d.metrics != nil {
		d.metrics.ObserveBacklog(size)
	}
}
