package pipeline

import (
	"sync"
	"sync/atomic"
	"time"
)

// Progress is one periodic report on the side channel: how many blocks
// have been handed to the consumer, how many remain, and a rolling
// average throughput since the previous report.
type Progress struct {
	Processed    uint64  `json:"processed"`
	Remaining    uint64  `json:"remaining"`
	Total        uint64  `json:"total"`
	BlocksPerSec float64 `json:"blocks_per_sec"`
	BacklogSize  int     `json:"backlog_size"`
	BacklogPeak  int     `json:"backlog_peak"`
}

// progressTracker accumulates the dispatcher-side counters the reporter
// goroutine and the status endpoint read concurrently.
type progressTracker struct {
	total     uint64
	processed atomic.Uint64

	mu          sync.Mutex
	backlog     int
	backlogPeak int
	lastCount   uint64
	lastAt      time.Time
}

func newProgressTracker(total uint64) *progressTracker {
	return &progressTracker{total: total, lastAt: time.Now()}
}

func (p *progressTracker) blockDelivered() {
	p.processed.Add(1)
}

func (p *progressTracker) setBacklog(n int) {
	p.mu.Lock()
	p.backlog = n
	if n > p.backlogPeak {
		p.backlogPeak = n
	}
	p.mu.Unlock()
}

// snapshot computes the current report. The rolling average covers the
// interval since the previous snapshot.
func (p *progressTracker) snapshot() Progress {
	processed := p.processed.Load()

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(p.lastAt).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(processed-p.lastCount) / elapsed
	}
	p.lastCount = processed
	p.lastAt = now

	return Progress{
		Processed:    processed,
		Remaining:    p.total - processed,
		Total:        p.total,
		BlocksPerSec: rate,
		BacklogSize:  p.backlog,
		BacklogPeak:  p.backlogPeak,
	}
}
