package pool

import (
	"time"

	"github.com/netframe/coreengine/internal/config"
	"github.com/netframe/coreengine/internal/observability"
)

// NewPipelinePool builds the per-pipeline pool §6 describes: exactly one
// Top-only worker (so socket writes for this pipeline always serialize
// through a single writer, §3's "concurrent writers on a socket are
// forbidden"), plus the configured counts of High/Normal/Low/LongTerm
// workers. Normal workers fall back to High and Low workers fall back to
// Normal, mirroring the spec's own "[Normal, High]" example (§4.A).
func NewPipelinePool(cfg config.PriorityPoolConfig, logger observability.Logger, shutdownTimeout time.Duration) *Pool {
	p := NewPool(logger, shutdownTimeout)
	p.AddWorker(Top)
	for i := 0; i < cfg.HighPriorityCount; i++ {
		p.AddWorker(High)
	}
	for i := 0; i < cfg.NormalPriorityCount; i++ {
		p.AddWorker(Normal, High)
	}
	for i := 0; i < cfg.LowPriorityCount; i++ {
		p.AddWorker(Low, Normal)
	}
	for i := 0; i < cfg.LongTermPriorityCount; i++ {
		p.AddWorker(LongTerm)
	}
	return p
}

// NewServerPool builds the Acceptor-level pool §4.E describes: one worker
// per class High/Normal/Low/LongTerm (no Top — the Acceptor itself never
// writes a frame; each session's own pipeline pool owns that).
func NewServerPool(logger observability.Logger, shutdownTimeout time.Duration) *Pool {
	p := NewPool(logger, shutdownTimeout)
	p.AddWorker(High)
	p.AddWorker(Normal)
	p.AddWorker(Low)
	p.AddWorker(LongTerm)
	return p
}
