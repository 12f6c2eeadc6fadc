package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rickgao/parking-sync/internal/api"
)

// SnapshotSource fetches a REST snapshot.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context) (*api.Snapshot, error)
}

// SnapshotHandler receives fetched snapshots.
type SnapshotHandler interface {
	HandleSnapshot(snapshot *api.Snapshot) error
}

// SnapshotHandlerFunc is a function adapter for SnapshotHandler.
type SnapshotHandlerFunc func(*api.Snapshot) error

func (f SnapshotHandlerFunc) HandleSnapshot(s *api.Snapshot) error {
	return f(s)
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Poll interval; 0 disables the poller
	Timeout  time.Duration // Per-poll timeout (default: 30s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Minute,
		Timeout:  30 * time.Second,
	}
}

// Poller periodically fetches the REST snapshot.
type Poller struct {
	cfg     Config
	source  SnapshotSource
	handler SnapshotHandler
	logger  *zap.Logger

	polls  atomic.Int64
	errors atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, source SnapshotSource, handler SnapshotHandler, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Poller{
		cfg:     cfg,
		source:  source,
		handler: handler,
		logger:  logger.Named("poller"),
	}
}

// Start begins the polling loop. The first poll happens one interval
// after Start, since callers seed the cache themselves at startup.
func (p *Poller) Start(ctx context.Context) error {
	if p.cfg.Interval <= 0 {
		p.logger.Info("snapshot poller disabled")
		return nil
	}

	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("snapshot poller started", zap.Duration("interval", p.cfg.Interval))

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("snapshot poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Polls returns the number of completed poll cycles.
func (p *Poller) Polls() int64 {
	return p.polls.Load()
}

// Errors returns the number of failed poll cycles.
func (p *Poller) Errors() int64 {
	return p.errors.Load()
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if err := p.PollOnce(p.ctx); err != nil {
				p.logger.Warn("snapshot poll failed", zap.Error(err))
			}
		}
	}
}

// PollOnce fetches one snapshot and hands it to the handler.
func (p *Poller) PollOnce(ctx context.Context) error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	snap, err := p.source.GetSnapshot(ctx)
	if err != nil {
		p.errors.Add(1)
		return err
	}

	if p.handler != nil {
		if err := p.handler.HandleSnapshot(snap); err != nil {
			p.errors.Add(1)
			return err
		}
	}

	p.polls.Add(1)
	p.logger.Debug("poll cycle complete",
		zap.Int("zones", len(snap.Zones)),
		zap.Int("gates", len(snap.Gates)),
		zap.Duration("duration", time.Since(start)),
	)

	return nil
}
