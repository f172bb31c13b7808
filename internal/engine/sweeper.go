package engine

import (
	"context"
	"errors"
	"log"
	"time"
)

// Sweeper periodically re-evaluates every active session against the clock.
// Timeouts are threshold comparisons over persisted timestamps, so a sweep
// after a restart immediately recovers the correct state.
type Sweeper struct {
	engine           *Engine
	interval         time.Duration
	logger           *log.Logger
	shutdownComplete chan struct{}
}

// NewSweeper constructs a Sweeper.
func NewSweeper(engine *Engine, interval time.Duration) *Sweeper {
	return &Sweeper{
		engine:           engine,
		interval:         interval,
		logger:           log.New(log.Writer(), "[sweeper] ", log.LstdFlags),
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the sweep loop. It should be called in a goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.shutdownComplete)
	}()

	for {
		if err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Printf("sweep error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until the sweep loop has stopped.
func (s *Sweeper) Wait() {
	<-s.shutdownComplete
}

// SweepOnce evaluates all active sessions once. A failure for one agent is
// logged and never blocks evaluation of the others.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	start := time.Now()
	now := s.engine.now()

	refs, err := s.engine.repo.ListActiveSessions(ctx)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return nil
	}
	defer sweepDuration.Observe(time.Since(start).Seconds())

	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.engine.EvaluateAgent(ctx, ref.AgentID, ref.BusinessDate, now); err != nil {
			sweepErrors.Inc()
			s.logger.Printf("evaluation failed (agent=%s, date=%s): %v", ref.AgentID, ref.BusinessDate, err)
		}
	}
	return nil
}
