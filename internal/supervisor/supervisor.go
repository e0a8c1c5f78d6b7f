// Package supervisor wires the Synthesis Engine and the Message
// Consumers into a single process lifecycle (C8): ordered boot, fan-out
// connect/consume, and a graceful drain-then-stop shutdown. Grounded on
// the teacher's worker/cmd/worker/main.go boot/shutdown sequence,
// generalized from one consumer to many and from a plain goroutine
// fan-out to golang.org/x/sync/errgroup.
package supervisor

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Consumer is the subset of consumer.Consumer (and its event/interaction
// wrappers) the Supervisor needs to boot and drain.
type Consumer interface {
	Connect(ctx context.Context) error
	StartConsuming(ctx context.Context) error
	StopConsuming()
	Close() error
}

// Engine is the subset of engine.Engine the Supervisor drives.
type Engine interface {
	Start(ctx context.Context)
	Pause()
	Close()
}

// Supervisor starts the Engine and then the Consumers (the KV store and
// chat REST client are built by the caller), and owns the shutdown order
// Consumers.StopConsuming -> Engine.Pause -> everything closed.
type Supervisor struct {
	engine       Engine
	consumers    []Consumer
	logger       *zap.Logger
	drainTimeout time.Duration
}

// New constructs a Supervisor. consumers are started concurrently and
// stopped in the same order they are given.
func New(engine Engine, consumers []Consumer, drainTimeout time.Duration, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		engine:       engine,
		consumers:    consumers,
		drainTimeout: drainTimeout,
		logger:       logger,
	}
}

// Run boots the Engine and every Consumer, then blocks until ctx is
// cancelled (typically by a signal handler installed by the caller),
// at which point it drains and stops everything in order.
func (s *Supervisor) Run(ctx context.Context) error {
	s.engine.Start(ctx)

	cg, cctx := errgroup.WithContext(ctx)
	for _, c := range s.consumers {
		c := c
		cg.Go(func() error { return c.Connect(cctx) })
	}
	if err := cg.Wait(); err != nil {
		s.logger.Error("consumer connect failed", zap.Error(err))
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range s.consumers {
		c := c
		g.Go(func() error {
			return c.StartConsuming(gctx)
		})
	}

	<-ctx.Done()
	s.logger.Info("supervisor shutting down")

	for _, c := range s.consumers {
		c.StopConsuming()
	}
	s.engine.Pause()
	time.Sleep(s.drainTimeout)

	// StartConsuming loops return (nil) once their context is cancelled;
	// join them before closing connections below, so no handler is
	// mid-dispatch when its channel/connection is torn down, matching the
	// teacher's pool.Stop() -> wg.Wait() -> close ordering.
	waitErr := g.Wait()
	if waitErr != nil {
		s.logger.Error("consumer loop exited with error", zap.Error(waitErr))
	}

	for _, c := range s.consumers {
		if err := c.Close(); err != nil {
			s.logger.Warn("consumer close error", zap.Error(err))
		}
	}
	s.engine.Close()

	return waitErr
}
