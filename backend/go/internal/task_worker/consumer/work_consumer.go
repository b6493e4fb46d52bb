package consumer

import (
	"context"

	"jaqpot/backend/go/internal/dispatcher"
	"jaqpot/backend/go/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Source delivers work messages to a handler until ctx is cancelled.
// kafkaqueue.Consumer and redisqueue.Consumer both satisfy it.
type Source interface {
	Start(ctx context.Context, handle dispatcher.Handler) error
}

// WorkConsumer runs several sources side by side. Each source handles one
// message at a time, so the number of sources bounds concurrency.
type WorkConsumer struct {
	sources []Source
	logger  *logger.Logger
}

// NewWorkConsumer creates a new WorkConsumer.
func NewWorkConsumer(logger *logger.Logger, sources ...Source) *WorkConsumer {
	return &WorkConsumer{sources: sources, logger: logger}
}

// Run blocks until every source returned. The first source error cancels
// the others.
func (c *WorkConsumer) Run(ctx context.Context, handle dispatcher.Handler) error {
	eg, gCtx := errgroup.WithContext(ctx)
	for i, src := range c.sources {
		i, src := i, src
		eg.Go(func() error {
			c.logger.WithField("source", i).Debug("work source starting")
			return src.Start(gCtx, handle)
		})
	}
	err := eg.Wait()
	c.logger.Info("all work sources stopped")
	return err
}
