package app

import (
	"context"
	"github.com/lefinal/gacha-arena/errors"
	"github.com/lefinal/gacha-arena/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// services holds the long-running parts of the arena by name.
type services map[string]service.Service

// run starts every service and blocks until ctx is done or the first one
// fails, which stops the others.
func (s services) run(ctx context.Context, logger *zap.Logger) error {
	g, groupCtx := errgroup.WithContext(ctx)
	for name, svc := range s {
		name, svc := name, svc
		g.Go(func() error {
			svcLogger := logger.With(zap.String("service", name))
			svcLogger.Debug("service up")
			err := svc.Run(groupCtx)
			svcLogger.Debug("service down", zap.Error(err))
			if err != nil {
				return errors.Wrap(err, "run service", errors.Details{"service": name})
			}
			return nil
		})
	}
	return g.Wait()
}
