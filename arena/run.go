package arena

import (
	"context"
	"github.com/go-co-op/gocron/v2"
	"github.com/lefinal/gacha-arena/errors"
	"go.uber.org/zap"
)

// schedulerLogger passes log entries of gocron.Scheduler to zap.
type schedulerLogger struct {
	logger *zap.SugaredLogger
}

func (l schedulerLogger) Debug(msg string, args ...any) {
	l.logger.Debugw(msg, args...)
}

func (l schedulerLogger) Error(msg string, args ...any) {
	l.logger.Errorw(msg, args...)
}

func (l schedulerLogger) Info(msg string, args ...any) {
	l.logger.Infow(msg, args...)
}

func (l schedulerLogger) Warn(msg string, args ...any) {
	l.logger.Warnw(msg, args...)
}

// Run sweeps the queue periodically until the given context is done. Then, all
// running matches are aborted and Run waits until they are torn down.
func (a *Arena) Run(ctx context.Context) error {
	defer a.stopMatches()
	scheduler, err := gocron.NewScheduler(
		gocron.WithClock(a.clock),
		gocron.WithLogger(schedulerLogger{logger: a.logger.Named("scheduler").Sugar()}))
	if err != nil {
		return errors.NewInternalErrorFromErr(err, "new scheduler", nil)
	}
	if a.config.ResweepInterval > 0 {
		_, err = scheduler.NewJob(gocron.DurationJob(a.config.ResweepInterval),
			gocron.NewTask(func() {
				a.resweep(ctx)
			}),
			gocron.WithName("resweep-queue"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule))
		if err != nil {
			_ = scheduler.Shutdown()
			return errors.NewInternalErrorFromErr(err, "schedule queue resweep",
				errors.Details{"interval": a.config.ResweepInterval.String()})
		}
	}
	scheduler.Start()
	<-ctx.Done()
	err = scheduler.Shutdown()
	if err != nil {
		errors.Log(a.logger, errors.NewInternalErrorFromErr(err, "shutdown scheduler", nil))
	}
	return nil
}

// stopMatches aborts all running matches and waits until they are torn down.
// Matches are not started anymore afterwards.
func (a *Arena) stopMatches() {
	a.runningMutex.Lock()
	a.stopped = true
	a.runningMutex.Unlock()
	a.shutdown(errShutdown)
	a.matchesWG.Wait()
}
