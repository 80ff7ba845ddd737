// Package debugstatssvc periodically logs the system state.
package debugstatssvc

import (
	"context"
	"fmt"
	"github.com/jonboulle/clockwork"
	"github.com/lefinal/gacha-arena/service"
	"go.uber.org/zap"
	"runtime"
	"time"
)

// Config for NewService.
type Config struct {
	// IsEnabled describes whether periodic debug stats logging is desired.
	IsEnabled bool
	// Interval in which to log debug stats.
	Interval time.Duration
	// IncludeStack adds the stack of all goroutines.
	IncludeStack bool
}

// ArenaStats provides the arena load.
type ArenaStats interface {
	QueueLen() int
	MatchCount() int
}

type debugStatsService struct {
	logger *zap.Logger
	config Config
	arena  ArenaStats
	clock  clockwork.Clock
}

// NewService creates the debug stats service.Service.
func NewService(logger *zap.Logger, config Config, arena ArenaStats) service.Service {
	return &debugStatsService{
		logger: logger,
		config: config,
		arena:  arena,
		clock:  clockwork.NewRealClock(),
	}
}

func (s *debugStatsService) Run(ctx context.Context) error {
	if !s.config.IsEnabled {
		return nil
	}
	s.logger.Debug(fmt.Sprintf("logging system state every %gs", s.config.Interval.Seconds()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.clock.After(s.config.Interval):
			s.logSystemDebugStats()
		}
	}
}

// logSystemDebugStats logs the current system state like memory stats, arena
// load, etc.
func (s *debugStatsService) logSystemDebugStats() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	fields := []zap.Field{
		zap.Int("num_cpu", runtime.NumCPU()),
		zap.Int("num_goroutine", runtime.NumGoroutine()),
		zap.Uint64("memory_in_use_mb", memStats.Sys/1000/1000),
		zap.Int("queued_players", s.arena.QueueLen()),
		zap.Int("running_matches", s.arena.MatchCount()),
	}
	if s.config.IncludeStack {
		buf := make([]byte, 1<<16)
		stackSize := runtime.Stack(buf, true)
		fields = append(fields, zap.String("stack", string(buf[0:stackSize])))
	}
	s.logger.Debug("debug system stats", fields...)
}
