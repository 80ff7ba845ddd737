package arena

import (
	"github.com/lefinal/gacha-arena/battle"
	"github.com/lefinal/gacha-arena/errors"
	"github.com/lefinal/gacha-arena/matchmaking"
	"github.com/lefinal/gacha-arena/rating"
	"time"
)

const (
	// DefaultPacingDelay is the default delay between two displayed exchanges.
	DefaultPacingDelay = 2 * time.Second
	// DefaultResweepInterval is the default interval in which the queue is swept
	// for pairs that could not be formed on join.
	DefaultResweepInterval = 30 * time.Second
	// finalizeTimeout is the timeout for persisting and displaying the result of
	// a match.
	finalizeTimeout = 10 * time.Second
)

// Config for Arena.
type Config struct {
	// PacingDelay is the delay after every displayed exchange. Zero disables
	// pacing.
	PacingDelay time.Duration
	// MaxLogEntries is the exchange cap after which a match is aborted as a draw.
	MaxLogEntries int
	// PrivilegedTop is the number of leaderboard positions that form the
	// privileged pool.
	PrivilegedTop int
	// ResweepInterval is the interval for sweeping the queue. Zero disables
	// sweeping.
	ResweepInterval time.Duration
	// FearDebuff enables the FEAR playstyle.
	FearDebuff bool
	// WinDelta is the rating change for winners of ranked matches.
	WinDelta int
	// LossDelta is the rating change for losers of ranked matches.
	LossDelta int
	// RatingFloor is the minimum rating.
	RatingFloor int
}

// DefaultConfig returns the Config with all defaults.
func DefaultConfig() Config {
	return Config{
		PacingDelay:     DefaultPacingDelay,
		MaxLogEntries:   battle.DefaultMaxLogEntries,
		PrivilegedTop:   matchmaking.DefaultPrivilegedTop,
		ResweepInterval: DefaultResweepInterval,
		FearDebuff:      false,
		WinDelta:        rating.DefaultWinDelta,
		LossDelta:       rating.DefaultLossDelta,
		RatingFloor:     rating.DefaultFloor,
	}
}

// Validate the Config.
func (c Config) Validate() error {
	details := errors.Details{"config": c}
	if c.PacingDelay < 0 {
		return errors.NewBadRequestError(errors.KindInvalidConfig, "pacing delay must not be negative", details)
	}
	if c.MaxLogEntries <= 0 {
		return errors.NewBadRequestError(errors.KindInvalidConfig, "max log entries must be positive", details)
	}
	if c.PrivilegedTop < 0 {
		return errors.NewBadRequestError(errors.KindInvalidConfig, "privileged top must not be negative", details)
	}
	if c.ResweepInterval < 0 {
		return errors.NewBadRequestError(errors.KindInvalidConfig, "resweep interval must not be negative", details)
	}
	if c.WinDelta < 0 || c.LossDelta > 0 {
		return errors.NewBadRequestError(errors.KindInvalidConfig, "winners must not lose and losers must not gain rating", details)
	}
	return nil
}

// calculator creates the rating.Calculator for the configured deltas.
func (c Config) calculator() rating.Calculator {
	return rating.Calculator{
		WinDelta:  c.WinDelta,
		LossDelta: c.LossDelta,
		Floor:     c.RatingFloor,
	}
}
