package arena

import (
	"context"
	"github.com/lefinal/gacha-arena/battle"
	"github.com/lefinal/gacha-arena/errors"
	"github.com/lefinal/gacha-arena/store"
	"go.uber.org/zap"
)

// startMatch applies buffs and resolves the given match in the background. The
// match must already be registered. It returns the initial snapshot. After
// shutdown, the match is unregistered again and errShutdown is returned.
func (a *Arena) startMatch(m *battle.Match) (battle.Match, error) {
	a.runningMutex.Lock()
	if a.stopped {
		a.runningMutex.Unlock()
		a.registry.RemoveMatch(m.ID)
		return battle.Match{}, errShutdown
	}
	applied := battle.ApplyBuffs([2]*battle.Team{&m.Players[0].Team, &m.Players[1].Team},
		battle.BuffConfig{ApplyFear: a.config.FearDebuff})
	matchCtx, cancel := context.WithCancelCause(a.lifetime)
	snapshot := m.Snapshot()
	a.running[m.ID] = &runningMatch{
		cancel: cancel,
		latest: snapshot,
	}
	a.matchesWG.Add(1)
	a.runningMutex.Unlock()
	a.logger.Debug("match started",
		zap.String("match_id", m.ID),
		zap.String("player_1", m.Players[0].UserID),
		zap.String("player_2", m.Players[1].UserID),
		zap.Bool("friendly", m.IsFriendly),
		zap.Int("player_1_buffs", applied[0]),
		zap.Int("player_2_buffs", applied[1]))
	go func() {
		defer a.matchesWG.Done()
		defer cancel(nil)
		a.runMatch(matchCtx, m)
	}()
	return snapshot, nil
}

// runMatch resolves the match while a pacer hands snapshots to the Display.
// Afterwards, the outcome is finalized.
func (a *Arena) runMatch(ctx context.Context, m *battle.Match) {
	// Large enough for every exchange the resolver can emit, so resolving never
	// waits for the pacer.
	updates := make(chan battle.Match, a.config.MaxLogEntries+2*battle.TeamSize)
	replayed := make(chan bool)
	go func() {
		replayed <- a.pace(ctx, m.ID, updates)
	}()
	resolver := battle.NewResolver(a.newRand(), a.config.MaxLogEntries)
	resolveErr := resolver.Resolve(ctx, m, func(_ battle.Exchange) {
		updates <- m.Snapshot()
	})
	close(updates)
	a.finalize(ctx, m, resolveErr, <-replayed)
}

// pace hands every snapshot to the Display and waits the pacing delay after
// each one. It reports whether all snapshots have been shown.
func (a *Arena) pace(ctx context.Context, matchID string, updates <-chan battle.Match) bool {
	for snapshot := range updates {
		if ctx.Err() != nil {
			return false
		}
		a.setLatest(matchID, snapshot)
		a.show(ctx, snapshot)
		if a.config.PacingDelay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return false
		case <-a.clock.After(a.config.PacingDelay):
		}
	}
	return ctx.Err() == nil
}

// setLatest sets the latest shown snapshot of the given match.
func (a *Arena) setLatest(matchID string, snapshot battle.Match) {
	a.runningMutex.Lock()
	defer a.runningMutex.Unlock()
	if rm, ok := a.running[matchID]; ok {
		rm.latest = snapshot
	}
}

// show hands the snapshot to the Display. Errors are only logged.
func (a *Arena) show(ctx context.Context, snapshot battle.Match) {
	err := a.display.OnExchange(ctx, snapshot)
	if err != nil {
		errors.Log(a.logger, errors.Wrap(err, "display match", errors.Details{
			"match_id": snapshot.ID,
			"state":    snapshot.State,
		}))
	}
}

// finalize applies forfeits, updates ratings, persists the result, shows the
// final state and tears down the match. If the match context was cancelled
// before all exchanges were shown and no player forfeited, the match is
// aborted.
func (a *Arena) finalize(matchCtx context.Context, m *battle.Match, resolveErr error, replayed bool) {
	a.runningMutex.Lock()
	rm := a.running[m.ID]
	rm.finalizing = true
	forfeitedBy := rm.forfeitedBy
	a.runningMutex.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(matchCtx), finalizeTimeout)
	defer cancel()
	switch {
	case forfeitedBy != "":
		if err := m.Forfeit(forfeitedBy); err != nil {
			errors.Log(a.logger, errors.Wrap(err, "forfeit match", nil))
		}
	case resolveErr != nil:
		errors.Log(a.logger, errors.Wrap(resolveErr, "resolve match", errors.Details{"match_id": m.ID}))
	case !replayed && m.State == battle.StateDone:
		cause := context.Cause(matchCtx)
		m.Abort("cancelled: " + cause.Error())
		errors.Log(a.logger, errors.Wrap(cause, "pace match", errors.Details{"match_id": m.ID}))
	}

	if m.State == battle.StateDone {
		a.applyResult(ctx, m)
	}
	a.setLatest(m.ID, m.Snapshot())
	a.show(ctx, m.Snapshot())
	a.registry.RemoveMatch(m.ID)
	a.runningMutex.Lock()
	delete(a.running, m.ID)
	a.runningMutex.Unlock()
	a.logger.Debug("match ended",
		zap.String("match_id", m.ID),
		zap.Any("state", m.State),
		zap.String("winner_id", m.WinnerID.String),
		zap.Bool("forfeited", m.Forfeited),
		zap.Int("exchanges", len(m.Log)))
}

// applyResult calculates rating changes for the done match, sets its stats and
// records the result.
func (a *Arena) applyResult(ctx context.Context, m *battle.Match) {
	winner, _ := m.Winner()
	loser, _ := m.Loser()
	winnerChange, loserChange := a.calculator.Apply(winner.Rating, loser.Rating, m.IsFriendly)
	m.Stats = battle.MatchStats{
		Winner: battle.PlayerStats{
			UserID:        winner.UserID,
			RatingBefore:  winnerChange.Before,
			RatingAfter:   winnerChange.After,
			RatingChange:  winnerChange.Delta,
			CardsDefeated: winner.CardsDefeated,
			DamageDealt:   winner.DamageDealt,
		},
		Loser: battle.PlayerStats{
			UserID:        loser.UserID,
			RatingBefore:  loserChange.Before,
			RatingAfter:   loserChange.After,
			RatingChange:  loserChange.Delta,
			CardsDefeated: loser.CardsDefeated,
			DamageDealt:   loser.DamageDealt,
		},
	}
	err := a.store.RecordMatchResult(ctx, store.MatchResult{
		MatchID:    m.ID,
		IsFriendly: m.IsFriendly,
		Forfeited:  m.Forfeited,
		Winner:     participantResult(m.Stats.Winner),
		Loser:      participantResult(m.Stats.Loser),
		Exchanges:  len(m.Log),
		FinishedAt: a.clock.Now(),
	})
	if err != nil {
		errors.Log(a.logger, errors.Wrap(err, "record match result", errors.Details{"match_id": m.ID}))
	}
}

func participantResult(stats battle.PlayerStats) store.MatchParticipantResult {
	return store.MatchParticipantResult{
		UserID:        stats.UserID,
		RatingBefore:  stats.RatingBefore,
		RatingAfter:   stats.RatingAfter,
		CardsDefeated: stats.CardsDefeated,
		DamageDealt:   stats.DamageDealt,
	}
}
