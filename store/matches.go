package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/lefinal/gacha-arena/errors"
	"time"
)

// MatchParticipantResult is the outcome of a match for one player.
type MatchParticipantResult struct {
	UserID        string
	RatingBefore  int
	RatingAfter   int
	CardsDefeated int
	DamageDealt   int
}

// MatchResult is the outcome of a decided match.
type MatchResult struct {
	MatchID    string
	IsFriendly bool
	Forfeited  bool
	Winner     MatchParticipantResult
	Loser      MatchParticipantResult
	Exchanges  int
	FinishedAt time.Time
}

// RecordMatchResult persists the given MatchResult. For ranked matches, ratings
// and statistics of both players are updated. Every match is added to the match
// history.
func (m *Mall) RecordMatchResult(ctx context.Context, result MatchResult) error {
	txCtx, cancelTx := context.WithCancel(ctx)
	defer cancelTx()
	tx, err := m.db.Begin(txCtx)
	if err != nil {
		return errors.NewDBTxBeginError(err)
	}
	defer m.rollbackTx(ctx, tx, "record match result failed")
	if !result.IsFriendly {
		for _, update := range []struct {
			participant MatchParticipantResult
			won         bool
		}{
			{participant: result.Winner, won: true},
			{participant: result.Loser, won: false},
		} {
			q, err := m.profileResultUpdateQuery(update.participant, update.won)
			if err != nil {
				return errors.Wrap(err, "profile result update query", errors.Details{"user_id": update.participant.UserID})
			}
			tag, err := tx.Exec(txCtx, q)
			if err != nil {
				return errors.NewExecQueryError(err, q, nil)
			}
			if tag.RowsAffected() != 1 {
				return errors.NewResourceNotFoundError("profile to update not found",
					errors.Details{"user_id": update.participant.UserID})
			}
		}
	}
	q, _, err := m.dialect.Insert(goqu.T("match_history")).Rows(goqu.Record{
		"id":                    result.MatchID,
		"winner_id":             result.Winner.UserID,
		"loser_id":              result.Loser.UserID,
		"is_friendly":           result.IsFriendly,
		"forfeited":             result.Forfeited,
		"winner_rating_change":  result.Winner.RatingAfter - result.Winner.RatingBefore,
		"loser_rating_change":   result.Loser.RatingAfter - result.Loser.RatingBefore,
		"winner_cards_defeated": result.Winner.CardsDefeated,
		"loser_cards_defeated":  result.Loser.CardsDefeated,
		"winner_damage_dealt":   result.Winner.DamageDealt,
		"loser_damage_dealt":    result.Loser.DamageDealt,
		"exchanges":             result.Exchanges,
		"finished_at":           result.FinishedAt,
	}).ToSQL()
	if err != nil {
		return errors.NewQueryToSQLError(err, nil)
	}
	_, err = tx.Exec(txCtx, q)
	if err != nil {
		return errors.NewExecQueryError(err, q, errors.Details{"match_id": result.MatchID})
	}
	err = tx.Commit(txCtx)
	if err != nil {
		return errors.NewDBTxCommitError(err)
	}
	return nil
}

// profileResultUpdateQuery builds the query for applying the result of a
// ranked match to the profile of a participant.
func (m *Mall) profileResultUpdateQuery(participant MatchParticipantResult, won bool) (string, error) {
	record := goqu.Record{
		"rating":         participant.RatingAfter,
		"cards_defeated": goqu.L("? + ?", goqu.C("cards_defeated"), participant.CardsDefeated),
		"damage_dealt":   goqu.L("? + ?", goqu.C("damage_dealt"), participant.DamageDealt),
	}
	if won {
		record["wins"] = goqu.L("? + 1", goqu.C("wins"))
	} else {
		record["losses"] = goqu.L("? + 1", goqu.C("losses"))
	}
	q, _, err := m.dialect.Update(goqu.T("profiles")).
		Set(record).
		Where(goqu.C("user_id").Eq(participant.UserID)).ToSQL()
	if err != nil {
		return "", errors.NewQueryToSQLError(err, nil)
	}
	return q, nil
}
