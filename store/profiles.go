package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/gacha-arena/errors"
)

// Profile is the arena profile of a player.
type Profile struct {
	// UserID is the id of the player.
	UserID string
	// DisplayName is the name to show in match views.
	DisplayName string
	// Rating is not set for players that have never fought in the arena.
	Rating        nulls.Int
	Wins          int
	Losses        int
	CardsDefeated int
	DamageDealt   int
}

// profileColumns are the columns that are scanned with scanProfile.
var profileColumns = []interface{}{
	goqu.C("user_id"),
	goqu.C("display_name"),
	goqu.C("rating"),
	goqu.C("wins"),
	goqu.C("losses"),
	goqu.C("cards_defeated"),
	goqu.C("damage_dealt"),
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (Profile, error) {
	var profile Profile
	err := row.Scan(&profile.UserID,
		&profile.DisplayName,
		&profile.Rating,
		&profile.Wins,
		&profile.Losses,
		&profile.CardsDefeated,
		&profile.DamageDealt)
	return profile, err
}

// Profile retrieves the Profile of the player with the given id.
func (m *Mall) Profile(ctx context.Context, userID string) (Profile, error) {
	q, _, err := m.dialect.From(goqu.T("profiles")).
		Select(profileColumns...).
		Where(goqu.C("user_id").Eq(userID)).ToSQL()
	if err != nil {
		return Profile{}, errors.NewQueryToSQLError(err, nil)
	}
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return Profile{}, errors.NewExecQueryError(err, q, nil)
	}
	defer rows.Close()
	if !rows.Next() {
		return Profile{}, errors.NewResourceNotFoundError("user not found", errors.Details{"user_id": userID})
	}
	profile, err := scanProfile(rows)
	if err != nil {
		return Profile{}, errors.NewScanDBRowError(err, q)
	}
	return profile, nil
}

// leaderboardQuery ranks all profiles by rating descending. Ties are broken by
// user id so that positions are stable. Unrated profiles are listed last.
func (m *Mall) leaderboardQuery() *goqu.SelectDataset {
	columns := make([]interface{}, 0, len(profileColumns)+1)
	columns = append(columns, profileColumns...)
	columns = append(columns, goqu.ROW_NUMBER().Over(goqu.W().OrderBy(
		goqu.C("rating").Desc().NullsLast(),
		goqu.C("user_id").Asc())).As("position"))
	return m.dialect.From(goqu.T("profiles")).Select(columns...)
}

// leaderboardPositionsQuery builds the query for the positions of the given
// players. Only rated profiles are ranked.
func (m *Mall) leaderboardPositionsQuery(userIDs []string) (string, error) {
	ranked := m.leaderboardQuery().Where(goqu.C("rating").IsNotNull()).As("ranked")
	q, _, err := m.dialect.From(ranked).
		Select(goqu.C("user_id"), goqu.C("position")).
		Where(goqu.C("user_id").In(userIDs)).ToSQL()
	return q, err
}

// LeaderboardPositions retrieves the 1-indexed leaderboard positions of the
// players with the given ids. Unknown and unrated players have no position.
func (m *Mall) LeaderboardPositions(ctx context.Context, userIDs []string) (map[string]nulls.Int, error) {
	positions := make(map[string]nulls.Int, len(userIDs))
	if len(userIDs) == 0 {
		return positions, nil
	}
	q, err := m.leaderboardPositionsQuery(userIDs)
	if err != nil {
		return nil, errors.NewQueryToSQLError(err, nil)
	}
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return nil, errors.NewExecQueryError(err, q, nil)
	}
	defer rows.Close()
	for rows.Next() {
		var userID string
		var position int
		err = rows.Scan(&userID, &position)
		if err != nil {
			return nil, errors.NewScanDBRowError(err, q)
		}
		positions[userID] = nulls.NewInt(position)
	}
	return positions, nil
}

// LeaderboardEntry is a Profile with its position.
type LeaderboardEntry struct {
	Profile
	Position int
}

// Leaderboard retrieves the top profiles up to the given limit.
func (m *Mall) Leaderboard(ctx context.Context, limit uint) ([]LeaderboardEntry, error) {
	q, _, err := m.leaderboardQuery().
		Order(goqu.C("position").Asc()).
		Limit(limit).ToSQL()
	if err != nil {
		return nil, errors.NewQueryToSQLError(err, nil)
	}
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return nil, errors.NewExecQueryError(err, q, nil)
	}
	defer rows.Close()
	entries := make([]LeaderboardEntry, 0, limit)
	for rows.Next() {
		var entry LeaderboardEntry
		err = rows.Scan(&entry.UserID,
			&entry.DisplayName,
			&entry.Rating,
			&entry.Wins,
			&entry.Losses,
			&entry.CardsDefeated,
			&entry.DamageDealt,
			&entry.Position)
		if err != nil {
			return nil, errors.NewScanDBRowError(err, q)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
