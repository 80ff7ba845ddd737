package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/gacha-arena/errors"
)

// TeamSlots is the number of card slots of a team.
const TeamSlots = 4

// Team is a set of cards a player fights with.
type Team struct {
	ID      string
	OwnerID string
	Name    nulls.String
	// Slots holds the ids of the cards in slot order. Empty slots are not set.
	Slots [TeamSlots]nulls.String
}

// TeamByID retrieves the Team with the given id.
func (m *Mall) TeamByID(ctx context.Context, teamID string) (Team, error) {
	q, _, err := m.dialect.From(goqu.T("teams")).
		Select(goqu.C("id"),
			goqu.C("owner_id"),
			goqu.C("name"),
			goqu.C("slot1"),
			goqu.C("slot2"),
			goqu.C("slot3"),
			goqu.C("slot4")).
		Where(goqu.C("id").Eq(teamID)).ToSQL()
	if err != nil {
		return Team{}, errors.NewQueryToSQLError(err, nil)
	}
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return Team{}, errors.NewExecQueryError(err, q, nil)
	}
	defer rows.Close()
	if !rows.Next() {
		return Team{}, errors.NewResourceNotFoundError("team not found", errors.Details{"team_id": teamID})
	}
	var team Team
	err = rows.Scan(&team.ID,
		&team.OwnerID,
		&team.Name,
		&team.Slots[0],
		&team.Slots[1],
		&team.Slots[2],
		&team.Slots[3])
	if err != nil {
		return Team{}, errors.NewScanDBRowError(err, q)
	}
	return team, nil
}
