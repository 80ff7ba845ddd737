package store

import (
	"context"
	"github.com/doug-martin/goqu/v9"
	"github.com/gobuffalo/nulls"
	"github.com/lefinal/gacha-arena/errors"
)

// Card is a card in the collection of a player. Stats are optional in the
// database because cards from early packs were stored without them.
type Card struct {
	ID        string
	OwnerID   string
	Name      string
	Playstyle nulls.String
	HP        nulls.Int
	Strength  nulls.Int
	Defense   nulls.Int
	Speed     nulls.Int
}

// UserCards retrieves all cards in the collection of the player with the given
// id.
func (m *Mall) UserCards(ctx context.Context, userID string) ([]Card, error) {
	q, _, err := m.dialect.From(goqu.T("cards")).
		Select(goqu.C("id"),
			goqu.C("owner_id"),
			goqu.C("name"),
			goqu.C("playstyle"),
			goqu.C("hp"),
			goqu.C("strength"),
			goqu.C("defense"),
			goqu.C("speed")).
		Where(goqu.C("owner_id").Eq(userID)).
		Order(goqu.C("id").Asc()).ToSQL()
	if err != nil {
		return nil, errors.NewQueryToSQLError(err, nil)
	}
	rows, err := m.db.Query(ctx, q)
	if err != nil {
		return nil, errors.NewExecQueryError(err, q, nil)
	}
	defer rows.Close()
	cards := make([]Card, 0)
	for rows.Next() {
		var card Card
		err = rows.Scan(&card.ID,
			&card.OwnerID,
			&card.Name,
			&card.Playstyle,
			&card.HP,
			&card.Strength,
			&card.Defense,
			&card.Speed)
		if err != nil {
			return nil, errors.NewScanDBRowError(err, q)
		}
		cards = append(cards, card)
	}
	if err = rows.Err(); err != nil {
		return nil, errors.NewExecQueryError(err, q, nil)
	}
	return cards, nil
}
