// Package display provides implementations for showing match progress to
// players and spectators.
package display

import (
	"context"
	"github.com/lefinal/gacha-arena/battle"
	"go.uber.org/multierr"
)

// Display shows a match snapshot.
type Display interface {
	OnExchange(ctx context.Context, m battle.Match) error
}

// Nop is a Display that does nothing.
type Nop struct{}

// OnExchange does nothing.
func (Nop) OnExchange(_ context.Context, _ battle.Match) error {
	return nil
}

// multi hands snapshots to multiple displays.
type multi struct {
	displays []Display
}

// Multi creates a Display that hands each snapshot to all given displays in
// order. A failing display does not keep the others from being called.
func Multi(displays ...Display) Display {
	return &multi{displays: displays}
}

// OnExchange hands the snapshot to all displays and combines their errors.
func (d *multi) OnExchange(ctx context.Context, m battle.Match) error {
	var err error
	for _, display := range d.displays {
		err = multierr.Append(err, display.OnExchange(ctx, m))
	}
	return err
}
