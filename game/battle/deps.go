package battle

import (
	"context"

	"github.com/kasuganosora/monsterbattle/game/species"
	"github.com/kasuganosora/monsterbattle/model"
)

// SpeciesSource is the static game data the engine reads.
type SpeciesSource interface {
	Species(ctx context.Context, id int) (*species.Species, error)
	Move(ctx context.Context, id int) (*species.Move, error)
	Item(id string) (*species.Item, bool)
	Effectiveness(attackType string, defender []string) float64
}

// RosterStore persists player-owned Pokemon.
type RosterStore interface {
	GetRoster(ctx context.Context, playerID int64) ([]model.Pokemon, error)
	SaveRosterEntry(ctx context.Context, entry *model.Pokemon) error
	PersistCapturedEntity(ctx context.Context, entity *model.Pokemon) (int64, error)
	CaughtSpeciesCount(ctx context.Context, playerID int64) (int, error)
}

// ItemLedger is the slice of the inventory the engine needs.
type ItemLedger interface {
	GetItemCount(ctx context.Context, playerID int64, itemID string) (int, error)
	ConsumeItem(ctx context.Context, playerID int64, itemID string, qty int) error
	AddItem(ctx context.Context, playerID int64, itemID string, qty int) error
}

// PendingCaptures takes captured entities that could not be persisted so
// they can be retried later.
type PendingCaptures interface {
	Enqueue(ctx context.Context, entity *model.Pokemon) error
}

// Journal records phase transitions outside the hot path.
type Journal interface {
	Record(sessionID string, seq int, bt BattleType, t PhaseTransition)
}

// Deps bundles the external collaborators of a session.
type Deps struct {
	Species SpeciesSource
	Roster  RosterStore
	Items   ItemLedger
	Pending PendingCaptures // optional
	Journal Journal         // optional
}
