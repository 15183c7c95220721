package battle

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"github.com/kasuganosora/monsterbattle/game/species"
	"github.com/kasuganosora/monsterbattle/model"
	"gorm.io/datatypes"
)

// Status is a major status condition.
type Status string

const (
	StatusNone      Status = ""
	StatusSleep     Status = "sleep"
	StatusFreeze    Status = "freeze"
	StatusParalysis Status = "paralysis"
	StatusBurn      Status = "burn"
	StatusPoison    Status = "poison"
	StatusFainted   Status = "fainted"
)

// StatDelta is the per-stat change caused by a level-up.
type StatDelta = model.StatBlock

// MoveSlot is a known move with its remaining uses.
type MoveSlot struct {
	MoveID   int                 `json:"move_id"`
	Name     string              `json:"name"`
	Type     string              `json:"type"`
	Category string              `json:"category"`
	Power    int                 `json:"power"`
	Accuracy int                 `json:"accuracy"`
	PP       int                 `json:"pp"`
	MaxPP    int                 `json:"max_pp"`
	Effect   *species.MoveEffect `json:"-"`
}

func newMoveSlot(m *species.Move, pp, maxPP int) MoveSlot {
	return MoveSlot{
		MoveID:   m.ID,
		Name:     m.Name,
		Type:     m.Type,
		Category: m.Category,
		Power:    m.Power,
		Accuracy: m.Accuracy,
		PP:       pp,
		MaxPP:    maxPP,
		Effect:   m.Effect,
	}
}

// Pokemon is the transient in-battle copy of a roster entry or a generated
// wild Pokemon. Changes reach storage only through Commit.
type Pokemon struct {
	CombatID   string
	EntryID    int64
	SpeciesID  int
	Name       string
	Types      []string
	Level      int
	Exp        int64
	HP         int
	MaxHP      int
	Stats      model.StatBlock
	BaseStats  model.StatBlock
	IVs        model.StatBlock
	EVs        model.StatBlock
	Nature     string
	Ability    string
	Gender     string
	Moves      []MoveSlot
	Status     Status
	SleepTurns int
	// Participated is set once the Pokemon has been active on the field.
	Participated bool

	GrowthRate  string
	BaseExp     int
	CaptureRate int

	entry *model.Pokemon
}

// NewPokemon builds the battle copy of a persisted roster entry.
func NewPokemon(ctx context.Context, src SpeciesSource, entry model.Pokemon) (*Pokemon, error) {
	sp, err := src.Species(ctx, entry.SpeciesID)
	if err != nil {
		return nil, fmt.Errorf("roster entry %d: %w", entry.ID, err)
	}
	var moves []MoveSlot
	for _, rec := range entry.Moves.Data() {
		m, err := src.Move(ctx, rec.MoveID)
		if err != nil {
			return nil, fmt.Errorf("roster entry %d: %w", entry.ID, err)
		}
		moves = append(moves, newMoveSlot(m, rec.PP, rec.MaxPP))
	}
	ivs, evs := entry.IVs.Data(), entry.EVs.Data()
	stats := ComputeStats(sp.BaseStats, ivs, evs, entry.Level, entry.Nature)

	p := &Pokemon{
		CombatID:    uuid.NewString(),
		EntryID:     entry.ID,
		SpeciesID:   sp.ID,
		Name:        displayName(entry.Nickname, sp.Name),
		Types:       sp.Types,
		Level:       entry.Level,
		Exp:         entry.Exp,
		MaxHP:       stats.HP,
		Stats:       stats,
		BaseStats:   sp.BaseStats,
		IVs:         ivs,
		EVs:         evs,
		Nature:      entry.Nature,
		Ability:     entry.Ability,
		Gender:      entry.Gender,
		Moves:       moves,
		Status:      Status(entry.Status),
		GrowthRate:  sp.GrowthRate,
		BaseExp:     sp.BaseExp,
		CaptureRate: sp.CaptureRate,
		entry:       &entry,
	}
	p.SetHP(entry.HP)
	return p, nil
}

// GeneratePokemon rolls a fresh Pokemon of the given species and level with
// random hidden stats and the species' default moveset.
func GeneratePokemon(ctx context.Context, src SpeciesSource, speciesID, level int, rng *rand.Rand) (*Pokemon, error) {
	sp, err := src.Species(ctx, speciesID)
	if err != nil {
		return nil, err
	}
	var moves []MoveSlot
	for _, id := range sp.MovesUpTo(level) {
		m, err := src.Move(ctx, id)
		if err != nil {
			return nil, err
		}
		moves = append(moves, newMoveSlot(m, m.PP, m.PP))
	}
	h := rollHidden(sp, rng)
	stats := ComputeStats(sp.BaseStats, h.ivs, model.StatBlock{}, level, h.nature)
	return &Pokemon{
		CombatID:    uuid.NewString(),
		SpeciesID:   sp.ID,
		Name:        sp.Name,
		Types:       sp.Types,
		Level:       level,
		Exp:         ExpForLevel(sp.GrowthRate, level),
		HP:          stats.HP,
		MaxHP:       stats.HP,
		Stats:       stats,
		BaseStats:   sp.BaseStats,
		IVs:         h.ivs,
		Nature:      h.nature,
		Ability:     h.ability,
		Gender:      h.gender,
		Moves:       moves,
		GrowthRate:  sp.GrowthRate,
		BaseExp:     sp.BaseExp,
		CaptureRate: sp.CaptureRate,
	}, nil
}

type hiddenStats struct {
	ivs     model.StatBlock
	nature  string
	ability string
	gender  string
}

func rollHidden(sp *species.Species, rng *rand.Rand) hiddenStats {
	iv := func() int { return rng.Intn(32) }
	h := hiddenStats{
		ivs: model.StatBlock{HP: iv(), Atk: iv(), Def: iv(), SpA: iv(), SpD: iv(), Spe: iv()},
	}
	names := NatureNames()
	h.nature = names[rng.Intn(len(names))]
	if len(sp.Abilities) > 0 {
		h.ability = sp.Abilities[rng.Intn(len(sp.Abilities))]
	}
	switch {
	case sp.GenderRatio < 0:
		h.gender = "N"
	case rng.Float64() < sp.GenderRatio:
		h.gender = "F"
	default:
		h.gender = "M"
	}
	return h
}

func displayName(nickname, speciesName string) string {
	if nickname != "" {
		return nickname
	}
	return speciesName
}

// IsFainted reports whether HP has reached zero.
func (p *Pokemon) IsFainted() bool { return p.HP <= 0 }

// SetHP clamps hp into [0, MaxHP]. Reaching zero sets the fainted status.
func (p *Pokemon) SetHP(hp int) {
	p.HP = clampInt(hp, 0, p.MaxHP)
	if p.HP == 0 {
		p.Status = StatusFainted
		p.SleepTurns = 0
	} else if p.Status == StatusFainted {
		p.Status = StatusNone
	}
}

// Speed is the effective speed used for turn order.
func (p *Pokemon) Speed() int {
	if p.Status == StatusParalysis {
		return p.Stats.Spe / 2
	}
	return p.Stats.Spe
}

// HasUsableMove reports whether any move has PP left.
func (p *Pokemon) HasUsableMove() bool {
	for _, m := range p.Moves {
		if m.PP > 0 {
			return true
		}
	}
	return false
}

// HasType reports whether p has elemental type t.
func (p *Pokemon) HasType(t string) bool {
	for _, x := range p.Types {
		if x == t {
			return true
		}
	}
	return false
}

func (p *Pokemon) Snapshot() PokemonSnapshot {
	return PokemonSnapshot{
		CombatID:  p.CombatID,
		SpeciesID: p.SpeciesID,
		Name:      p.Name,
		Level:     p.Level,
		HP:        p.HP,
		MaxHP:     p.MaxHP,
		Status:    p.Status,
	}
}

// Commit writes the battle state back into the roster entry it was loaded
// from. It returns nil for Pokemon that have no roster entry.
func (p *Pokemon) Commit() *model.Pokemon {
	if p.entry == nil {
		return nil
	}
	e := *p.entry
	e.Level = p.Level
	e.Exp = p.Exp
	e.HP = p.HP
	e.Status = string(p.Status)
	e.Moves = datatypes.NewJSONType(p.moveRecords())
	return &e
}

func (p *Pokemon) moveRecords() []model.MoveRecord {
	recs := make([]model.MoveRecord, len(p.Moves))
	for i, m := range p.Moves {
		recs[i] = model.MoveRecord{MoveID: m.MoveID, PP: m.PP, MaxPP: m.MaxPP}
	}
	return recs
}
