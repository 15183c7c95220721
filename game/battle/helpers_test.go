package battle

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/kasuganosora/monsterbattle/config"
	"github.com/kasuganosora/monsterbattle/game/species"
	"github.com/kasuganosora/monsterbattle/model"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

const testCatalogYAML = `
species:
  - id: 1
    key: sproutle
    types: [grass]
    base_stats: {hp: 45, atk: 49, def: 49, spa: 65, spd: 65, spe: 45}
    capture_rate: 45
    base_exp: 64
    growth_rate: medium_fast
    abilities: [overgrow]
    gender_ratio: 0.125
    moves_by_level:
      - {level: 1, move: 1}
      - {level: 3, move: 3}
      - {level: 7, move: 4}
    drops:
      - {item: oran_berry, chance: 1.0, qty: 2}
  - id: 2
    key: emberpup
    types: [fire]
    base_stats: {hp: 39, atk: 52, def: 43, spa: 60, spd: 50, spe: 65}
    capture_rate: 45
    base_exp: 62
    growth_rate: medium_fast
    abilities: [blaze]
    gender_ratio: 0.125
    moves_by_level:
      - {level: 1, move: 1}
      - {level: 1, move: 2}
  - id: 3
    key: zippet
    types: [normal]
    base_stats: {hp: 40, atk: 45, def: 40, spa: 35, spd: 35, spe: 250}
    capture_rate: 255
    base_exp: 50
    growth_rate: medium_fast
    abilities: [run_away]
    gender_ratio: -1
    moves_by_level:
      - {level: 1, move: 1}
moves:
  - {id: 1, key: tackle, type: normal, category: physical, power: 40, accuracy: 100, pp: 35}
  - {id: 2, key: ember, type: fire, category: special, power: 40, accuracy: 100, pp: 25, effect: {status: burn, chance: 10}}
  - {id: 3, key: sleep_powder, type: grass, category: status, power: 0, accuracy: 75, pp: 15, effect: {status: sleep}}
  - {id: 4, key: vine_whip, type: grass, category: physical, power: 45, accuracy: 100, pp: 25}
  - {id: 5, key: growl, type: normal, category: status, power: 0, accuracy: 100, pp: 40}
items:
  - {id: poke_ball, kind: ball}
  - {id: master_ball, kind: ball}
  - {id: potion, kind: medicine, heal: 20}
  - {id: antidote, kind: medicine, cures: [poison]}
  - {id: oran_berry, kind: medicine, heal: 10}
type_chart:
  fire: {grass: 2, fire: 0.5}
  grass: {fire: 0.5, grass: 0.5}
`

const (
	speciesSproutle = 1
	speciesEmberpup = 2
	speciesZippet   = 3

	playerID int64 = 7
	rivalID  int64 = 8
)

func loadTestCatalog(t *testing.T) *species.Catalog {
	t.Helper()
	cat, err := species.Parse([]byte(testCatalogYAML))
	require.NoError(t, err)
	return cat
}

// memRoster is an in-memory RosterStore with failure injection.
type memRoster struct {
	mu         sync.Mutex
	entries    map[int64]model.Pokemon
	nextID     int64
	caught     int
	failSave   map[int64]bool
	persistErr error
	countErr   error
	countPanic bool
	captured   []model.Pokemon
}

func newMemRoster() *memRoster {
	return &memRoster{entries: map[int64]model.Pokemon{}, failSave: map[int64]bool{}}
}

func (r *memRoster) add(e model.Pokemon) model.Pokemon {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = r.nextID
	r.entries[e.ID] = e
	return e
}

func (r *memRoster) GetRoster(_ context.Context, owner int64) ([]model.Pokemon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Pokemon
	for _, e := range r.entries {
		if e.OwnerID == owner && e.Location == model.LocationParty {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out, nil
}

func (r *memRoster) SaveRosterEntry(_ context.Context, e *model.Pokemon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSave[e.ID] {
		return errors.New("disk on fire")
	}
	r.entries[e.ID] = *e
	return nil
}

func (r *memRoster) PersistCapturedEntity(_ context.Context, e *model.Pokemon) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.persistErr != nil {
		return 0, r.persistErr
	}
	r.nextID++
	e.ID = r.nextID
	e.Location = model.LocationParty
	r.entries[e.ID] = *e
	r.captured = append(r.captured, *e)
	return e.ID, nil
}

func (r *memRoster) CaughtSpeciesCount(context.Context, int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.countPanic {
		panic("pokedex index corrupted")
	}
	return r.caught, r.countErr
}

func (r *memRoster) get(id int64) model.Pokemon {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id]
}

// memLedger is an in-memory ItemLedger.
type memLedger struct {
	mu     sync.Mutex
	counts   map[string]int
	addErr   error
	countErr error
}

func newMemLedger() *memLedger { return &memLedger{counts: map[string]int{}} }

func ledgerKey(owner int64, item string) string { return fmt.Sprintf("%d/%s", owner, item) }

func (l *memLedger) set(owner int64, item string, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[ledgerKey(owner, item)] = n
}

func (l *memLedger) count(owner int64, item string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[ledgerKey(owner, item)]
}

func (l *memLedger) GetItemCount(_ context.Context, owner int64, item string) (int, error) {
	l.mu.Lock()
	err := l.countErr
	l.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return l.count(owner, item), nil
}

func (l *memLedger) ConsumeItem(_ context.Context, owner int64, item string, qty int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := ledgerKey(owner, item)
	if l.counts[k] < qty {
		return errors.New("insufficient")
	}
	l.counts[k] -= qty
	return nil
}

func (l *memLedger) AddItem(_ context.Context, owner int64, item string, qty int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.addErr != nil {
		return l.addErr
	}
	l.counts[ledgerKey(owner, item)] += qty
	return nil
}

type memPending struct {
	mu    sync.Mutex
	items []*model.Pokemon
}

func (p *memPending) Enqueue(_ context.Context, e *model.Pokemon) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, e)
	return nil
}

type memJournal struct {
	mu      sync.Mutex
	entries []PhaseTransition
}

func (j *memJournal) Record(_ string, _ int, _ BattleType, t PhaseTransition) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, t)
}

// fixture bundles the fakes a session needs.
type fixture struct {
	cat     *species.Catalog
	roster  *memRoster
	items   *memLedger
	pending *memPending
	journal *memJournal

	mu     sync.Mutex
	events []Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		cat:     loadTestCatalog(t),
		roster:  newMemRoster(),
		items:   newMemLedger(),
		pending: &memPending{},
		journal: &memJournal{},
	}
}

func (f *fixture) deps() Deps {
	return Deps{Species: f.cat, Roster: f.roster, Items: f.items, Pending: f.pending, Journal: f.journal}
}

func (f *fixture) sink(_ string, events []Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
}

func (f *fixture) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.EventType()
	}
	return out
}

// owned stores a roster entry for owner and returns its battle copy.
func (f *fixture) owned(t *testing.T, owner int64, slot, speciesID, level int, moveIDs ...int) *Pokemon {
	t.Helper()
	sp, err := f.cat.Species(context.Background(), speciesID)
	require.NoError(t, err)
	if len(moveIDs) == 0 {
		moveIDs = sp.MovesUpTo(level)
	}
	var recs []model.MoveRecord
	for _, id := range moveIDs {
		mv, err := f.cat.Move(context.Background(), id)
		require.NoError(t, err)
		recs = append(recs, model.MoveRecord{MoveID: id, PP: mv.PP, MaxPP: mv.PP})
	}
	ivs := model.StatBlock{HP: 31, Atk: 31, Def: 31, SpA: 31, SpD: 31, Spe: 31}
	stats := ComputeStats(sp.BaseStats, ivs, model.StatBlock{}, level, "hardy")
	e := f.roster.add(model.Pokemon{
		OwnerID:   owner,
		Location:  model.LocationParty,
		Slot:      slot,
		SpeciesID: speciesID,
		Level:     level,
		Exp:       ExpForLevel(sp.GrowthRate, level),
		HP:        stats.HP,
		Nature:    "hardy",
		IVs:       datatypes.NewJSONType(ivs),
		EVs:       datatypes.NewJSONType(model.StatBlock{}),
		Moves:     datatypes.NewJSONType(recs),
	})
	p, err := NewPokemon(context.Background(), f.cat, e)
	require.NoError(t, err)
	return p
}

func (f *fixture) wild(t *testing.T, speciesID, level int) *Pokemon {
	t.Helper()
	p, err := GeneratePokemon(context.Background(), f.cat, speciesID, level, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	return p
}

func (f *fixture) session(t *testing.T, cfg SessionConfig, player, opponent *Combatant) *Session {
	t.Helper()
	if cfg.RNG == nil {
		cfg.RNG = rand.New(rand.NewSource(42))
	}
	if cfg.Reward.CurrencyItemID == "" {
		cfg.Reward = config.Default().Reward
	}
	if cfg.Capture.CapturePower == 0 {
		cfg.Capture = config.Default().Capture
	}
	cfg.Sink = f.sink
	s, err := NewSession(cfg, f.deps(), player, opponent)
	require.NoError(t, err)
	t.Cleanup(s.Dispose)
	return s
}

func human(owner int64, party ...*Pokemon) *Combatant {
	return &Combatant{OwnerID: owner, Name: "player", Controller: ControllerHuman, Party: party}
}

func ai(class string, party ...*Pokemon) *Combatant {
	return &Combatant{Name: class, Controller: ControllerAI, TrainerClass: class, Party: party}
}

func passive(party ...*Pokemon) *Combatant {
	return &Combatant{Name: "wild", Controller: ControllerPassive, Party: party}
}

func findEvent[T Event](events []Event) (T, bool) {
	for _, e := range events {
		if v, ok := e.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func countEvents[T Event](events []Event) int {
	n := 0
	for _, e := range events {
		if _, ok := e.(T); ok {
			n++
		}
	}
	return n
}
