package battle

import (
	"context"
	"math"
	"math/rand"

	"github.com/kasuganosora/monsterbattle/config"
	"go.uber.org/zap"
)

// Outcome is the terminal cause of a battle.
type Outcome string

const (
	OutcomeWin     Outcome = "win"
	OutcomeLoss    Outcome = "loss"
	OutcomeCapture Outcome = "capture"
	OutcomeFlee    Outcome = "flee"
	OutcomeAborted Outcome = "aborted"
)

// Grants reports whether the outcome earns experience, money and drops.
func (o Outcome) Grants() bool { return o == OutcomeWin || o == OutcomeCapture }

// Move replacement policies.
const (
	ReplacePending = "pending"
	ReplaceOldest  = "replace_oldest"
)

// ParticipantResult is the per-Pokemon part of a Report.
type ParticipantResult struct {
	CombatID     string    `json:"combat_id"`
	EntryID      int64     `json:"entry_id"`
	Name         string    `json:"name"`
	Participated bool      `json:"participated"`
	ExpGained    int       `json:"exp_gained"`
	LevelBefore  int       `json:"level_before"`
	LevelAfter   int       `json:"level_after"`
	StatDelta    StatDelta `json:"stat_delta"`
	Learned      []int     `json:"learned,omitempty"`
	PendingMoves []int     `json:"pending_moves,omitempty"`
	Saved        bool      `json:"saved"`
	Error        string    `json:"error,omitempty"`
}

// ItemGrant is a currency or drop credit and whether it was stored.
type ItemGrant struct {
	OwnerID int64  `json:"owner_id"`
	ItemID  string `json:"item_id"`
	Qty     int    `json:"qty"`
	Saved   bool   `json:"saved"`
	Error   string `json:"error,omitempty"`
}

// Report is the result of distributing rewards for one battle.
type Report struct {
	Outcome      Outcome             `json:"outcome"`
	Currency     int                 `json:"currency"`
	Grants       []ItemGrant         `json:"grants,omitempty"`
	Participants []ParticipantResult `json:"participants"`
}

// Failures counts participants and grants that could not be saved.
func (r Report) Failures() int {
	n := 0
	for _, p := range r.Participants {
		if p.Error != "" {
			n++
		}
	}
	for _, g := range r.Grants {
		if g.Error != "" {
			n++
		}
	}
	return n
}

// RewardInput describes a concluded battle.
type RewardInput struct {
	BattleType BattleType
	Outcome    Outcome
	Turn       int
	// Winner receives experience, currency and drops.
	Winner *Combatant
	// Defeated lists opposing Pokemon that fainted or were captured.
	Defeated []*Pokemon
	// TrainerClass and OpponentLevel drive the currency payout.
	TrainerClass  string
	OpponentLevel int
	// Commit lists every human-controlled combatant whose party is saved.
	Commit []*Combatant
}

// RewardEngine computes and commits post-battle rewards.
type RewardEngine struct {
	species SpeciesSource
	roster  RosterStore
	items   ItemLedger
	cfg     config.RewardConfig
	rng     *rand.Rand
	logger  *zap.Logger
}

func NewRewardEngine(deps Deps, cfg config.RewardConfig, rng *rand.Rand, logger *zap.Logger) *RewardEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxLevel <= 0 {
		cfg.MaxLevel = 100
	}
	return &RewardEngine{
		species: deps.Species,
		roster:  deps.Roster,
		items:   deps.Items,
		cfg:     cfg,
		rng:     rng,
		logger:  logger,
	}
}

// Distribute applies experience and level-ups in memory, then commits each
// human party and credits currency and drops. A failed save is recorded on
// its own row of the report and does not undo the others.
func (e *RewardEngine) Distribute(ctx context.Context, in RewardInput) (Report, []Event) {
	report := Report{Outcome: in.Outcome}
	var events []Event
	gained := map[string]*ParticipantResult{}

	if in.Outcome.Grants() && in.Winner != nil {
		for _, p := range in.Winner.Party {
			r := &ParticipantResult{LevelBefore: p.Level}
			gained[p.CombatID] = r
		}
		a := 1.0
		if in.BattleType == BattleTrainer {
			a = 1.5
		}
		for _, d := range in.Defeated {
			earners := e.earners(in.Winner)
			for _, p := range earners {
				exp := ExpGain(a, d.BaseExp, d.Level, p.Level, len(earners))
				gained[p.CombatID].ExpGained += exp
			}
		}
		for _, p := range in.Winner.Party {
			r := gained[p.CombatID]
			if r.ExpGained > 0 {
				events = append(events, e.gainExp(ctx, p, r)...)
			}
		}
		if in.Winner.Controller == ControllerHuman {
			report.Currency = e.currency(in)
			if report.Currency > 0 && e.cfg.CurrencyItemID != "" {
				report.Grants = append(report.Grants, e.grant(ctx, in.Winner.OwnerID, e.cfg.CurrencyItemID, report.Currency))
			}
			for _, g := range e.rollDrops(ctx, in.Defeated) {
				report.Grants = append(report.Grants, e.grant(ctx, in.Winner.OwnerID, g.ItemID, g.Qty))
			}
		}
	}

	for _, c := range in.Commit {
		for _, p := range c.Party {
			r, ok := gained[p.CombatID]
			if !ok {
				r = &ParticipantResult{LevelBefore: p.Level}
			}
			r.CombatID = p.CombatID
			r.EntryID = p.EntryID
			r.Name = p.Name
			r.Participated = p.Participated
			r.LevelAfter = p.Level
			e.save(ctx, p, r)
			report.Participants = append(report.Participants, *r)
		}
	}

	e.logger.Info("battle rewards distributed",
		zap.String("outcome", string(in.Outcome)),
		zap.Int("currency", report.Currency),
		zap.Int("participants", len(report.Participants)),
		zap.Int("failures", report.Failures()))
	return report, events
}

// earners are the surviving Pokemon that took part in the fight.
func (e *RewardEngine) earners(c *Combatant) []*Pokemon {
	var out []*Pokemon
	for _, p := range c.Party {
		if p.Participated && !p.IsFainted() {
			out = append(out, p)
		}
	}
	return out
}

// gainExp adds exp and levels p up one level at a time.
func (e *RewardEngine) gainExp(ctx context.Context, p *Pokemon, r *ParticipantResult) []Event {
	var events []Event
	p.Exp += int64(r.ExpGained)
	for p.Level < e.cfg.MaxLevel && p.Exp >= ExpForLevel(p.GrowthRate, p.Level+1) {
		p.Level++
		old := p.Stats
		p.Stats = ComputeStats(p.BaseStats, p.IVs, p.EVs, p.Level, p.Nature)
		delta := StatDelta{
			HP:  p.Stats.HP - old.HP,
			Atk: p.Stats.Atk - old.Atk,
			Def: p.Stats.Def - old.Def,
			SpA: p.Stats.SpA - old.SpA,
			SpD: p.Stats.SpD - old.SpD,
			Spe: p.Stats.Spe - old.Spe,
		}
		p.MaxHP = p.Stats.HP
		if !p.IsFainted() {
			p.SetHP(p.HP + delta.HP)
		}
		r.StatDelta = addStats(r.StatDelta, delta)
		events = append(events, EventLevelUp{
			Display:  Display{DisplayMs: 1000},
			CombatID: p.CombatID,
			Level:    p.Level,
			Delta:    delta,
			Stats:    p.Snapshot(),
		})
		events = append(events, e.learnMoves(ctx, p, r)...)
	}
	return events
}

func (e *RewardEngine) learnMoves(ctx context.Context, p *Pokemon, r *ParticipantResult) []Event {
	sp, err := e.species.Species(ctx, p.SpeciesID)
	if err != nil {
		e.logger.Warn("species lookup failed during level up", zap.Int("species_id", p.SpeciesID), zap.Error(err))
		return nil
	}
	var events []Event
next:
	for _, id := range sp.MovesAt(p.Level) {
		for _, m := range p.Moves {
			if m.MoveID == id {
				continue next
			}
		}
		mv, err := e.species.Move(ctx, id)
		if err != nil {
			e.logger.Warn("move lookup failed during level up", zap.Int("move_id", id), zap.Error(err))
			continue
		}
		slot := newMoveSlot(mv, mv.PP, mv.PP)
		switch {
		case len(p.Moves) < 4:
			p.Moves = append(p.Moves, slot)
			r.Learned = append(r.Learned, id)
			events = append(events, EventMoveLearned{CombatID: p.CombatID, MoveID: id})
		case e.cfg.MoveReplacement == ReplaceOldest:
			forgotten := p.Moves[0].MoveID
			p.Moves = append(p.Moves[1:], slot)
			r.Learned = append(r.Learned, id)
			events = append(events, EventMoveLearned{CombatID: p.CombatID, MoveID: id, Replaced: forgotten})
		default:
			r.PendingMoves = append(r.PendingMoves, id)
			events = append(events, EventMoveLearned{CombatID: p.CombatID, MoveID: id, Pending: true})
		}
	}
	return events
}

func (e *RewardEngine) currency(in RewardInput) int {
	var base int
	switch in.BattleType {
	case BattleTrainer:
		base = e.cfg.ClassPayouts[in.TrainerClass] * in.OpponentLevel
	case BattleWild:
		base = e.cfg.WildPayoutPerLevel * in.OpponentLevel
	default:
		return 0
	}
	mult := 1.0
	if in.Winner != nil && !in.Winner.AnyFainted() {
		mult *= 1 + e.cfg.NoFaintBonus
	}
	if e.cfg.FastTurnThreshold > 0 && in.Turn <= e.cfg.FastTurnThreshold {
		mult *= 1 + e.cfg.FastTurnBonus
	}
	return int(math.Floor(float64(base) * mult))
}

func (e *RewardEngine) rollDrops(ctx context.Context, defeated []*Pokemon) []ItemGrant {
	var out []ItemGrant
	for _, d := range defeated {
		sp, err := e.species.Species(ctx, d.SpeciesID)
		if err != nil {
			continue
		}
		for _, drop := range sp.Drops {
			if e.rng.Float64() < drop.Chance {
				out = append(out, ItemGrant{ItemID: drop.ItemID, Qty: max(drop.Qty, 1)})
			}
		}
	}
	return out
}

func (e *RewardEngine) grant(ctx context.Context, ownerID int64, itemID string, qty int) ItemGrant {
	g := ItemGrant{OwnerID: ownerID, ItemID: itemID, Qty: qty}
	if err := e.items.AddItem(ctx, ownerID, itemID, qty); err != nil {
		g.Error = external("add item", err).Error()
		e.logger.Warn("reward grant failed",
			zap.Int64("owner_id", ownerID), zap.String("item_id", itemID), zap.Error(err))
		return g
	}
	g.Saved = true
	return g
}

func (e *RewardEngine) save(ctx context.Context, p *Pokemon, r *ParticipantResult) {
	entry := p.Commit()
	if entry == nil {
		return
	}
	if err := e.roster.SaveRosterEntry(ctx, entry); err != nil {
		r.Error = external("save roster entry", err).Error()
		e.logger.Warn("commit roster entry failed",
			zap.Int64("entry_id", p.EntryID), zap.Error(err))
		return
	}
	r.Saved = true
}

func addStats(a, b StatDelta) StatDelta {
	return StatDelta{
		HP:  a.HP + b.HP,
		Atk: a.Atk + b.Atk,
		Def: a.Def + b.Def,
		SpA: a.SpA + b.SpA,
		SpD: a.SpD + b.SpD,
		Spe: a.Spe + b.Spe,
	}
}
