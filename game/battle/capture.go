package battle

import (
	"context"
	"math/rand"
	"time"

	"github.com/kasuganosora/monsterbattle/config"
	"github.com/kasuganosora/monsterbattle/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Display hints for capture events, in milliseconds.
const (
	throwDisplayMs   = 1000
	shakeDisplayMs   = 800
	successDisplayMs = 1200
	failDisplayMs    = 600
)

// CaptureOutcome is the probabilistic part of a capture attempt.
type CaptureOutcome struct {
	X         int   `json:"x"`
	CC        int   `json:"cc"`
	Y         int   `json:"y"`
	Automatic bool  `json:"automatic"`
	Critical  bool  `json:"critical"`
	Draws     []int `json:"draws,omitempty"` // shake draws only
	Shakes    int   `json:"shakes"`
	Success   bool  `json:"success"`
}

// EvaluateCapture runs the critical and shake checks for capture value x
// with critical multiplier p. X >= 255 succeeds without touching rng.
func EvaluateCapture(x int, p float64, rng *rand.Rand) CaptureOutcome {
	out := CaptureOutcome{X: x}
	if x >= 255 {
		out.Automatic = true
		out.Success = true
		return out
	}

	out.CC = CriticalCaptureChance(x, p)
	out.Critical = rng.Intn(256) < out.CC
	out.Y = ShakeThreshold(x)

	n := 3
	if out.Critical {
		n = 1
	}
	out.Success = true
	for i := 0; i < n; i++ {
		d := rng.Intn(65536)
		out.Draws = append(out.Draws, d)
		out.Shakes++
		if d >= out.Y {
			out.Success = false
			break
		}
	}
	return out
}

// CaptureRequest describes one throw.
type CaptureRequest struct {
	BattleType     BattleType
	PlayerID       int64
	Target         *Pokemon
	BallID         string
	Turn           int
	SpecialTerrain bool
	// Synchronized makes Attempt sleep through the display hints before
	// returning.
	Synchronized bool
}

// CaptureResult is what a throw produced.
type CaptureResult struct {
	CaptureOutcome
	EntryID int64
	// Pending is set when the captured entity is waiting in the retry queue.
	Pending bool
	Entity  *model.Pokemon
	Events  []Event
}

// CaptureEngine validates and resolves capture attempts.
type CaptureEngine struct {
	species SpeciesSource
	roster  RosterStore
	items   ItemLedger
	pending PendingCaptures
	cfg     config.CaptureConfig
	rng     *rand.Rand
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewCaptureEngine wires a capture engine. rng must not be shared across
// goroutines without external locking.
func NewCaptureEngine(deps Deps, cfg config.CaptureConfig, rng *rand.Rand, logger *zap.Logger) *CaptureEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CaptureEngine{
		species: deps.Species,
		roster:  deps.Roster,
		items:   deps.Items,
		pending: deps.Pending,
		cfg:     cfg,
		rng:     rng,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attempt validates the preconditions, consumes one ball and runs the
// capture checks. Precondition failures return an error wrapping
// ErrPrecondition and consume nothing.
func (e *CaptureEngine) Attempt(ctx context.Context, req CaptureRequest) (CaptureResult, error) {
	if req.BattleType != BattleWild {
		return CaptureResult{}, ErrNotWild
	}
	if req.Target == nil || req.Target.IsFainted() {
		return CaptureResult{}, ErrTargetFainted
	}
	ball, ok := LookupBall(req.BallID)
	if !ok {
		return CaptureResult{}, ErrUnknownBall
	}
	n, err := e.items.GetItemCount(ctx, req.PlayerID, ball.ID)
	if err != nil {
		return CaptureResult{}, external("count balls", err)
	}
	if n < 1 {
		return CaptureResult{}, ErrNoBall
	}
	if err := e.items.ConsumeItem(ctx, req.PlayerID, ball.ID, 1); err != nil {
		return CaptureResult{}, external("consume ball", err)
	}

	caught, err := e.roster.CaughtSpeciesCount(ctx, req.PlayerID)
	if err != nil {
		e.logger.Warn("caught count unavailable, using lowest tier",
			zap.Int64("player_id", req.PlayerID), zap.Error(err))
		caught = 0
	}

	target := req.Target
	terrain := 1.0
	if req.SpecialTerrain {
		terrain = TierMultiplier(e.cfg.EnvironmentTiers, caught)
	}
	x := CaptureValue(CaptureInput{
		MaxHP:     target.MaxHP,
		HP:        target.HP,
		Terrain:   terrain,
		CatchRate: target.CaptureRate,
		Ball:      ball.Modifier(req.Turn),
		Status:    StatusCaptureMultiplier(target.Status),
		Power:     e.cfg.CapturePower,
	})
	if ball.Kind == BallGuaranteed {
		x = max(x, 255)
	}

	res := CaptureResult{CaptureOutcome: EvaluateCapture(x, TierMultiplier(e.cfg.CriticalTiers, caught), e.rng)}
	res.Events = append(res.Events, EventCaptureThrow{
		Display:  Display{DisplayMs: throwDisplayMs},
		BallID:   ball.ID,
		TargetID: target.CombatID,
	})
	for i := 1; i <= res.Shakes; i++ {
		res.Events = append(res.Events, EventCaptureShake{Display: Display{DisplayMs: shakeDisplayMs}, Index: i})
	}

	result := EventCaptureResult{Success: res.Success, Critical: res.Critical, Shakes: res.Shakes}
	if res.Success {
		result.DisplayMs = successDisplayMs
		res.Entity = e.buildEntity(ctx, req.PlayerID, target, ball.ID)
		res.EntryID, res.Pending = e.persist(ctx, res.Entity)
		result.EntryID = res.EntryID
		result.Pending = res.Pending
	} else {
		result.DisplayMs = failDisplayMs
	}
	res.Events = append(res.Events, result)

	e.logger.Info("capture attempt",
		zap.Int64("player_id", req.PlayerID),
		zap.Int("species_id", target.SpeciesID),
		zap.String("ball", ball.ID),
		zap.Int("x", res.X),
		zap.Bool("critical", res.Critical),
		zap.Int("shakes", res.Shakes),
		zap.Bool("success", res.Success))

	if req.Synchronized {
		wait := time.Duration(TotalDisplay(res.Events)) * time.Millisecond
		if err := e.sleep(ctx, wait); err != nil {
			e.logger.Debug("synchronized capture wait cut short", zap.Error(err))
		}
	}
	return res, nil
}

// buildEntity creates the roster entry for a captured Pokemon: battle level,
// HP, status and moveset, with freshly rolled hidden stats.
func (e *CaptureEngine) buildEntity(ctx context.Context, playerID int64, target *Pokemon, ballID string) *model.Pokemon {
	var h hiddenStats
	if sp, err := e.species.Species(ctx, target.SpeciesID); err == nil {
		h = rollHidden(sp, e.rng)
	} else {
		e.logger.Warn("species lookup failed for captured pokemon",
			zap.Int("species_id", target.SpeciesID), zap.Error(err))
		h = hiddenStats{nature: target.Nature, ability: target.Ability, gender: target.Gender, ivs: target.IVs}
	}

	maxHP := CalcHP(target.BaseStats.HP, h.ivs.HP, 0, target.Level)
	hp := min(target.HP, maxHP)
	status := target.Status
	if status == StatusFainted {
		status = StatusNone
	}
	return &model.Pokemon{
		OwnerID:   playerID,
		SpeciesID: target.SpeciesID,
		Level:     target.Level,
		Exp:       max(target.Exp, ExpForLevel(target.GrowthRate, target.Level)),
		HP:        hp,
		Status:    string(status),
		Nature:    h.nature,
		Ability:   h.ability,
		Gender:    h.gender,
		IVs:       datatypes.NewJSONType(h.ivs),
		EVs:       datatypes.NewJSONType(model.StatBlock{}),
		Moves:     datatypes.NewJSONType(target.moveRecords()),
		Ball:      ballID,
	}
}

// persist stores the captured entity, parking it in the pending queue if the
// roster store fails. Without a queue the entity survives only in the
// capture result, which is logged at error level.
func (e *CaptureEngine) persist(ctx context.Context, entity *model.Pokemon) (int64, bool) {
	id, err := e.roster.PersistCapturedEntity(ctx, entity)
	if err == nil {
		return id, false
	}
	e.logger.Warn("persist captured pokemon failed, queueing for retry",
		zap.Int64("owner_id", entity.OwnerID), zap.Error(err))
	if e.pending == nil {
		e.logger.Error("no pending capture queue configured", zap.Int64("owner_id", entity.OwnerID))
		return 0, true
	}
	if qerr := e.pending.Enqueue(ctx, entity); qerr != nil {
		e.logger.Error("enqueue pending capture failed",
			zap.Int64("owner_id", entity.OwnerID), zap.Error(qerr))
	}
	return 0, true
}
