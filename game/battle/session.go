package battle

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/monsterbattle/config"
	"github.com/kasuganosora/monsterbattle/game/species"
	"github.com/kasuganosora/monsterbattle/scheduler"
	"go.uber.org/zap"
)

// TerrainDarkGrass switches the capture formula to the environment tiers.
const TerrainDarkGrass = "dark_grass"

// StruggleSlot selects Struggle, only legal once every move is out of PP.
const StruggleSlot = -1

const (
	timerDecision = "decision_timeout"
	timerAI       = "ai_think"
)

// Reasons a submission is rejected.
const (
	ReasonPhase          = "phase_does_not_accept_action"
	ReasonAlreadyQueued  = "already_submitted"
	ReasonNotHuman       = "side_not_human_controlled"
	ReasonNotYourSwitch  = "not_your_switch"
	ReasonBadSide        = "invalid_side"
	ReasonBadMoveSlot    = "unknown_move_slot"
	ReasonNoPP           = "no_pp"
	ReasonUnknownItem    = "unknown_item"
	ReasonBadTarget      = "invalid_target"
	ReasonBadRosterIndex = "invalid_roster_index"
	ReasonDisposed       = "session_disposed"
)

// SubmitResult tells the caller whether an action was taken.
type SubmitResult struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

func accepted() SubmitResult { return SubmitResult{Accepted: true} }

func rejected(reason string) SubmitResult { return SubmitResult{Reason: reason} }

// PhaseState is the client-facing summary of a session.
type PhaseState struct {
	SessionID  string           `json:"session_id"`
	BattleType BattleType       `json:"battle_type"`
	Phase      Phase            `json:"phase"`
	Turn       int              `json:"turn"`
	CanAct     bool             `json:"can_act"`
	Queued     [2]bool          `json:"queued"`
	SwitchData *SwitchPhaseData `json:"switch_data,omitempty"`
	Outcome    Outcome          `json:"outcome,omitempty"`
	Sides      [2]SideSnapshot  `json:"sides"`
}

// SessionConfig configures one battle. Zero values fall back to defaults.
type SessionConfig struct {
	ID      string
	Type    BattleType
	Terrain string
	Battle  config.BattleConfig
	Capture config.CaptureConfig
	Reward  config.RewardConfig
	// SynchronizedCapture makes capture resolution wait out the animation
	// hints before the turn continues.
	SynchronizedCapture bool
	RNG                 *rand.Rand
	Logger              *zap.Logger
	TurnManager         TurnManager
	// Sink receives every batch of events, including those produced by
	// timers. It is called with the session locked and must not block or
	// call back into the session.
	Sink func(sessionID string, events []Event)
}

// Session is one battle. Every exported method is safe for concurrent use;
// the session mutex serializes callers and timer callbacks.
type Session struct {
	mu     sync.Mutex
	id     string
	cfg    SessionConfig
	deps   Deps
	pm     *PhaseManager
	timers *scheduler.Scheduler
	sides  [2]*Combatant
	turn   int
	queue  [2]*QueuedAction
	leads  [2]int

	switchQueue []Side
	offerShift  bool
	captured    *Pokemon

	pending    []Event
	journalSeq int

	outcome  Outcome
	winner   *Side
	report   *Report
	endedAt  time.Time
	disposed bool

	capture *CaptureEngine
	reward  *RewardEngine
	turns   TurnManager
	rng     *rand.Rand
	logger  *zap.Logger
	now     func() time.Time
}

// NewSession validates the two sides and wires a session in the "none"
// phase. Call Start to begin.
func NewSession(cfg SessionConfig, deps Deps, player, opponent *Combatant) (*Session, error) {
	if player == nil || opponent == nil {
		return nil, fmt.Errorf("%w: both sides are required", ErrInvalidAction)
	}
	if !player.HasUsable() || !opponent.HasUsable() {
		return nil, fmt.Errorf("%w: a side has no Pokemon able to fight", ErrInvalidAction)
	}
	if cfg.Type == BattleWild && len(opponent.Party) != 1 {
		return nil, fmt.Errorf("%w: wild encounters have exactly one opponent", ErrInvalidAction)
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RNG == nil {
		cfg.RNG = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.TurnManager == nil {
		cfg.TurnManager = DefaultTurnManager{}
	}
	logger := cfg.Logger.With(zap.String("session_id", cfg.ID), zap.String("battle_type", string(cfg.Type)))

	s := &Session{
		id:      cfg.ID,
		cfg:     cfg,
		deps:    deps,
		timers:  scheduler.New(logger),
		leads:   [2]int{-1, -1},
		capture: NewCaptureEngine(deps, cfg.Capture, cfg.RNG, logger),
		reward:  NewRewardEngine(deps, cfg.Reward, cfg.RNG, logger),
		turns:   cfg.TurnManager,
		rng:     cfg.RNG,
		logger:  logger,
		now:     time.Now,
	}
	player.Side, opponent.Side = SidePlayer, SideOpponent
	s.sides = [2]*Combatant{player, opponent}
	for _, c := range s.sides {
		c.switchTo(ChooseLead(c))
	}
	s.pm = NewPhaseManager(s.timers, logger)
	s.pm.OnTransition(s.onTransition)
	s.pm.OnSwitchTimeout(s.onSwitchTimeout)
	return s, nil
}

func (s *Session) ID() string { return s.id }

func (s *Session) Type() BattleType { return s.cfg.Type }

// SideOf returns the side owned by playerID.
func (s *Session) SideOf(playerID int64) (Side, bool) {
	for _, c := range s.sides {
		if c.Controller == ControllerHuman && c.OwnerID == playerID {
			return c.Side, true
		}
	}
	return 0, false
}

// Start runs the intro and opens the first decision phase.
func (s *Session) Start(ctx context.Context) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil, fmt.Errorf("%w: session disposed", ErrInvalidTransition)
	}
	if !s.pm.Initialize(s.cfg.Type) {
		return nil, fmt.Errorf("%w: session already started", ErrInvalidTransition)
	}
	s.emit(EventBattleStart{
		SessionID:  s.id,
		BattleType: s.cfg.Type,
		Sides:      [2]SideSnapshot{s.sides[0].snapshot(), s.sides[1].snapshot()},
	})
	if !s.pm.SetPhase(PhaseIntro, TriggerBattleStart, nil) {
		s.fail(ctx, fmt.Errorf("%w: cannot enter intro", ErrUnrecoverable))
		return s.flushLocked(), ErrUnrecoverable
	}
	if s.cfg.Type == BattleWild {
		s.enterTurn(ctx, TriggerIntroComplete)
	} else {
		s.beginLeadSelection(ctx)
	}
	return s.flushLocked(), nil
}

// SubmitAction queues or applies side's action for the current phase.
func (s *Session) SubmitAction(ctx context.Context, side Side, action Action) (SubmitResult, []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return rejected(ReasonDisposed), nil
	}
	action = normalizeAction(action)
	res := s.submitLocked(ctx, side, action)
	if !res.Accepted {
		var kind ActionType
		if action != nil {
			kind = action.Type()
		}
		s.logger.Debug("action rejected",
			zap.Int("side", int(side)),
			zap.String("action", string(kind)),
			zap.String("reason", res.Reason))
	}
	return res, s.flushLocked()
}

func (s *Session) submitLocked(ctx context.Context, side Side, action Action) SubmitResult {
	if side != SidePlayer && side != SideOpponent {
		return rejected(ReasonBadSide)
	}
	if action == nil {
		return rejected(ReasonPhase)
	}
	if s.sides[side].Controller != ControllerHuman {
		return rejected(ReasonNotHuman)
	}
	if !s.pm.CanSubmitAction(action.Type()) {
		return rejected(ReasonPhase)
	}

	switch s.pm.Current() {
	case PhaseActionSelection:
		if s.queue[side] != nil {
			return rejected(ReasonAlreadyQueued)
		}
		if reason := s.validate(side, action); reason != "" {
			return rejected(reason)
		}
		s.enqueue(side, action, false)
		s.tryResolve(ctx)
		return accepted()

	case PhasePokemonSelection:
		if s.leads[side] >= 0 {
			return rejected(ReasonAlreadyQueued)
		}
		sw, ok := action.(SwitchAction)
		if !ok {
			return rejected(ReasonPhase)
		}
		idx := sw.RosterIndex
		c := s.sides[side]
		if idx < 0 || idx >= len(c.Party) || c.Party[idx].IsFainted() {
			return rejected(ReasonBadRosterIndex)
		}
		s.leads[side] = idx
		s.emit(EventActionQueued{Side: side, Action: ActionSwitch})
		if s.leads[0] >= 0 && s.leads[1] >= 0 {
			s.finishLeadSelection(ctx)
		}
		return accepted()

	case PhaseForcedSwitch, PhaseSwitch:
		sd := s.pm.SwitchData()
		if sd == nil || sd.Side != side {
			return rejected(ReasonNotYourSwitch)
		}
		sw, ok := action.(SwitchAction)
		if !ok {
			return rejected(ReasonPhase)
		}
		idx := sw.RosterIndex
		keep := !sd.Forced && idx == s.sides[side].Active
		if !keep && !slices.Contains(sd.ValidIndices, idx) {
			return rejected(ReasonBadRosterIndex)
		}
		s.completeSwitch(ctx, side, idx, false)
		return accepted()

	case PhasePokemonFainted:
		c := s.sides[side]
		if p := c.ActivePokemon(); p == nil || !p.IsFainted() {
			return rejected(ReasonNotYourSwitch)
		}
		switch a := action.(type) {
		case SwitchAction:
			if !slices.Contains(c.SwitchCandidates(), a.RosterIndex) {
				return rejected(ReasonBadRosterIndex)
			}
			s.timers.Remove(timerDecision)
			s.doSwitch(side, a.RosterIndex, false)
			s.enterTurn(ctx, TriggerSwitchComplete)
		case RunAction:
			if s.tryEscape(side) {
				s.finish(ctx, TriggerBattleEnd)
			}
		}
		return accepted()
	}
	return rejected(ReasonPhase)
}

// validate checks an ACTION_SELECTION payload against the current state.
func (s *Session) validate(side Side, action Action) string {
	c := s.sides[side]
	p := c.ActivePokemon()
	switch a := action.(type) {
	case AttackAction:
		if a.MoveSlot == StruggleSlot {
			if p.HasUsableMove() {
				return ReasonBadMoveSlot
			}
			return ""
		}
		if a.MoveSlot < 0 || a.MoveSlot >= len(p.Moves) {
			return ReasonBadMoveSlot
		}
		if p.Moves[a.MoveSlot].PP <= 0 {
			return ReasonNoPP
		}
	case ItemAction:
		it, ok := s.deps.Species.Item(a.ItemID)
		if !ok || it.Kind != species.KindMedicine {
			return ReasonUnknownItem
		}
		if a.TargetIndex < 0 || a.TargetIndex >= len(c.Party) || c.Party[a.TargetIndex].IsFainted() {
			return ReasonBadTarget
		}
	case SwitchAction:
		if !slices.Contains(c.SwitchCandidates(), a.RosterIndex) {
			return ReasonBadRosterIndex
		}
	case CaptureAction:
		if _, ok := LookupBall(a.BallID); !ok {
			return ReasonUnknownItem
		}
	case RunAction:
	default:
		return ReasonPhase
	}
	return ""
}

func (s *Session) enqueue(side Side, action Action, auto bool) {
	s.queue[side] = &QueuedAction{Side: side, Action: action, SubmittedAt: s.now(), Auto: auto}
	s.emit(EventActionQueued{Side: side, Action: action.Type(), Auto: auto})
}

// ResetTurn re-enters ACTION_SELECTION without touching queued actions.
func (s *Session) ResetTurn() (bool, []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return false, nil
	}
	ok := s.pm.SetPhase(PhaseActionSelection, TriggerTurnReset, nil)
	return ok, s.flushLocked()
}

// Resync re-announces the current phase, e.g. after a client reconnects.
func (s *Session) Resync() (bool, []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return false, nil
	}
	ok := s.pm.SetPhase(s.pm.Current(), TriggerResync, s.pm.SwitchData())
	return ok, s.flushLocked()
}

// Forfeit ends the battle as a loss for side.
func (s *Session) Forfeit(ctx context.Context, side Side) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.outcome != "" {
		return nil, fmt.Errorf("%w: battle already over", ErrInvalidTransition)
	}
	w := side.Other()
	s.winner = &w
	s.outcome = OutcomeLoss
	if side == SideOpponent {
		s.outcome = OutcomeWin
	}
	s.finish(ctx, TriggerForceEnd)
	return s.flushLocked(), nil
}

// PhaseState summarizes the session from side's point of view.
func (s *Session) PhaseState(side Side) PhaseState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(side)
}

func (s *Session) stateLocked(side Side) PhaseState {
	st := PhaseState{
		SessionID:  s.id,
		BattleType: s.cfg.Type,
		Phase:      s.pm.Current(),
		Turn:       s.turn,
		Queued:     [2]bool{s.queue[0] != nil, s.queue[1] != nil},
		SwitchData: s.pm.SwitchData(),
		Outcome:    s.outcome,
		Sides:      [2]SideSnapshot{s.sides[0].snapshot(), s.sides[1].snapshot()},
	}
	if s.disposed || side < SidePlayer || side > SideOpponent || s.sides[side].Controller != ControllerHuman || !s.pm.CanAct() {
		return st
	}
	switch st.Phase {
	case PhaseActionSelection:
		st.CanAct = s.queue[side] == nil
	case PhasePokemonSelection:
		st.CanAct = s.leads[side] < 0
	case PhaseForcedSwitch, PhaseSwitch:
		st.CanAct = st.SwitchData != nil && st.SwitchData.Side == side
	case PhasePokemonFainted:
		p := s.sides[side].ActivePokemon()
		st.CanAct = p != nil && p.IsFainted()
	}
	return st
}

// History returns the phase transitions so far.
func (s *Session) History() []PhaseTransition { return s.pm.History() }

// Ended reports whether the battle is over and when it ended.
func (s *Session) Ended() (bool, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pm.Current() == PhaseEnded, s.endedAt
}

// Report returns the reward report once the battle has ended.
func (s *Session) Report() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Dispose cancels every timer. Callbacks already waiting for the session
// lock see the disposed flag and return.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true
	s.timers.Stop()
	s.pm.Dispose()
	s.logger.Debug("session disposed")
}

func (s *Session) emit(events ...Event) {
	s.pending = append(s.pending, events...)
}

func (s *Session) flushLocked() []Event {
	events := s.pending
	s.pending = nil
	if len(events) > 0 && s.cfg.Sink != nil {
		s.cfg.Sink(s.id, events)
	}
	return events
}

func (s *Session) onTransition(t PhaseTransition, sd *SwitchPhaseData) {
	s.emit(EventPhaseChange{From: t.From, To: t.To, Trigger: t.Trigger, Turn: s.turn, SwitchData: sd})
	s.journalSeq++
	if s.deps.Journal != nil {
		s.deps.Journal.Record(s.id, s.journalSeq, s.cfg.Type, t)
	}
}

// fromTimer runs fn for a timer callback under the session lock with a
// bounded store context, then flushes the resulting events.
func (s *Session) fromTimer(name string, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	ctx := context.Background()
	if s.cfg.Battle.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Battle.StoreTimeout)
		defer cancel()
	}
	s.logger.Debug("timer fired", zap.String("timer", name))
	fn(ctx)
	s.flushLocked()
}

func (s *Session) onSwitchTimeout(st SwitchTimeout) {
	s.fromTimer(switchTimerName, func(ctx context.Context) {
		if s.pm.Generation() != st.Generation {
			return
		}
		idx := s.sides[st.Data.Side].Active
		if st.Data.Forced && len(st.Data.ValidIndices) > 0 {
			idx = st.Data.ValidIndices[0]
		}
		s.completeSwitch(ctx, st.Data.Side, idx, true)
	})
}

// fail ends the session after an unrecoverable error.
func (s *Session) fail(ctx context.Context, err error) {
	s.logger.Error("battle aborted", zap.Error(err), zap.Bool("unrecoverable", errors.Is(err, ErrUnrecoverable)))
	s.outcome = OutcomeAborted
	s.winner = nil
	s.finish(ctx, TriggerFatalError)
}
