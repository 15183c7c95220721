package battle

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/kasuganosora/monsterbattle/game/species"
	"go.uber.org/zap"
)

// Reasons a queued action is dropped during resolution.
const (
	DropNoPP            = "no_pp"
	DropItemUnavailable = "item_unavailable"
	DropInvalidTarget   = "invalid_target"
	DropActorFainted    = "actor_fainted"
	DropCannotEscape    = "cannot_escape"
	DropNotWild         = "not_wild"
	DropCaptureFailed   = "capture_failed"
)

var struggle = MoveSlot{Name: "Struggle", Category: species.CategoryPhysical, Power: 50}

// beginLeadSelection opens POKEMON_SELECTION. Non-human sides pick at once.
func (s *Session) beginLeadSelection(ctx context.Context) {
	if !s.pm.SetPhase(PhasePokemonSelection, TriggerIntroComplete, nil) {
		s.fail(ctx, fmt.Errorf("%w: cannot enter lead selection", ErrUnrecoverable))
		return
	}
	for _, c := range s.sides {
		if c.Controller != ControllerHuman {
			s.leads[c.Side] = ChooseLead(c)
		}
	}
	if s.leads[0] >= 0 && s.leads[1] >= 0 {
		s.finishLeadSelection(ctx)
		return
	}
	if d := s.cfg.Battle.DecisionTimeout; d > 0 {
		s.timers.AddDelay(timerDecision, d, func() {
			s.fromTimer(timerDecision, func(ctx context.Context) {
				if s.pm.Current() != PhasePokemonSelection {
					return
				}
				for _, c := range s.sides {
					if s.leads[c.Side] < 0 {
						s.leads[c.Side] = c.Active
					}
				}
				s.finishLeadSelection(ctx)
			})
		})
	}
}

func (s *Session) finishLeadSelection(ctx context.Context) {
	s.timers.Remove(timerDecision)
	for _, c := range s.sides {
		if idx := s.leads[c.Side]; idx != c.Active {
			c.Party[c.Active].Participated = false
			s.doSwitch(c.Side, idx, false)
		}
	}
	s.enterTurn(ctx, TriggerLeadSelected)
}

// enterTurn advances the turn counter, enters ACTION_SELECTION and arms the
// decision timers.
func (s *Session) enterTurn(ctx context.Context, trigger string) {
	s.turn++
	s.queue = [2]*QueuedAction{}
	if !s.pm.SetPhase(PhaseActionSelection, trigger, nil) {
		s.turn--
		s.fail(ctx, fmt.Errorf("%w: cannot enter action selection via %s", ErrUnrecoverable, trigger))
		return
	}
	turn := s.turn

	human := false
	for _, c := range s.sides {
		switch c.Controller {
		case ControllerHuman:
			human = true
		case ControllerAI:
			if s.cfg.Battle.AIThinkDelay <= 0 {
				s.queueAI(c.Side)
				continue
			}
			side := c.Side
			s.timers.AddDelay(timerAI, s.cfg.Battle.AIThinkDelay, func() {
				s.fromTimer(timerAI, func(ctx context.Context) {
					if s.pm.Current() != PhaseActionSelection || s.turn != turn || s.queue[side] != nil {
						return
					}
					s.queueAI(side)
					s.tryResolve(ctx)
				})
			})
		}
	}
	if human && s.cfg.Battle.DecisionTimeout > 0 {
		s.timers.AddDelay(timerDecision, s.cfg.Battle.DecisionTimeout, func() {
			s.fromTimer(timerDecision, func(ctx context.Context) {
				if s.pm.Current() != PhaseActionSelection || s.turn != turn {
					return
				}
				s.fillMissing()
				s.tryResolve(ctx)
			})
		})
	}
	s.tryResolve(ctx)
}

// fillMissing decides for every side that has not acted yet.
func (s *Session) fillMissing() {
	for _, c := range s.sides {
		if s.queue[c.Side] != nil {
			continue
		}
		switch c.Controller {
		case ControllerAI:
			s.queueAI(c.Side)
		case ControllerHuman:
			s.enqueue(c.Side, defaultAttack(c.ActivePokemon()), true)
		}
	}
}

func (s *Session) queueAI(side Side) {
	self := s.sides[side].ActivePokemon()
	foe := s.sides[side.Other()].ActivePokemon()
	slot := ChooseMove(self, foe, s.deps.Species.Effectiveness, s.rng)
	if slot < 0 {
		slot = StruggleSlot
	}
	s.enqueue(side, AttackAction{MoveSlot: slot}, true)
}

// tryResolve starts resolution once every non-passive side has queued.
func (s *Session) tryResolve(ctx context.Context) {
	if s.pm.Current() != PhaseActionSelection {
		return
	}
	for _, c := range s.sides {
		if s.queue[c.Side] == nil && c.Controller != ControllerPassive {
			return
		}
	}
	s.resolveTurn(ctx)
}

func (s *Session) resolveTurn(ctx context.Context) {
	if !s.pm.SetPhase(PhaseActionResolution, TriggerTurnReady, nil) {
		s.fail(ctx, fmt.Errorf("%w: cannot enter resolution", ErrUnrecoverable))
		return
	}
	s.timers.Remove(timerDecision)
	s.timers.Remove(timerAI)

	if err := s.runTurn(ctx); err != nil {
		s.fail(ctx, err)
		return
	}
	if s.outcome != "" {
		s.finish(ctx, TriggerBattleEnd)
		return
	}
	s.afterTurn(ctx)
}

// runTurn applies the queued actions in order plus end-of-turn effects.
// A panic anywhere in the pipeline is turned into an unrecoverable error.
func (s *Session) runTurn(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: resolution panic: %v", ErrUnrecoverable, r)
		}
	}()

	speeds := [2]int{s.sides[0].ActivePokemon().Speed(), s.sides[1].ActivePokemon().Speed()}
	order := s.turns.Order(s.queue[:], speeds)
	s.queue = [2]*QueuedAction{}

	sides := make([]Side, len(order))
	for i, qa := range order {
		sides[i] = qa.Side
	}
	s.emit(EventResolutionStart{Turn: s.turn, Order: sides})

	for _, qa := range order {
		s.apply(ctx, qa)
		if s.checkTerminal() {
			return nil
		}
	}
	s.residual()
	s.checkTerminal()
	return nil
}

func (s *Session) drop(qa *QueuedAction, reason string) {
	s.emit(EventActionDropped{Side: qa.Side, Action: qa.Action.Type(), Reason: reason})
}

func (s *Session) apply(ctx context.Context, qa *QueuedAction) {
	c := s.sides[qa.Side]
	if c.ActivePokemon().IsFainted() && qa.Action.Type() != ActionSwitch {
		s.drop(qa, DropActorFainted)
		return
	}
	switch a := qa.Action.(type) {
	case AttackAction:
		s.applyAttack(qa, a)
	case ItemAction:
		s.applyItem(ctx, qa, a)
	case SwitchAction:
		if !slices.Contains(c.SwitchCandidates(), a.RosterIndex) {
			s.drop(qa, DropInvalidTarget)
			return
		}
		s.doSwitch(qa.Side, a.RosterIndex, false)
	case RunAction:
		if s.cfg.Type != BattleWild {
			s.drop(qa, DropCannotEscape)
			return
		}
		s.tryEscape(qa.Side)
	case CaptureAction:
		s.applyCapture(ctx, qa, a)
	default:
		s.logger.Error("unknown action type", zap.String("type", fmt.Sprintf("%T", a)))
	}
}

func (s *Session) applyAttack(qa *QueuedAction, a AttackAction) {
	side := qa.Side
	user := s.sides[side].ActivePokemon()
	target := s.sides[side.Other()].ActivePokemon()
	if target == nil || target.IsFainted() {
		s.drop(qa, DropInvalidTarget)
		return
	}

	var mv MoveSlot
	if a.MoveSlot == StruggleSlot {
		if user.HasUsableMove() {
			s.drop(qa, DropNoPP)
			return
		}
		mv = struggle
	} else {
		if a.MoveSlot < 0 || a.MoveSlot >= len(user.Moves) || user.Moves[a.MoveSlot].PP <= 0 {
			s.drop(qa, DropNoPP)
			return
		}
		mv = user.Moves[a.MoveSlot]
	}

	if !s.canMove(side, user) {
		return
	}
	if a.MoveSlot != StruggleSlot {
		user.Moves[a.MoveSlot].PP--
	}

	hit := mv.Accuracy <= 0 || s.rng.Intn(100) < mv.Accuracy
	s.emit(EventMoveUsed{
		Display:  Display{DisplayMs: 800},
		Side:     side,
		CombatID: user.CombatID,
		MoveID:   mv.MoveID,
		MoveName: mv.Name,
		Missed:   !hit,
	})
	if !hit {
		return
	}

	if mv.Power > 0 && mv.Category != species.CategoryStatus {
		eff := 1.0
		if mv.Type != "" {
			eff = s.deps.Species.Effectiveness(mv.Type, target.Types)
		}
		atk, def := user.Stats.Atk, target.Stats.Def
		if mv.Category == species.CategorySpecial {
			atk, def = user.Stats.SpA, target.Stats.SpD
		}
		crit := s.rng.Intn(24) == 0
		dmg := Damage(DamageInput{
			Level:         user.Level,
			Power:         mv.Power,
			Attack:        atk,
			Defense:       def,
			STAB:          mv.Type != "" && user.HasType(mv.Type),
			Effectiveness: eff,
			Critical:      crit,
			Random:        85 + s.rng.Intn(16),
			Burned:        user.Status == StatusBurn && mv.Category == species.CategoryPhysical,
		})
		s.dealDamage(side.Other(), target, dmg, "move", crit, eff)
		if a.MoveSlot == StruggleSlot {
			s.dealDamage(side, user, max(user.MaxHP/4, 1), "recoil", false, 0)
		}
	}

	if mv.Effect != nil && !target.IsFainted() && target.Status == StatusNone {
		if mv.Effect.Chance <= 0 || s.rng.Intn(100) < mv.Effect.Chance {
			s.inflict(side.Other(), target, Status(mv.Effect.Status))
		}
	}
}

// canMove applies the sleep, freeze and paralysis gates before an attack.
func (s *Session) canMove(side Side, p *Pokemon) bool {
	blocked := func(reason Status) bool {
		s.emit(EventCantMove{Display: Display{DisplayMs: 600}, Side: side, CombatID: p.CombatID, Reason: reason})
		return false
	}
	switch p.Status {
	case StatusSleep:
		if p.SleepTurns > 0 {
			p.SleepTurns--
			return blocked(StatusSleep)
		}
		s.cure(side, p)
	case StatusFreeze:
		if s.rng.Intn(100) >= 20 {
			return blocked(StatusFreeze)
		}
		s.cure(side, p)
	case StatusParalysis:
		if s.rng.Intn(100) < 25 {
			return blocked(StatusParalysis)
		}
	}
	return true
}

var statusImmunity = map[Status]string{
	StatusBurn:      "fire",
	StatusFreeze:    "ice",
	StatusParalysis: "electric",
	StatusPoison:    "poison",
}

func (s *Session) inflict(side Side, p *Pokemon, st Status) {
	if t, ok := statusImmunity[st]; ok && p.HasType(t) {
		return
	}
	p.Status = st
	if st == StatusSleep {
		p.SleepTurns = 1 + s.rng.Intn(3)
	}
	s.emit(EventStatusApplied{Side: side, CombatID: p.CombatID, Status: st})
}

func (s *Session) cure(side Side, p *Pokemon) {
	old := p.Status
	p.Status = StatusNone
	p.SleepTurns = 0
	s.emit(EventStatusCured{Side: side, CombatID: p.CombatID, Status: old})
}

func (s *Session) dealDamage(side Side, p *Pokemon, amount int, source string, crit bool, eff float64) {
	before := p.HP
	p.SetHP(p.HP - amount)
	s.emit(EventDamage{
		Display:       Display{DisplayMs: 500},
		Side:          side,
		CombatID:      p.CombatID,
		Amount:        before - p.HP,
		HP:            p.HP,
		MaxHP:         p.MaxHP,
		Critical:      crit,
		Effectiveness: eff,
		Source:        source,
	})
	if before > 0 && p.IsFainted() {
		s.emit(EventFainted{Display: Display{DisplayMs: 1000}, Side: side, CombatID: p.CombatID, Name: p.Name})
	}
}

func (s *Session) applyItem(ctx context.Context, qa *QueuedAction, a ItemAction) {
	c := s.sides[qa.Side]
	it, ok := s.deps.Species.Item(a.ItemID)
	if !ok {
		s.drop(qa, DropItemUnavailable)
		return
	}
	if a.TargetIndex < 0 || a.TargetIndex >= len(c.Party) || c.Party[a.TargetIndex].IsFainted() {
		s.drop(qa, DropInvalidTarget)
		return
	}
	p := c.Party[a.TargetIndex]
	heal := min(it.Heal, p.MaxHP-p.HP)
	cures := p.Status != StatusNone && it.Cure(string(p.Status))
	if heal <= 0 && !cures {
		s.drop(qa, DropInvalidTarget)
		return
	}
	n, err := s.deps.Items.GetItemCount(ctx, c.OwnerID, it.ID)
	if err != nil || n < 1 {
		if err != nil {
			s.logger.Warn("item count failed", zap.String("item_id", it.ID), zap.Error(err))
		}
		s.drop(qa, DropItemUnavailable)
		return
	}
	if err := s.deps.Items.ConsumeItem(ctx, c.OwnerID, it.ID, 1); err != nil {
		s.logger.Warn("consume item failed", zap.String("item_id", it.ID), zap.Error(err))
		s.drop(qa, DropItemUnavailable)
		return
	}

	ev := EventItemUsed{Side: qa.Side, ItemID: it.ID, TargetIndex: a.TargetIndex}
	if heal > 0 {
		p.SetHP(p.HP + heal)
		ev.Healed = heal
	}
	if cures {
		ev.Cured = p.Status
		p.Status = StatusNone
		p.SleepTurns = 0
	}
	s.emit(ev)
}

func (s *Session) applyCapture(ctx context.Context, qa *QueuedAction, a CaptureAction) {
	target := s.sides[qa.Side.Other()].ActivePokemon()
	res, err := s.safeCapture(ctx, CaptureRequest{
		BattleType:     s.cfg.Type,
		PlayerID:       s.sides[qa.Side].OwnerID,
		Target:         target,
		BallID:         a.BallID,
		Turn:           s.turn,
		SpecialTerrain: s.cfg.Terrain == TerrainDarkGrass,
		Synchronized:   s.cfg.SynchronizedCapture,
	})
	if err != nil {
		reason := DropCaptureFailed
		switch {
		case errors.Is(err, ErrNotWild):
			reason = DropNotWild
		case errors.Is(err, ErrTargetFainted):
			reason = DropInvalidTarget
		case errors.Is(err, ErrUnknownBall), errors.Is(err, ErrNoBall):
			reason = DropItemUnavailable
		default:
			s.logger.Warn("capture failed, battle continues", zap.Error(err))
		}
		s.drop(qa, reason)
		return
	}
	s.emit(res.Events...)
	if res.Success {
		w := qa.Side
		s.winner = &w
		s.outcome = OutcomeCapture
		s.captured = target
	}
}

func (s *Session) safeCapture(ctx context.Context, req CaptureRequest) (res CaptureResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("capture panic: %v", r)
		}
	}()
	return s.capture.Attempt(ctx, req)
}

// tryEscape runs the escape check for side and records a flee on success.
func (s *Session) tryEscape(side Side) bool {
	c := s.sides[side]
	self := c.ActivePokemon()
	foe := s.sides[side.Other()].ActivePokemon()
	f := EscapeOdds(self.Speed(), foe.Speed(), c.EscapeAttempts)
	ok := f > 255 || s.rng.Intn(256) < f
	if !ok {
		c.EscapeAttempts++
	}
	s.emit(EventEscape{Display: Display{DisplayMs: 800}, Side: side, Success: ok})
	if ok {
		s.outcome = OutcomeFlee
		s.winner = nil
	}
	return ok
}

// residual applies end-of-turn burn and poison damage.
func (s *Session) residual() {
	for _, c := range s.sides {
		p := c.ActivePokemon()
		if p.IsFainted() {
			continue
		}
		switch p.Status {
		case StatusBurn:
			s.dealDamage(c.Side, p, max(p.MaxHP/16, 1), "burn", false, 0)
		case StatusPoison:
			s.dealDamage(c.Side, p, max(p.MaxHP/8, 1), "poison", false, 0)
		}
	}
}

// checkTerminal records a win or loss once a side has nothing left.
func (s *Session) checkTerminal() bool {
	if s.outcome != "" {
		return true
	}
	switch {
	case !s.sides[SidePlayer].HasUsable():
		w := SideOpponent
		s.winner, s.outcome = &w, OutcomeLoss
	case !s.sides[SideOpponent].HasUsable():
		w := SidePlayer
		s.winner, s.outcome = &w, OutcomeWin
	default:
		return false
	}
	return true
}

func (s *Session) doSwitch(side Side, idx int, auto bool) {
	c := s.sides[side]
	from := c.Active
	c.switchTo(idx)
	s.emit(EventSwitched{
		Display:  Display{DisplayMs: 1000},
		Side:     side,
		From:     from,
		To:       idx,
		Incoming: c.Party[idx].Snapshot(),
		Auto:     auto,
	})
}

// afterTurn picks the phase that follows a resolved, non-terminal turn.
func (s *Session) afterTurn(ctx context.Context) {
	var fainted []Side
	for _, c := range s.sides {
		if c.ActivePokemon().IsFainted() {
			fainted = append(fainted, c.Side)
		}
	}
	if len(fainted) == 0 {
		s.enterTurn(ctx, TriggerTurnComplete)
		return
	}

	if s.cfg.Type == BattleWild {
		if !s.pm.SetPhase(PhasePokemonFainted, TriggerPokemonFainted, nil) {
			s.fail(ctx, fmt.Errorf("%w: cannot enter fainted phase", ErrUnrecoverable))
			return
		}
		s.armFaintedTimeout()
		return
	}

	s.switchQueue = s.switchQueue[:0]
	for _, side := range fainted {
		c := s.sides[side]
		if c.Controller == ControllerHuman {
			s.switchQueue = append(s.switchQueue, side)
			continue
		}
		data := &SwitchPhaseData{Side: side, ValidIndices: c.SwitchCandidates(), Forced: true}
		if !s.pm.SetPhase(PhaseForcedSwitch, s.switchTrigger(), data) {
			s.fail(ctx, fmt.Errorf("%w: cannot enter forced switch", ErrUnrecoverable))
			return
		}
		idx := ChooseReplacement(c, s.sides[side.Other()].ActivePokemon(), s.deps.Species.Effectiveness)
		s.doSwitch(side, idx, true)
		foe := s.sides[side.Other()]
		s.offerShift = s.cfg.Battle.ShiftMode && foe.Controller == ControllerHuman && !foe.ActivePokemon().IsFainted()
	}
	s.advanceSwitches(ctx, TriggerSwitchComplete)
}

func (s *Session) switchTrigger() string {
	if s.pm.Current() == PhaseForcedSwitch {
		return TriggerNextForced
	}
	return TriggerPokemonFainted
}

// armFaintedTimeout switches in the first healthy Pokemon if the player does
// not decide in time after a faint in a wild battle.
func (s *Session) armFaintedTimeout() {
	d := s.cfg.Battle.ForcedSwitchTimeout
	if d <= 0 {
		return
	}
	gen := s.pm.Generation()
	s.timers.AddDelay(timerDecision, d, func() {
		s.fromTimer(timerDecision, func(ctx context.Context) {
			if s.pm.Current() != PhasePokemonFainted || s.pm.Generation() != gen {
				return
			}
			c := s.sides[SidePlayer]
			if cands := c.SwitchCandidates(); len(cands) > 0 {
				s.doSwitch(SidePlayer, cands[0], true)
			}
			s.enterTurn(ctx, TriggerAutoSwitch)
		})
	})
}

// completeSwitch applies a choice made in FORCED_SWITCH or SWITCH_PHASE.
// idx equal to the active index keeps the current Pokemon.
func (s *Session) completeSwitch(ctx context.Context, side Side, idx int, auto bool) {
	if idx != s.sides[side].Active {
		s.doSwitch(side, idx, auto)
	}
	trigger := TriggerSwitchComplete
	if auto {
		trigger = TriggerAutoSwitch
	}
	s.advanceSwitches(ctx, trigger)
}

// advanceSwitches moves to the next pending forced switch, the shift offer,
// or the next turn.
func (s *Session) advanceSwitches(ctx context.Context, trigger string) {
	if len(s.switchQueue) > 0 {
		side := s.switchQueue[0]
		s.switchQueue = s.switchQueue[1:]
		data := &SwitchPhaseData{
			Side:         side,
			ValidIndices: s.sides[side].SwitchCandidates(),
			Forced:       true,
			TimeLimit:    s.cfg.Battle.ForcedSwitchTimeout,
		}
		if !s.pm.SetPhase(PhaseForcedSwitch, s.switchTrigger(), data) {
			s.fail(ctx, fmt.Errorf("%w: cannot enter forced switch", ErrUnrecoverable))
		}
		return
	}
	if s.offerShift {
		s.offerShift = false
		if cands := s.sides[SidePlayer].SwitchCandidates(); len(cands) > 0 && s.pm.Current() == PhaseForcedSwitch {
			data := &SwitchPhaseData{
				Side:         SidePlayer,
				ValidIndices: cands,
				TimeLimit:    s.cfg.Battle.ShiftSwitchTimeout,
			}
			if !s.pm.SetPhase(PhaseSwitch, TriggerShiftOffer, data) {
				s.fail(ctx, fmt.Errorf("%w: cannot enter shift switch", ErrUnrecoverable))
			}
			return
		}
	}
	s.enterTurn(ctx, trigger)
}

// finish distributes rewards, commits and enters ENDED.
func (s *Session) finish(ctx context.Context, trigger string) {
	s.timers.Remove(timerDecision)
	s.timers.Remove(timerAI)
	s.pm.Dispose()

	in := RewardInput{BattleType: s.cfg.Type, Outcome: s.outcome, Turn: s.turn}
	if s.winner != nil {
		loser := s.sides[s.winner.Other()]
		in.Winner = s.sides[*s.winner]
		in.TrainerClass = loser.TrainerClass
		in.OpponentLevel = loser.HighestLevel()
		if s.outcome == OutcomeLoss && in.Winner.Controller == ControllerHuman {
			in.Outcome = OutcomeWin
		}
		if s.captured != nil {
			in.Defeated = []*Pokemon{s.captured}
		} else {
			for _, p := range loser.Party {
				if p.IsFainted() {
					in.Defeated = append(in.Defeated, p)
				}
			}
		}
	}
	for _, c := range s.sides {
		if c.Controller == ControllerHuman {
			in.Commit = append(in.Commit, c)
		}
	}

	report, events := s.reward.Distribute(ctx, in)
	report.Outcome = s.outcome
	s.report = &report
	s.emit(events...)
	s.emit(EventRewards{Report: report})

	if !s.pm.SetPhase(PhaseEnded, trigger, nil) {
		s.pm.ForceTransition(PhaseEnded, TriggerFatalError)
	}
	s.endedAt = s.now()
	s.emit(EventBattleEnd{Outcome: s.outcome, Winner: s.winner, Turn: s.turn})
	s.logger.Info("battle ended",
		zap.String("outcome", string(s.outcome)),
		zap.Int("turn", s.turn))
}
