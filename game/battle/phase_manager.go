package battle

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kasuganosora/monsterbattle/scheduler"
	"go.uber.org/zap"
)

const switchTimerName = "switch_timeout"

// SwitchPhaseData accompanies FORCED_SWITCH and SWITCH_PHASE.
type SwitchPhaseData struct {
	Side         Side          `json:"side"`
	ValidIndices []int         `json:"valid_indices"`
	Forced       bool          `json:"forced"`
	TimeLimit    time.Duration `json:"time_limit"`
	Deadline     time.Time     `json:"deadline,omitempty"`
}

func (d *SwitchPhaseData) clone() *SwitchPhaseData {
	if d == nil {
		return nil
	}
	c := *d
	c.ValidIndices = append([]int(nil), d.ValidIndices...)
	return &c
}

// PhaseTransition is one entry of the append-only phase history.
type PhaseTransition struct {
	From       Phase      `json:"from"`
	To         Phase      `json:"to"`
	Trigger    string     `json:"trigger"`
	At         time.Time  `json:"at"`
	BattleType BattleType `json:"battle_type"`
}

// SwitchTimeout is handed to the auto-switch handler when a switch phase
// countdown expires. Generation identifies the phase entry that armed it.
type SwitchTimeout struct {
	Data       SwitchPhaseData
	Generation uint64
}

// PhaseManager is the battle state machine. All mutations go through
// SetPhase or ForceTransition; a transition already in flight causes the
// next one to be rejected rather than queued.
type PhaseManager struct {
	mu         sync.RWMutex
	battleType BattleType
	phase      Phase
	switchData *SwitchPhaseData
	history    []PhaseTransition
	generation uint64

	transitioning atomic.Bool

	timers       *scheduler.Scheduler
	onTransition func(PhaseTransition, *SwitchPhaseData)
	onTimeout    func(SwitchTimeout)
	now          func() time.Time
	logger       *zap.Logger
}

// NewPhaseManager creates a manager in the "none" phase. timers owns the
// switch countdown; it may be shared with the session that owns the manager.
func NewPhaseManager(timers *scheduler.Scheduler, logger *zap.Logger) *PhaseManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timers == nil {
		timers = scheduler.New(logger)
	}
	return &PhaseManager{timers: timers, now: time.Now, logger: logger}
}

// OnTransition registers an observer called after every applied transition,
// while the transition lock is still held.
func (m *PhaseManager) OnTransition(fn func(PhaseTransition, *SwitchPhaseData)) {
	m.onTransition = fn
}

// OnSwitchTimeout registers the auto-switch handler. Without one, an expired
// countdown transitions straight back to ACTION_SELECTION.
func (m *PhaseManager) OnSwitchTimeout(fn func(SwitchTimeout)) {
	m.onTimeout = fn
}

// Initialize enters INITIALIZING. It only succeeds once.
func (m *PhaseManager) Initialize(bt BattleType) bool {
	m.mu.Lock()
	if m.phase != PhaseNone {
		m.mu.Unlock()
		return false
	}
	m.battleType = bt
	m.phase = PhaseInitializing
	rec := PhaseTransition{From: PhaseNone, To: PhaseInitializing, Trigger: TriggerInitialize, At: m.now(), BattleType: bt}
	m.history = append(m.history, rec)
	m.mu.Unlock()

	m.notify(rec, nil)
	return true
}

// SetPhase attempts the transition to `to`. It returns false, leaving all
// state untouched, when the transition is not allowed right now.
func (m *PhaseManager) SetPhase(to Phase, trigger string, data *SwitchPhaseData) bool {
	if !m.transitioning.CompareAndSwap(false, true) {
		m.logger.Debug("phase transition rejected: another in flight",
			zap.String("to", string(to)), zap.String("trigger", trigger))
		return false
	}
	defer m.transitioning.Store(false)

	m.mu.Lock()
	if reason := m.rejectLocked(to, trigger); reason != "" {
		from := m.phase
		m.mu.Unlock()
		m.logger.Warn("phase transition rejected",
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.String("trigger", trigger),
			zap.String("reason", reason))
		return false
	}
	rec, sd := m.applyLocked(to, trigger, data)
	m.mu.Unlock()

	m.notify(rec, sd)
	return true
}

func (m *PhaseManager) rejectLocked(to Phase, trigger string) string {
	from := m.phase
	switch {
	case from == PhaseNone:
		return "not initialized"
	case m.battleType == BattleWild && to.TrainerOnly():
		return "phase not available in wild battles"
	case from == PhaseEnded:
		return "battle has ended"
	case from == to:
		if !reentryTriggers[trigger] {
			return "same-phase transition with unexpected trigger"
		}
	case IsEmergencyTrigger(trigger):
	case !CanTransition(from, to):
		return "not in transition matrix"
	}
	return ""
}

// ForceTransition moves to `to` without any validation. It is meant for
// error recovery only and always logs at error level.
func (m *PhaseManager) ForceTransition(to Phase, reason string) {
	// Restore rather than clear: a forced transition may run inside an
	// observer of a SetPhase that still holds the lock.
	prev := m.transitioning.Swap(true)
	defer m.transitioning.Store(prev)

	m.mu.Lock()
	from := m.phase
	rec, sd := m.applyLocked(to, reason, nil)
	m.mu.Unlock()

	m.logger.Error("forced phase transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason))
	m.notify(rec, sd)
}

func (m *PhaseManager) applyLocked(to Phase, trigger string, data *SwitchPhaseData) (PhaseTransition, *SwitchPhaseData) {
	rec := PhaseTransition{From: m.phase, To: to, Trigger: trigger, At: m.now(), BattleType: m.battleType}
	m.phase = to
	m.generation++
	m.history = append(m.history, rec)

	m.timers.Remove(switchTimerName)
	m.switchData = nil
	if to.IsSwitchPhase() && data != nil {
		sd := data.clone()
		if sd.TimeLimit > 0 {
			sd.Deadline = rec.At.Add(sd.TimeLimit)
			gen := m.generation
			m.timers.AddDelay(switchTimerName, sd.TimeLimit, func() { m.expireSwitch(gen) })
		}
		m.switchData = sd
	}
	return rec, m.switchData.clone()
}

func (m *PhaseManager) notify(rec PhaseTransition, sd *SwitchPhaseData) {
	m.logger.Debug("phase transition",
		zap.String("from", string(rec.From)),
		zap.String("to", string(rec.To)),
		zap.String("trigger", rec.Trigger))
	if m.onTransition != nil {
		m.onTransition(rec, sd)
	}
}

func (m *PhaseManager) expireSwitch(gen uint64) {
	m.mu.RLock()
	stale := m.generation != gen || !m.phase.IsSwitchPhase() || m.switchData == nil
	var data SwitchPhaseData
	if !stale {
		data = *m.switchData.clone()
	}
	m.mu.RUnlock()
	if stale {
		return
	}

	m.logger.Info("switch countdown expired",
		zap.Int("side", int(data.Side)), zap.Bool("forced", data.Forced))
	if m.onTimeout != nil {
		m.onTimeout(SwitchTimeout{Data: data, Generation: gen})
		return
	}
	m.SetPhase(PhaseActionSelection, TriggerAutoSwitch, nil)
}

// CanSubmitAction reports whether an action of type t is accepted now.
func (m *PhaseManager) CanSubmitAction(t ActionType) bool {
	if m.transitioning.Load() {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase.Accepts(t)
}

// CanAct reports whether any action is accepted now.
func (m *PhaseManager) CanAct() bool {
	if m.transitioning.Load() {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase.AcceptsAny()
}

func (m *PhaseManager) Current() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

func (m *PhaseManager) BattleType() BattleType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.battleType
}

// Generation increases on every applied transition.
func (m *PhaseManager) Generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation
}

// History returns a copy of all transitions so far.
func (m *PhaseManager) History() []PhaseTransition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]PhaseTransition(nil), m.history...)
}

// SwitchData returns a copy of the current switch data, nil outside the
// switch phases.
func (m *PhaseManager) SwitchData() *SwitchPhaseData {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.switchData.clone()
}

// Dispose cancels the switch countdown.
func (m *PhaseManager) Dispose() {
	m.timers.Remove(switchTimerName)
}
