package battle

// Phase is the coarse state of a battle session.
type Phase string

const (
	PhaseNone             Phase = ""
	PhaseInitializing     Phase = "INITIALIZING"
	PhaseIntro            Phase = "INTRO"
	PhasePokemonSelection Phase = "POKEMON_SELECTION"
	PhaseActionSelection  Phase = "ACTION_SELECTION"
	PhaseActionResolution Phase = "ACTION_RESOLUTION"
	PhasePokemonFainted   Phase = "POKEMON_FAINTED"
	PhaseSwitch           Phase = "SWITCH_PHASE"
	PhaseForcedSwitch     Phase = "FORCED_SWITCH"
	PhaseEnded            Phase = "ENDED"
)

// AllPhases lists every phase a session can be in.
var AllPhases = []Phase{
	PhaseInitializing,
	PhaseIntro,
	PhasePokemonSelection,
	PhaseActionSelection,
	PhaseActionResolution,
	PhasePokemonFainted,
	PhaseSwitch,
	PhaseForcedSwitch,
	PhaseEnded,
}

// BattleType selects which phases and actions a session may use.
type BattleType string

const (
	BattleWild    BattleType = "wild"
	BattleTrainer BattleType = "trainer"
	BattlePvP     BattleType = "pvp"
)

// Transition triggers. Triggers are free-form strings; the ones below carry
// meaning to the phase manager or are emitted by the session.
const (
	TriggerInitialize     = "initialize"
	TriggerBattleStart    = "battle_start"
	TriggerIntroComplete  = "intro_complete"
	TriggerLeadSelected   = "lead_selected"
	TriggerTurnReady      = "turn_ready"
	TriggerTurnComplete   = "turn_complete"
	TriggerTurnReset      = "turn_reset"
	TriggerPokemonFainted = "pokemon_fainted"
	TriggerNextForced     = "next_forced_switch"
	TriggerShiftOffer     = "shift_offer"
	TriggerSwitchComplete = "switch_complete"
	TriggerAutoSwitch     = "auto_switch"
	TriggerResync         = "resync"
	TriggerBattleEnd      = "battle_end"

	TriggerTimeout    = "timeout"
	TriggerFatalError = "fatal_error"
	TriggerForceEnd   = "force_end"
)

var transitions = map[Phase][]Phase{
	PhaseInitializing:     {PhaseIntro, PhaseEnded},
	PhaseIntro:            {PhasePokemonSelection, PhaseActionSelection, PhaseEnded},
	PhasePokemonSelection: {PhaseActionSelection, PhaseEnded},
	PhaseActionSelection:  {PhaseActionResolution, PhaseEnded},
	PhaseActionResolution: {PhasePokemonFainted, PhaseSwitch, PhaseForcedSwitch, PhaseActionSelection, PhaseEnded},
	PhasePokemonFainted:   {PhaseForcedSwitch, PhaseActionSelection, PhaseEnded},
	PhaseSwitch:           {PhaseActionSelection, PhaseEnded},
	PhaseForcedSwitch:     {PhaseSwitch, PhaseActionSelection, PhaseEnded},
}

var allowedActions = map[Phase][]ActionType{
	PhaseActionSelection:  AllActionTypes,
	PhasePokemonSelection: {ActionSwitch},
	PhaseSwitch:           {ActionSwitch},
	PhaseForcedSwitch:     {ActionSwitch},
	PhasePokemonFainted:   {ActionSwitch, ActionRun},
}

// Same-phase re-entry is only meaningful for these triggers.
var reentryTriggers = map[string]bool{
	TriggerTurnReset:     true,
	TriggerIntroComplete: true,
	TriggerNextForced:    true,
	TriggerResync:        true,
}

var emergencyTriggers = map[string]bool{
	TriggerTimeout:    true,
	TriggerFatalError: true,
	TriggerForceEnd:   true,
}

// CanTransition reports whether from -> to is in the transition matrix.
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// IsEmergencyTrigger reports whether trigger bypasses the transition matrix.
func IsEmergencyTrigger(trigger string) bool { return emergencyTriggers[trigger] }

// Accepts reports whether actions of type t may be submitted in p.
func (p Phase) Accepts(t ActionType) bool {
	for _, a := range allowedActions[p] {
		if a == t {
			return true
		}
	}
	return false
}

// AcceptsAny reports whether p accepts any action at all.
func (p Phase) AcceptsAny() bool { return len(allowedActions[p]) > 0 }

// TrainerOnly reports whether a wild battle may never enter p.
func (p Phase) TrainerOnly() bool {
	return p == PhasePokemonSelection || p == PhaseSwitch || p == PhaseForcedSwitch
}

// IsSwitchPhase reports whether p carries SwitchPhaseData.
func (p Phase) IsSwitchPhase() bool {
	return p == PhaseForcedSwitch || p == PhaseSwitch
}
