package battle

import (
	"fmt"
	"time"
)

// ActionType is the discriminator of Action.
type ActionType string

const (
	ActionAttack  ActionType = "attack"
	ActionItem    ActionType = "item"
	ActionSwitch  ActionType = "switch"
	ActionRun     ActionType = "run"
	ActionCapture ActionType = "capture"
)

// AllActionTypes in priority order.
var AllActionTypes = []ActionType{ActionRun, ActionItem, ActionSwitch, ActionCapture, ActionAttack}

// Priority returns the resolution tier of t; lower resolves first.
func (t ActionType) Priority() int {
	switch t {
	case ActionRun:
		return 0
	case ActionItem:
		return 1
	case ActionSwitch:
		return 2
	case ActionCapture:
		return 3
	default:
		return 4
	}
}

// Side identifies one of the two combatants.
type Side int

const (
	SidePlayer   Side = 0
	SideOpponent Side = 1
)

// Other returns the opposing side.
func (s Side) Other() Side { return 1 - s }

func (s Side) String() string {
	if s == SidePlayer {
		return "player"
	}
	return "opponent"
}

// Action is a closed union of the five things a combatant can do in a turn.
// Only the types in this file implement it.
type Action interface {
	Type() ActionType
	isAction()
}

// AttackAction uses the move in MoveSlot (0-3).
type AttackAction struct {
	MoveSlot int `json:"move_slot"`
}

// ItemAction uses a medicine item on the party member at TargetIndex.
type ItemAction struct {
	ItemID      string `json:"item_id"`
	TargetIndex int    `json:"target_index"`
}

// SwitchAction brings the party member at RosterIndex into play.
type SwitchAction struct {
	RosterIndex int `json:"roster_index"`
}

// RunAction attempts to flee a wild battle.
type RunAction struct{}

// CaptureAction throws BallID at the opposing wild Pokemon.
type CaptureAction struct {
	BallID string `json:"ball_id"`
}

func (AttackAction) Type() ActionType  { return ActionAttack }
func (ItemAction) Type() ActionType    { return ActionItem }
func (SwitchAction) Type() ActionType  { return ActionSwitch }
func (RunAction) Type() ActionType     { return ActionRun }
func (CaptureAction) Type() ActionType { return ActionCapture }

func (AttackAction) isAction()  {}
func (ItemAction) isAction()    {}
func (SwitchAction) isAction()  {}
func (RunAction) isAction()     {}
func (CaptureAction) isAction() {}

// normalizeAction dereferences pointer forms of the action types, which
// also satisfy Action. A nil pointer yields nil.
func normalizeAction(a Action) Action {
	switch v := a.(type) {
	case *AttackAction:
		if v != nil {
			return *v
		}
	case *ItemAction:
		if v != nil {
			return *v
		}
	case *SwitchAction:
		if v != nil {
			return *v
		}
	case *RunAction:
		if v != nil {
			return *v
		}
	case *CaptureAction:
		if v != nil {
			return *v
		}
	default:
		return a
	}
	return nil
}

// QueuedAction is one side's decision for the current turn.
type QueuedAction struct {
	Side        Side
	Action      Action
	SubmittedAt time.Time
	// Auto is set when the server chose the action (AI or timeout).
	Auto bool
}

// NewAction builds an Action from its wire discriminator and fields.
func NewAction(t ActionType, moveSlot int, itemID string, targetIndex, rosterIndex int, ballID string) (Action, error) {
	switch t {
	case ActionAttack:
		return AttackAction{MoveSlot: moveSlot}, nil
	case ActionItem:
		return ItemAction{ItemID: itemID, TargetIndex: targetIndex}, nil
	case ActionSwitch:
		return SwitchAction{RosterIndex: rosterIndex}, nil
	case ActionRun:
		return RunAction{}, nil
	case ActionCapture:
		return CaptureAction{BallID: ballID}, nil
	}
	return nil, fmt.Errorf("%w: unknown action type %q", ErrInvalidAction, t)
}
