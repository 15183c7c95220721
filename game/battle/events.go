package battle

import "encoding/json"

// Event is emitted by a Session for clients and the journal.
type Event interface {
	EventType() string
}

// Timed events carry a display hint in milliseconds. The engine never waits
// on it unless a synchronized capture is requested.
type Timed interface {
	DisplayHint() int
}

// Display is embedded by events that carry a display hint.
type Display struct {
	DisplayMs int `json:"display_ms"`
}

func (d Display) DisplayHint() int { return d.DisplayMs }

// PokemonSnapshot is the client-visible state of one battle Pokemon.
type PokemonSnapshot struct {
	CombatID  string `json:"combat_id"`
	SpeciesID int    `json:"species_id"`
	Name      string `json:"name"`
	Level     int    `json:"level"`
	HP        int    `json:"hp"`
	MaxHP     int    `json:"max_hp"`
	Status    Status `json:"status,omitempty"`
}

// SideSnapshot describes one combatant at battle start.
type SideSnapshot struct {
	Side       Side              `json:"side"`
	OwnerID    int64             `json:"owner_id,omitempty"`
	Name       string            `json:"name"`
	Controller Controller        `json:"controller"`
	Active     int               `json:"active"`
	Party      []PokemonSnapshot `json:"party"`
}

type EventBattleStart struct {
	SessionID  string          `json:"session_id"`
	BattleType BattleType      `json:"battle_type"`
	Sides      [2]SideSnapshot `json:"sides"`
}

func (EventBattleStart) EventType() string { return "battle_start" }

type EventPhaseChange struct {
	From       Phase            `json:"from"`
	To         Phase            `json:"to"`
	Trigger    string           `json:"trigger"`
	Turn       int              `json:"turn"`
	SwitchData *SwitchPhaseData `json:"switch_data,omitempty"`
}

func (EventPhaseChange) EventType() string { return "phase_change" }

type EventActionQueued struct {
	Side   Side       `json:"side"`
	Action ActionType `json:"action"`
	Auto   bool       `json:"auto,omitempty"`
}

func (EventActionQueued) EventType() string { return "action_queued" }

type EventActionDropped struct {
	Side   Side       `json:"side"`
	Action ActionType `json:"action"`
	Reason string     `json:"reason"`
}

func (EventActionDropped) EventType() string { return "action_dropped" }

type EventResolutionStart struct {
	Turn  int    `json:"turn"`
	Order []Side `json:"order"`
}

func (EventResolutionStart) EventType() string { return "resolution_start" }

type EventMoveUsed struct {
	Display
	Side     Side   `json:"side"`
	CombatID string `json:"combat_id"`
	MoveID   int    `json:"move_id"`
	MoveName string `json:"move_name"`
	Missed   bool   `json:"missed,omitempty"`
}

func (EventMoveUsed) EventType() string { return "move_used" }

// EventDamage reports HP lost by the Pokemon on Side.
type EventDamage struct {
	Display
	Side          Side    `json:"side"`
	CombatID      string  `json:"combat_id"`
	Amount        int     `json:"amount"`
	HP            int     `json:"hp"`
	MaxHP         int     `json:"max_hp"`
	Critical      bool    `json:"critical,omitempty"`
	Effectiveness float64 `json:"effectiveness,omitempty"`
	Source        string  `json:"source"` // move, burn, poison, recoil
}

func (EventDamage) EventType() string { return "damage" }

type EventStatusApplied struct {
	Side     Side   `json:"side"`
	CombatID string `json:"combat_id"`
	Status   Status `json:"status"`
}

func (EventStatusApplied) EventType() string { return "status_applied" }

type EventStatusCured struct {
	Side     Side   `json:"side"`
	CombatID string `json:"combat_id"`
	Status   Status `json:"status"`
}

func (EventStatusCured) EventType() string { return "status_cured" }

// EventCantMove is emitted when a status condition stops an attack.
type EventCantMove struct {
	Display
	Side     Side   `json:"side"`
	CombatID string `json:"combat_id"`
	Reason   Status `json:"reason"`
}

func (EventCantMove) EventType() string { return "cant_move" }

type EventFainted struct {
	Display
	Side     Side   `json:"side"`
	CombatID string `json:"combat_id"`
	Name     string `json:"name"`
}

func (EventFainted) EventType() string { return "fainted" }

type EventSwitched struct {
	Display
	Side     Side            `json:"side"`
	From     int             `json:"from"`
	To       int             `json:"to"`
	Incoming PokemonSnapshot `json:"incoming"`
	Auto     bool            `json:"auto,omitempty"`
}

func (EventSwitched) EventType() string { return "switched" }

type EventItemUsed struct {
	Side        Side   `json:"side"`
	ItemID      string `json:"item_id"`
	TargetIndex int    `json:"target_index"`
	Healed      int    `json:"healed,omitempty"`
	Cured       Status `json:"cured,omitempty"`
}

func (EventItemUsed) EventType() string { return "item_used" }

type EventEscape struct {
	Display
	Side    Side `json:"side"`
	Success bool `json:"success"`
}

func (EventEscape) EventType() string { return "escape" }

type EventCaptureThrow struct {
	Display
	BallID   string `json:"ball_id"`
	TargetID string `json:"target_id"`
}

func (EventCaptureThrow) EventType() string { return "capture_throw" }

type EventCaptureShake struct {
	Display
	Index int `json:"index"`
}

func (EventCaptureShake) EventType() string { return "capture_shake" }

type EventCaptureResult struct {
	Display
	Success  bool   `json:"success"`
	Critical bool   `json:"critical"`
	Shakes   int    `json:"shakes"`
	EntryID  int64  `json:"entry_id,omitempty"`
	Pending  bool   `json:"pending,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (EventCaptureResult) EventType() string { return "capture_result" }

type EventLevelUp struct {
	Display
	CombatID string          `json:"combat_id"`
	Level    int             `json:"level"`
	Delta    StatDelta       `json:"delta"`
	Stats    PokemonSnapshot `json:"stats"`
}

func (EventLevelUp) EventType() string { return "level_up" }

type EventMoveLearned struct {
	CombatID string `json:"combat_id"`
	MoveID   int    `json:"move_id"`
	// Replaced is the forgotten move, zero if none.
	Replaced int  `json:"replaced,omitempty"`
	Pending  bool `json:"pending,omitempty"`
}

func (EventMoveLearned) EventType() string { return "move_learned" }

type EventRewards struct {
	Report Report `json:"report"`
}

func (EventRewards) EventType() string { return "rewards" }

type EventBattleEnd struct {
	Outcome Outcome `json:"outcome"`
	Winner  *Side   `json:"winner,omitempty"`
	Turn    int     `json:"turn"`
}

func (EventBattleEnd) EventType() string { return "battle_end" }

// MarshalEvent encodes e in the stream envelope {"type":...,"data":...}.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Data Event  `json:"data"`
	}{Type: e.EventType(), Data: e})
}

// TotalDisplay sums the display hints of events.
func TotalDisplay(events []Event) int {
	total := 0
	for _, e := range events {
		if t, ok := e.(Timed); ok {
			total += t.DisplayHint()
		}
	}
	return total
}
