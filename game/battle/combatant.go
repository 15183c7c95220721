package battle

// Controller says who decides a combatant's actions.
type Controller string

const (
	ControllerHuman   Controller = "human"
	ControllerAI      Controller = "ai"
	ControllerPassive Controller = "passive"
)

// Combatant is one side of a battle.
type Combatant struct {
	Side         Side
	OwnerID      int64
	Name         string
	Controller   Controller
	TrainerClass string
	Party        []*Pokemon
	Active       int
	// EscapeAttempts counts failed run attempts.
	EscapeAttempts int
}

// ActivePokemon returns the Pokemon currently on the field.
func (c *Combatant) ActivePokemon() *Pokemon {
	if c.Active < 0 || c.Active >= len(c.Party) {
		return nil
	}
	return c.Party[c.Active]
}

// SwitchCandidates returns the indices of non-fainted benched Pokemon.
func (c *Combatant) SwitchCandidates() []int {
	var out []int
	for i, p := range c.Party {
		if i != c.Active && !p.IsFainted() {
			out = append(out, i)
		}
	}
	return out
}

// HasUsable reports whether any party member can still fight.
func (c *Combatant) HasUsable() bool {
	for _, p := range c.Party {
		if !p.IsFainted() {
			return true
		}
	}
	return false
}

// AnyFainted reports whether any party member has fainted.
func (c *Combatant) AnyFainted() bool {
	for _, p := range c.Party {
		if p.IsFainted() {
			return true
		}
	}
	return false
}

// HighestLevel is the level of the strongest party member.
func (c *Combatant) HighestLevel() int {
	best := 0
	for _, p := range c.Party {
		best = max(best, p.Level)
	}
	return best
}

func (c *Combatant) snapshot() SideSnapshot {
	s := SideSnapshot{
		Side:       c.Side,
		OwnerID:    c.OwnerID,
		Name:       c.Name,
		Controller: c.Controller,
		Active:     c.Active,
	}
	for _, p := range c.Party {
		s.Party = append(s.Party, p.Snapshot())
	}
	return s
}

func (c *Combatant) switchTo(idx int) {
	c.Active = idx
	c.Party[idx].Participated = true
}
