package battle

import (
	"math/rand"

	"github.com/kasuganosora/monsterbattle/game/species"
)

// Effectiveness is the type chart lookup the AI uses.
type Effectiveness func(attackType string, defender []string) float64

type moveChoice struct {
	slot   int
	rating int
}

// ChooseMove picks a move slot for an AI-controlled Pokemon. Moves are rated
// 1..9 by expected damage against foe and then drawn with rating-weighted
// selection. It returns -1 when no move has PP left.
func ChooseMove(self, foe *Pokemon, eff Effectiveness, rng *rand.Rand) int {
	var (
		slots  []int
		scores []float64
		best   float64
	)
	for i, m := range self.Moves {
		if m.PP <= 0 {
			continue
		}
		s := moveScore(self, foe, m, eff)
		slots = append(slots, i)
		scores = append(scores, s)
		best = max(best, s)
	}
	if len(slots) == 0 {
		return -1
	}

	choices := make([]moveChoice, len(slots))
	for i, slot := range slots {
		r := 1
		if best > 0 {
			r = 1 + int(8*scores[i]/best)
		}
		choices[i] = moveChoice{slot: slot, rating: r}
	}
	return weightedSelect(choices, rng).slot
}

func moveScore(self, foe *Pokemon, m MoveSlot, eff Effectiveness) float64 {
	if m.Category == species.CategoryStatus || m.Power == 0 {
		if m.Effect != nil && foe.Status == StatusNone {
			return 40
		}
		return 0
	}
	score := float64(m.Power)
	if eff != nil {
		score *= eff(m.Type, foe.Types)
	}
	if self.HasType(m.Type) {
		score *= 1.5
	}
	if m.Accuracy > 0 {
		score *= float64(m.Accuracy) / 100
	}
	return score
}

// weightedSelect keeps choices rated within 2 of the best and weights each
// by rating - (best - 3).
func weightedSelect(choices []moveChoice, rng *rand.Rand) moveChoice {
	if len(choices) == 1 {
		return choices[0]
	}

	maxRating := 0
	for _, c := range choices {
		maxRating = max(maxRating, c.rating)
	}

	threshold := maxRating - 2
	var filtered []moveChoice
	for _, c := range choices {
		if c.rating >= threshold {
			filtered = append(filtered, c)
		}
	}

	base := maxRating - 3
	total := 0
	for _, c := range filtered {
		total += max(c.rating-base, 1)
	}

	roll := rng.Intn(total)
	for _, c := range filtered {
		roll -= max(c.rating-base, 1)
		if roll < 0 {
			return c
		}
	}
	return filtered[len(filtered)-1]
}

// ChooseReplacement picks the benched Pokemon with the best type matchup
// against foe, preferring higher HP on ties. It returns -1 if none can fight.
func ChooseReplacement(c *Combatant, foe *Pokemon, eff Effectiveness) int {
	bestIdx := -1
	var bestScore float64
	for _, i := range c.SwitchCandidates() {
		p := c.Party[i]
		score := 0.0
		for _, m := range p.Moves {
			if m.PP > 0 && m.Power > 0 && foe != nil && eff != nil {
				score = max(score, eff(m.Type, foe.Types))
			}
		}
		score += float64(p.HP) / float64(max(p.MaxHP, 1)) / 10
		if bestIdx == -1 || score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	return bestIdx
}

// ChooseLead returns the first party member able to fight.
func ChooseLead(c *Combatant) int {
	for i, p := range c.Party {
		if !p.IsFainted() {
			return i
		}
	}
	return 0
}

// defaultAttack is used when a side has to act without a decision: the
// first move with PP, or Struggle.
func defaultAttack(p *Pokemon) Action {
	for i, m := range p.Moves {
		if m.PP > 0 {
			return AttackAction{MoveSlot: i}
		}
	}
	return AttackAction{MoveSlot: StruggleSlot}
}
