package battle

import "math"

// BallKind decides how a ball's bonus is computed.
type BallKind int

const (
	BallFixed BallKind = iota
	BallFirstTurn
	BallTurnScaling
	BallGuaranteed
)

// Ball describes a recognized capture item.
type Ball struct {
	ID    string
	Kind  BallKind
	Bonus float64
}

var balls = map[string]Ball{
	"poke_ball":    {ID: "poke_ball", Kind: BallFixed, Bonus: 1},
	"great_ball":   {ID: "great_ball", Kind: BallFixed, Bonus: 1.5},
	"ultra_ball":   {ID: "ultra_ball", Kind: BallFixed, Bonus: 2},
	"premier_ball": {ID: "premier_ball", Kind: BallFixed, Bonus: 1},
	"quick_ball":   {ID: "quick_ball", Kind: BallFirstTurn, Bonus: 5},
	"timer_ball":   {ID: "timer_ball", Kind: BallTurnScaling, Bonus: 4},
	"master_ball":  {ID: "master_ball", Kind: BallGuaranteed, Bonus: 255},
}

// LookupBall returns the ball registered under id.
func LookupBall(id string) (Ball, bool) {
	b, ok := balls[id]
	return b, ok
}

// Modifier returns B for a throw on the given 1-based turn.
func (b Ball) Modifier(turn int) float64 {
	switch b.Kind {
	case BallFirstTurn:
		if turn <= 1 {
			return b.Bonus
		}
		return 1
	case BallTurnScaling:
		return math.Min(b.Bonus, 1+float64(max(turn, 0))*1229/4096)
	}
	return b.Bonus
}
