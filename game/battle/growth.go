package battle

// Growth curve names as used in the species catalog.
const (
	GrowthFast        = "fast"
	GrowthMediumFast  = "medium_fast"
	GrowthMediumSlow  = "medium_slow"
	GrowthSlow        = "slow"
	GrowthErratic     = "erratic"
	GrowthFluctuating = "fluctuating"
)

// ExpForLevel returns the total experience needed to reach level n on the
// given curve. Unknown curves use medium_fast.
func ExpForLevel(curve string, n int) int64 {
	if n <= 1 {
		return 0
	}
	l := int64(n)
	cube := l * l * l
	var v int64
	switch curve {
	case GrowthFast:
		v = 4 * cube / 5
	case GrowthMediumSlow:
		v = 6*cube/5 - 15*l*l + 100*l - 140
	case GrowthSlow:
		v = 5 * cube / 4
	case GrowthErratic:
		switch {
		case n < 50:
			v = cube * (100 - l) / 50
		case n < 68:
			v = cube * (150 - l) / 100
		case n < 98:
			v = cube * ((1911 - 10*l) / 3) / 500
		default:
			v = cube * (160 - l) / 100
		}
	case GrowthFluctuating:
		switch {
		case n < 15:
			v = cube * ((l+1)/3 + 24) / 50
		case n < 36:
			v = cube * (l + 14) / 50
		default:
			v = cube * (l/2 + 32) / 50
		}
	default:
		v = cube
	}
	return max(v, 0)
}

// LevelForExp returns the highest level at or below maxLevel whose
// threshold exp has reached.
func LevelForExp(curve string, exp int64, maxLevel int) int {
	level := 1
	for level < maxLevel && exp >= ExpForLevel(curve, level+1) {
		level++
	}
	return level
}
