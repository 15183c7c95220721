package battle

import (
	"math"
	"sort"

	"github.com/kasuganosora/monsterbattle/config"
	"github.com/kasuganosora/monsterbattle/model"
)

// Stat keys used by the nature table.
const (
	StatAtk = "atk"
	StatDef = "def"
	StatSpA = "spa"
	StatSpD = "spd"
	StatSpe = "spe"
)

type natureEffect struct{ up, down string }

// natures maps each of the 25 natures to its raised and lowered stat.
// Neutral natures have neither.
var natures = map[string]natureEffect{
	"hardy":   {},
	"lonely":  {StatAtk, StatDef},
	"brave":   {StatAtk, StatSpe},
	"adamant": {StatAtk, StatSpA},
	"naughty": {StatAtk, StatSpD},
	"bold":    {StatDef, StatAtk},
	"docile":  {},
	"relaxed": {StatDef, StatSpe},
	"impish":  {StatDef, StatSpA},
	"lax":     {StatDef, StatSpD},
	"timid":   {StatSpe, StatAtk},
	"hasty":   {StatSpe, StatDef},
	"serious": {},
	"jolly":   {StatSpe, StatSpA},
	"naive":   {StatSpe, StatSpD},
	"modest":  {StatSpA, StatAtk},
	"mild":    {StatSpA, StatDef},
	"quiet":   {StatSpA, StatSpe},
	"bashful": {},
	"rash":    {StatSpA, StatSpD},
	"calm":    {StatSpD, StatAtk},
	"gentle":  {StatSpD, StatDef},
	"sassy":   {StatSpD, StatSpe},
	"careful": {StatSpD, StatSpA},
	"quirky":  {},
}

// NatureNames returns the nature names in a stable order.
func NatureNames() []string {
	names := make([]string, 0, len(natures))
	for n := range natures {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NatureModifier returns 1.1, 0.9 or 1.0 for stat under nature.
func NatureModifier(nature, stat string) float64 {
	e, ok := natures[nature]
	switch {
	case !ok || e.up == "":
		return 1.0
	case stat == e.up:
		return 1.1
	case stat == e.down:
		return 0.9
	}
	return 1.0
}

// CalcHP is the level-scaled hit point formula.
func CalcHP(base, iv, ev, level int) int {
	return (2*base+iv+ev/4)*level/100 + level + 10
}

// CalcStat is the level-scaled formula for the five non-HP stats.
func CalcStat(base, iv, ev, level int, natureMod float64) int {
	raw := (2*base+iv+ev/4)*level/100 + 5
	return int(math.Floor(float64(raw) * natureMod))
}

// ComputeStats derives the full stat block of a Pokemon.
func ComputeStats(base, ivs, evs model.StatBlock, level int, nature string) model.StatBlock {
	return model.StatBlock{
		HP:  CalcHP(base.HP, ivs.HP, evs.HP, level),
		Atk: CalcStat(base.Atk, ivs.Atk, evs.Atk, level, NatureModifier(nature, StatAtk)),
		Def: CalcStat(base.Def, ivs.Def, evs.Def, level, NatureModifier(nature, StatDef)),
		SpA: CalcStat(base.SpA, ivs.SpA, evs.SpA, level, NatureModifier(nature, StatSpA)),
		SpD: CalcStat(base.SpD, ivs.SpD, evs.SpD, level, NatureModifier(nature, StatSpD)),
		Spe: CalcStat(base.Spe, ivs.Spe, evs.Spe, level, NatureModifier(nature, StatSpe)),
	}
}

// Round4096 rounds v to the nearest multiple of 1/4096.
func Round4096(v float64) float64 {
	return math.Round(v*4096) / 4096
}

// CaptureInput holds the operands of the capture value formula.
type CaptureInput struct {
	MaxHP     int
	HP        int
	Terrain   float64 // G
	CatchRate int     // C
	Ball      float64 // B
	Status    float64 // S
	Power     int     // E, clamped to [100,130]
}

// CaptureValue computes X, rounding to 1/4096 after each step.
func CaptureValue(in CaptureInput) int {
	if in.MaxHP <= 0 {
		return 0
	}
	m := float64(in.MaxHP)
	h := float64(in.HP)
	e := clampInt(in.Power, 100, 130)

	v := Round4096((3*m - 2*h) * in.Terrain * float64(in.CatchRate) * in.Ball)
	v = Round4096(v / (3 * m))
	return int(math.Floor(v * in.Status * float64(e) / 100))
}

// CriticalCaptureChance returns CC out of 256 for capture value x.
func CriticalCaptureChance(x int, p float64) int {
	return int(math.Floor(float64(min(255, x)) * p / 6))
}

// ShakeThreshold returns Y; each shake draw in [0,65536) must fall below it.
func ShakeThreshold(x int) int {
	if x <= 0 {
		return 0
	}
	return int(math.Floor(65536 / math.Sqrt(math.Sqrt(255/float64(x)))))
}

// TierMultiplier picks the multiplier of the highest tier whose MinCaught
// does not exceed caught. An empty table yields 0.
func TierMultiplier(tiers []config.Tier, caught int) float64 {
	best := -1
	mult := 0.0
	for _, t := range tiers {
		if t.MinCaught <= caught && t.MinCaught > best {
			best = t.MinCaught
			mult = t.Multiplier
		}
	}
	return mult
}

// StatusCaptureMultiplier is S in the capture formula.
func StatusCaptureMultiplier(s Status) float64 {
	switch s {
	case StatusSleep, StatusFreeze:
		return 2.5
	case StatusParalysis, StatusBurn, StatusPoison:
		return 1.5
	}
	return 1.0
}

// DamageInput holds the operands of one damage roll.
type DamageInput struct {
	Level         int
	Power         int
	Attack        int
	Defense       int
	STAB          bool
	Effectiveness float64
	Critical      bool
	Random        int // 85..100
	Burned        bool
}

// Damage computes the HP removed by one hit. Anything that is not immune
// takes at least 1.
func Damage(in DamageInput) int {
	if in.Effectiveness == 0 || in.Power <= 0 {
		return 0
	}
	def := max(in.Defense, 1)
	base := (2*in.Level/5+2)*in.Power*in.Attack/def/50 + 2

	mod := float64(in.Random) / 100 * in.Effectiveness
	if in.Critical {
		mod *= 1.5
	}
	if in.STAB {
		mod *= 1.5
	}
	if in.Burned {
		mod *= 0.5
	}
	return max(int(math.Floor(float64(base)*mod)), 1)
}

// ExpGain is the experience one participant earns for one defeated unit.
// a is 1.5 in trainer battles; participants is the number of surviving
// Pokemon that shared the fight.
func ExpGain(a float64, baseExp, defeatedLevel, participantLevel, participants int) int {
	s := float64(max(participants, 1))
	l := float64(defeatedLevel)
	lp := float64(participantLevel)
	v := a * float64(baseExp) * l / (5 * s) * math.Pow((2*l+10)/(l+lp+10), 2.5)
	return int(math.Floor(v)) + 1
}

// EscapeOdds returns F; escape succeeds if F > 255 or a draw in [0,256) is
// below F. attempts counts earlier failed attempts this battle.
func EscapeOdds(speed, foeSpeed, attempts int) int {
	if foeSpeed <= 0 {
		return 256
	}
	return speed*128/foeSpeed + 30*attempts
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
