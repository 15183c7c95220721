package battle

import "sort"

// TurnManager determines the order in which queued actions resolve.
type TurnManager interface {
	// Order returns a new slice; the input is not modified. speeds is indexed
	// by Side.
	Order(queued []*QueuedAction, speeds [2]int) []*QueuedAction
}

// DefaultTurnManager orders by action priority tier, then effective speed
// (faster first), then side (player first). Arrival order never matters.
type DefaultTurnManager struct{}

func (DefaultTurnManager) Order(queued []*QueuedAction, speeds [2]int) []*QueuedAction {
	out := make([]*QueuedAction, 0, len(queued))
	for _, q := range queued {
		if q != nil {
			out = append(out, q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		pa, pb := a.Action.Type().Priority(), b.Action.Type().Priority()
		if pa != pb {
			return pa < pb
		}
		if sa, sb := speeds[a.Side], speeds[b.Side]; sa != sb {
			return sa > sb
		}
		return a.Side < b.Side
	})
	return out
}
