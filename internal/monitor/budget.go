package monitor

// callBudget bounds gateway calls within a single tick. Each tick builds its
// own budget, so a slow provider never borrows capacity from later ticks.
type callBudget struct {
	remaining int
}

func newCallBudget(max int) *callBudget {
	return &callBudget{remaining: max}
}

func (b *callBudget) take() bool {
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	return true
}
