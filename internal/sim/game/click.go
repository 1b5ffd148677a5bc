package game

type ClickResult struct {
	Value  float64
	Reject Reject
}

func (r ClickResult) OK() bool { return r.Reject == RejectNone }

func (e *Engine) ClickValue(level int) float64 {
	return e.rules.ClickBase * (1 + float64(level)*e.rules.ClickAscensionBonus)
}

// Click is the manual increment. Money is frozen while the game is over.
func (e *Engine) Click(s State) (State, ClickResult) {
	if e.IsGameOver(s) {
		return s, ClickResult{Reject: RejectGameOver}
	}
	v := e.ClickValue(s.AscensionLevel)
	next := s.Clone()
	next.Money += v
	next.LifetimeEarnings += v
	return next, ClickResult{Value: v}
}
