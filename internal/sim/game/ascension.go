package game

import (
	"math"
	"time"
)

type AscendResult struct {
	Reject        Reject
	PreviousLevel int
	StartingMoney float64
}

func (r AscendResult) OK() bool { return r.Reject == RejectNone }

// CanAscend is the ascension gate: the one-shot permission must be armed, and either the
// run is over or the player has ascended before.
func (e *Engine) CanAscend(s State) bool {
	return s.CanAscend && (e.IsGameOver(s) || s.AscensionLevel > 0)
}

// StartingMoney is the grant for the next run, computed from pre-ascension values.
func (e *Engine) StartingMoney(s State) float64 {
	share := e.rules.AscensionMoneyBase + float64(s.AscensionLevel)*e.rules.AscensionMoneyStep
	return math.Max(s.LifetimeEarnings*share, e.rules.StartingMoneyFloor)
}

// Ascend resets the run and raises the ascension level. Lifetime earnings carry over.
func (e *Engine) Ascend(s State, now time.Time) (State, AscendResult) {
	if !e.CanAscend(s) {
		return s, AscendResult{Reject: RejectGateClosed}
	}
	start := e.StartingMoney(s)
	next := State{
		Money:            start,
		Reputation:       e.rules.StartingReputation,
		Upgrades:         e.zeroUpgrades(),
		LastTick:         now,
		AscensionLevel:   s.AscensionLevel + 1,
		LifetimeEarnings: s.LifetimeEarnings,
		LastOfferAt:      now,
		IncomeMultiplier: 1,
	}
	return next, AscendResult{PreviousLevel: s.AscensionLevel, StartingMoney: start}
}
