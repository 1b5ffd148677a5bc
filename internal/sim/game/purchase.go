package game

import (
	"math"

	"capclicker.app/internal/sim/catalogs"
)

// Reject names the precondition a player action failed. The empty value means success.
type Reject string

const (
	RejectNone       Reject = ""
	RejectUnknown    Reject = "UNKNOWN"
	RejectLocked     Reject = "LOCKED"
	RejectGameOver   Reject = "GAME_OVER"
	RejectFunds      Reject = "INSUFFICIENT_FUNDS"
	RejectNotPending Reject = "NOT_PENDING"
	RejectGateClosed Reject = "GATE_CLOSED"
)

type BuyResult struct {
	Reject   Reject
	Cost     float64
	NewCount int
}

func (r BuyResult) OK() bool { return r.Reject == RejectNone }

// Cost is the price of the next unit given the current owned count.
func (e *Engine) Cost(def catalogs.UpgradeDef, count int) float64 {
	return math.Floor(def.BaseCost * math.Pow(e.rules.CostGrowth, float64(count)))
}

// Buy purchases one unit of an upgrade. Any failed precondition returns s untouched.
func (e *Engine) Buy(s State, upgradeID string) (State, BuyResult) {
	def, ok := e.cats.Upgrade(upgradeID)
	if !ok {
		return s, BuyResult{Reject: RejectUnknown}
	}
	if e.Locked(s, def) {
		return s, BuyResult{Reject: RejectLocked}
	}
	if e.IsGameOver(s) {
		return s, BuyResult{Reject: RejectGameOver}
	}
	count := s.Upgrades[upgradeID]
	cost := e.Cost(def, count)
	if cost > s.Money {
		return s, BuyResult{Reject: RejectFunds, Cost: cost}
	}

	next := s.Clone()
	next.Money -= cost
	next.Upgrades[upgradeID] = count + 1
	return next, BuyResult{Cost: cost, NewCount: count + 1}
}
