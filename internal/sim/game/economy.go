package game

import "time"

// Rates are the per-second flows produced by the owned upgrades.
type Rates struct {
	Income     float64
	Reputation float64
	Climate    float64
}

type TickResult struct {
	Delta   float64 // seconds applied
	Rates   Rates
	Earned  float64 // added to lifetime earnings
	Applied bool    // false while the game is over (money frozen)

	GameOver        bool
	EnteredGameOver bool
}

// Rates sums the contribution of every owned, unlocked upgrade in catalog order.
// Ascension scales income only.
func (e *Engine) Rates(s State) Rates {
	var r Rates
	scale := 1 + float64(s.AscensionLevel)*e.rules.AscensionIncomeBonus
	if e.rules.PersistentOfferMultiplier && s.IncomeMultiplier > 0 {
		scale *= s.IncomeMultiplier
	}
	for _, d := range e.cats.Upgrades.Defs {
		n := s.Upgrades[d.ID]
		if n <= 0 {
			continue
		}
		if e.Locked(s, d) {
			continue
		}
		r.Income += d.BaseIncome * float64(n) * scale
		r.Reputation += d.Reputation * float64(n)
		r.Climate += d.Climate * float64(n)
	}
	return r
}

// Tick advances the economy to now. A now earlier than LastTick applies no time.
// Entering game over raises CanAscend once; while over, Money and MoneyPerSecond keep
// their values and only the meters and lifetime earnings move.
func (e *Engine) Tick(s State, now time.Time) (State, TickResult) {
	next := s.Clone()

	delta := now.Sub(s.LastTick).Seconds()
	if delta < 0 {
		delta = 0
	} else {
		next.LastTick = now
	}

	rates := e.Rates(s)
	earned := rates.Income * delta
	wasOver := e.IsGameOver(s)

	next.LifetimeEarnings += earned
	next.Reputation = e.clampMeter(s.Reputation + rates.Reputation*delta)
	next.Climate = e.clampMeter(s.Climate + rates.Climate*delta)

	res := TickResult{Delta: delta, Rates: rates, Earned: earned}
	res.GameOver = e.IsGameOver(next)
	if !res.GameOver {
		next.Money = s.Money + earned
		next.MoneyPerSecond = rates.Income
		res.Applied = true
	}
	if res.GameOver && !wasOver {
		next.CanAscend = true
		res.EnteredGameOver = true
	}
	return next, res
}
