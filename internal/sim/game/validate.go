package game

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidState = errors.New("invalid game state")

// Adopt checks a restored state against the catalog and the model invariants.
// Upgrades added to the catalog since the state was saved are filled in at zero;
// anything else out of shape is rejected rather than repaired.
func (e *Engine) Adopt(s State) (State, error) {
	bad := func(format string, args ...any) (State, error) {
		return State{}, fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
	}

	for _, v := range []struct {
		name string
		val  float64
	}{
		{"money", s.Money},
		{"money_per_second", s.MoneyPerSecond},
		{"reputation", s.Reputation},
		{"climate", s.Climate},
		{"lifetime_earnings", s.LifetimeEarnings},
	} {
		if math.IsNaN(v.val) || math.IsInf(v.val, 0) {
			return bad("%s is not finite", v.name)
		}
	}
	if s.Money < 0 {
		return bad("money %v < 0", s.Money)
	}
	if s.LifetimeEarnings < 0 {
		return bad("lifetime_earnings %v < 0", s.LifetimeEarnings)
	}
	if s.Reputation < 0 || s.Reputation > e.rules.MeterMax {
		return bad("reputation %v out of range", s.Reputation)
	}
	if s.Climate < 0 || s.Climate > e.rules.MeterMax {
		return bad("climate %v out of range", s.Climate)
	}
	if s.AscensionLevel < 0 {
		return bad("ascension_level %d < 0", s.AscensionLevel)
	}

	out := s.Clone()
	for id, n := range s.Upgrades {
		if _, ok := e.cats.Upgrade(id); !ok {
			return bad("unknown upgrade %q", id)
		}
		if n < 0 {
			return bad("upgrade %q count %d < 0", id, n)
		}
	}
	for _, d := range e.cats.Upgrades.Defs {
		if _, ok := out.Upgrades[d.ID]; !ok {
			out.Upgrades[d.ID] = 0
		}
	}

	if n := len(s.PendingOffers); n != 0 && n != e.rules.OfferCount {
		return bad("pending offers: got %d want 0 or %d", n, e.rules.OfferCount)
	}
	if s.AwaitingOfferChoice != (len(s.PendingOffers) > 0) {
		return bad("awaiting_offer_choice=%v with %d pending offers", s.AwaitingOfferChoice, len(s.PendingOffers))
	}
	seen := map[string]struct{}{}
	for i, o := range s.PendingOffers {
		def, ok := e.cats.Offer(o.ID)
		if !ok {
			return bad("unknown offer %q", o.ID)
		}
		if _, dup := seen[o.ID]; dup {
			return bad("duplicate pending offer %q", o.ID)
		}
		seen[o.ID] = struct{}{}
		// Pending offers are re-resolved so catalog edits take effect.
		out.PendingOffers[i] = def
	}

	if out.IncomeMultiplier <= 0 || math.IsNaN(out.IncomeMultiplier) || math.IsInf(out.IncomeMultiplier, 0) {
		out.IncomeMultiplier = 1
	}
	return out, nil
}
