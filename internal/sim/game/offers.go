package game

import (
	"time"

	"capclicker.app/internal/sim/catalogs"
)

type ChoiceResult struct {
	Reject Reject
	Offer  catalogs.OfferDef
}

func (r ChoiceResult) OK() bool { return r.Reject == RejectNone }

// EligibleOffers lists the offers a player may be shown. Ethical offers stay hidden
// until the first ascension.
func (e *Engine) EligibleOffers(s State) []catalogs.OfferDef {
	out := make([]catalogs.OfferDef, 0, len(e.cats.Offers.Defs))
	for _, d := range e.cats.Offers.Defs {
		if s.AscensionLevel == 0 && d.Tag == catalogs.TagEthical {
			continue
		}
		out = append(out, d)
	}
	return out
}

// MaybeGenerateOffers presents a fresh set of offers once the interval has elapsed.
// It never replaces a pending set and never produces a partial one.
func (e *Engine) MaybeGenerateOffers(s State, now time.Time) (State, bool) {
	if s.AwaitingOfferChoice || len(s.PendingOffers) > 0 {
		return s, false
	}
	if now.Sub(s.LastOfferAt) < e.rules.OfferInterval {
		return s, false
	}
	pool := e.EligibleOffers(s)
	k := e.rules.OfferCount
	if len(pool) < k {
		return s, false
	}
	picks := e.sampler.Sample(len(pool), k)
	if len(picks) != k {
		return s, false
	}
	offers := make([]catalogs.OfferDef, 0, k)
	seen := make(map[int]struct{}, k)
	for _, i := range picks {
		if i < 0 || i >= len(pool) {
			return s, false
		}
		if _, dup := seen[i]; dup {
			return s, false
		}
		seen[i] = struct{}{}
		offers = append(offers, pool[i])
	}

	next := s.Clone()
	next.PendingOffers = offers
	next.LastOfferAt = now
	next.AwaitingOfferChoice = true
	return next, true
}

// ChooseOffer applies one of the pending offers and clears the set. While the game is over
// only the meters move; the income rate stays frozen until ascension.
func (e *Engine) ChooseOffer(s State, offerID string, now time.Time) (State, ChoiceResult) {
	if !s.AwaitingOfferChoice || len(s.PendingOffers) == 0 {
		return s, ChoiceResult{Reject: RejectNotPending}
	}
	var offer catalogs.OfferDef
	found := false
	for _, o := range s.PendingOffers {
		if o.ID == offerID {
			offer, found = o, true
			break
		}
	}
	if !found {
		return s, ChoiceResult{Reject: RejectNotPending}
	}

	next := s.Clone()
	next.Reputation = e.clampMeter(s.Reputation + offer.ReputationChange)
	next.Climate = e.clampMeter(s.Climate + offer.ClimateChange)
	if !e.IsGameOver(s) {
		next.MoneyPerSecond = s.MoneyPerSecond * offer.MoneyMultiplier
	}
	if e.rules.PersistentOfferMultiplier && !e.IsGameOver(s) {
		m := s.IncomeMultiplier
		if m <= 0 {
			m = 1
		}
		next.IncomeMultiplier = m * offer.MoneyMultiplier
	}
	next.PendingOffers = nil
	next.AwaitingOfferChoice = false
	next.LastOfferAt = now
	return next, ChoiceResult{Offer: offer}
}
