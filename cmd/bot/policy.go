package main

import (
	"capclicker.app/internal/sim/session"
)

// nextAction picks one move from the latest view: ascend when allowed, settle a pending
// offer, buy the cheapest affordable upgrade, otherwise click. It reports false when the run
// is over and nothing but waiting is left.
func nextAction(v session.View) (session.Action, bool) {
	if v.CanAscend {
		return session.Action{Kind: session.KindAscend}, true
	}
	if v.AwaitingOfferChoice && len(v.PendingOffers) > 0 {
		return session.Action{Kind: session.KindChooseOffer, OfferID: v.PendingOffers[0].ID}, true
	}
	if v.GameOver {
		return session.Action{}, false
	}
	best := -1
	for i, u := range v.Upgrades {
		if u.Locked || !u.Affordable {
			continue
		}
		if best < 0 || u.NextCost < v.Upgrades[best].NextCost {
			best = i
		}
	}
	if best >= 0 {
		return session.Action{Kind: session.KindBuy, UpgradeID: v.Upgrades[best].ID}, true
	}
	return session.Action{Kind: session.KindClick}, true
}
