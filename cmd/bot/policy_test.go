package main

import (
	"testing"

	"capclicker.app/internal/sim/session"
)

func TestNextAction_Priorities(t *testing.T) {
	v := session.View{
		Upgrades: []session.UpgradeView{
			{ID: "aiBot", NextCost: 17, Affordable: true},
			{ID: "lobbyist", NextCost: 100, Affordable: true},
			{ID: "greenTech", NextCost: 5, Locked: true},
			{ID: "offshore", NextCost: 9, Affordable: false},
		},
	}
	if got, _ := nextAction(v); got.Kind != session.KindBuy || got.UpgradeID != "aiBot" {
		t.Fatalf("buy: got %+v", got)
	}

	v.AwaitingOfferChoice = true
	v.PendingOffers = []session.OfferView{{ID: "marina"}, {ID: "donaldo"}, {ID: "emmanuele"}}
	if got, _ := nextAction(v); got.Kind != session.KindChooseOffer || got.OfferID != "marina" {
		t.Fatalf("offer: got %+v", got)
	}

	v.CanAscend = true
	if got, _ := nextAction(v); got.Kind != session.KindAscend {
		t.Fatalf("ascend: got %+v", got)
	}
}

func TestNextAction_ClicksWhenNothingElseFits(t *testing.T) {
	if got, ok := nextAction(session.View{}); !ok || got.Kind != session.KindClick {
		t.Fatalf("empty view: got %+v ok=%v", got, ok)
	}
}

func TestNextAction_WaitsWhenOverAndNotArmed(t *testing.T) {
	v := session.View{
		GameOver: true,
		Upgrades: []session.UpgradeView{{ID: "aiBot", NextCost: 15, Affordable: true}},
	}
	if got, ok := nextAction(v); ok {
		t.Fatalf("game over: got %+v, want no action", got)
	}
	v.CanAscend = true
	if got, ok := nextAction(v); !ok || got.Kind != session.KindAscend {
		t.Fatalf("armed: got %+v ok=%v", got, ok)
	}
}
