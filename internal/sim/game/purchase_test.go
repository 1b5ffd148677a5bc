package game

import (
	"reflect"
	"testing"
)

func TestCost_ExponentialScaling(t *testing.T) {
	e := newTestEngine(t, Rules{})
	def, _ := e.Catalogs().Upgrade("aiBot")
	if got := e.Cost(def, 0); got != 15 {
		t.Fatalf("cost(0): got %v want 15", got)
	}
	if got := e.Cost(def, 1); got != 17 {
		t.Fatalf("cost(1): got %v want 17", got)
	}

	for _, d := range e.Catalogs().Upgrades.Defs {
		prev := e.Cost(d, 0)
		for n := 1; n < 60; n++ {
			c := e.Cost(d, n)
			if c <= prev {
				t.Fatalf("%s: cost(%d)=%v not above cost(%d)=%v", d.ID, n, c, n-1, prev)
			}
			prev = c
		}
	}
}

func TestBuy_DeductsCostAndIncrementsCount(t *testing.T) {
	e := newTestEngine(t, Rules{})
	s := e.NewState(t0)
	s.Money = 40

	next, res := e.Buy(s, "aiBot")
	if !res.OK() || res.Cost != 15 || res.NewCount != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if next.Money != 25 || next.Upgrades["aiBot"] != 1 {
		t.Fatalf("state after buy: money=%v count=%d", next.Money, next.Upgrades["aiBot"])
	}
	if s.Upgrades["aiBot"] != 0 || s.Money != 40 {
		t.Fatalf("input state mutated")
	}
	for id, n := range next.Upgrades {
		if id != "aiBot" && n != 0 {
			t.Fatalf("other upgrade %s changed to %d", id, n)
		}
	}

	next, res = e.Buy(next, "aiBot")
	if !res.OK() || res.Cost != 17 || next.Money != 8 {
		t.Fatalf("second buy: res=%+v money=%v", res, next.Money)
	}
}

func TestBuy_FailedPreconditionsLeaveStateUnchanged(t *testing.T) {
	e := newTestEngine(t, Rules{})

	base := e.NewState(t0)
	base.Money = 14

	over := e.NewState(t0)
	over.Money = 1e6
	over.Climate = 100

	locked := e.NewState(t0)
	locked.Money = 1e6

	cases := []struct {
		name string
		s    State
		id   string
		want Reject
	}{
		{"unknown", base, "nope", RejectUnknown},
		{"locked", locked, "greenTech", RejectLocked},
		{"game over", over, "aiBot", RejectGameOver},
		{"funds", base, "aiBot", RejectFunds},
	}
	for _, tc := range cases {
		before := tc.s.Clone()
		got, res := e.Buy(tc.s, tc.id)
		if res.Reject != tc.want {
			t.Fatalf("%s: reject got %q want %q", tc.name, res.Reject, tc.want)
		}
		if !reflect.DeepEqual(got, before) {
			t.Fatalf("%s: state changed on rejected buy:\n got=%+v\nwant=%+v", tc.name, got, before)
		}
	}
}

func TestBuy_EthicalUnlocksAfterAscension(t *testing.T) {
	e := newTestEngine(t, Rules{})
	s := e.NewState(t0)
	s.Money = 200
	s.AscensionLevel = 1
	next, res := e.Buy(s, "greenTech")
	if !res.OK() || next.Money != 0 || next.Upgrades["greenTech"] != 1 {
		t.Fatalf("ethical buy after ascension: res=%+v money=%v", res, next.Money)
	}
}

func TestBuy_NeverGoesNegative(t *testing.T) {
	e := newTestEngine(t, Rules{})
	s := e.NewState(t0)
	s.Money = 1000
	for i := 0; i < 200; i++ {
		var res BuyResult
		s, res = e.Buy(s, "aiBot")
		if s.Money < 0 {
			t.Fatalf("money went negative after %d buys: %v", i, s.Money)
		}
		if !res.OK() {
			break
		}
	}
}
