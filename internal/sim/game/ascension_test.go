package game

import (
	"math/rand"
	"reflect"
	"sync"
	"testing"
	"time"
)

func gameOverState(e *Engine) State {
	s := e.NewState(t0)
	s.Climate = 100
	s.CanAscend = true
	return s
}

func TestAscend_GateRequiresArmedFlag(t *testing.T) {
	e := newTestEngine(t, Rules{})

	running := e.NewState(t0)
	running.CanAscend = true // armed but not over, level 0
	if got, res := e.Ascend(running, t0); res.OK() || !reflect.DeepEqual(got, running) {
		t.Fatalf("ascended at level 0 without game over")
	}

	over := gameOverState(e)
	over.CanAscend = false
	if _, res := e.Ascend(over, t0); res.Reject != RejectGateClosed {
		t.Fatalf("ascended without the armed flag: %+v", res)
	}

	veteran := e.NewState(t0)
	veteran.AscensionLevel = 2
	veteran.CanAscend = true
	if _, res := e.Ascend(veteran, t0); !res.OK() {
		t.Fatalf("armed veteran should be able to re-ascend at will: %+v", res)
	}
}

func TestAscend_StartingMoneyFloor(t *testing.T) {
	e := newTestEngine(t, Rules{})
	s := gameOverState(e)
	s.LifetimeEarnings = 1000
	next, res := e.Ascend(s, t0)
	if !res.OK() || res.StartingMoney != 400 || next.Money != 400 {
		t.Fatalf("starting money: res=%+v money=%v", res, next.Money)
	}

	s.LifetimeEarnings = 10000
	s.AscensionLevel = 2
	_, res = e.Ascend(s, t0)
	if !approx(res.StartingMoney, 10000*0.4) {
		t.Fatalf("starting money at level 2: got %v want %v", res.StartingMoney, 10000*0.4)
	}
}

func TestAscend_ResetsRunButKeepsLifetime(t *testing.T) {
	e := newTestEngine(t, Rules{PersistentOfferMultiplier: true})
	s := gameOverState(e)
	s.Money = 123
	s.MoneyPerSecond = 9
	s.Reputation = 40
	s.LifetimeEarnings = 5555
	s.IncomeMultiplier = 3
	s.Upgrades["aiBot"] = 12
	s.Upgrades["offshore"] = 3
	s = pendingOn(t, e, s)

	now := t0.Add(time.Hour)
	next, res := e.Ascend(s, now)
	if !res.OK() || res.PreviousLevel != 0 {
		t.Fatalf("ascend: %+v", res)
	}
	if next.AscensionLevel != 1 || next.CanAscend {
		t.Fatalf("level=%d canAscend=%v", next.AscensionLevel, next.CanAscend)
	}
	if next.Reputation != 100 || next.Climate != 0 || next.MoneyPerSecond != 0 {
		t.Fatalf("meters not reset: %+v", next)
	}
	if next.LifetimeEarnings != 5555 {
		t.Fatalf("lifetime earnings changed: %v", next.LifetimeEarnings)
	}
	if len(next.Upgrades) != len(e.Catalogs().Upgrades.Defs) {
		t.Fatalf("catalog membership changed: %d keys", len(next.Upgrades))
	}
	for id, n := range next.Upgrades {
		if n != 0 {
			t.Fatalf("upgrade %s count %d after ascension", id, n)
		}
	}
	if next.AwaitingOfferChoice || len(next.PendingOffers) != 0 || !next.LastOfferAt.Equal(now) || !next.LastTick.Equal(now) {
		t.Fatalf("offer state/timers not reset: %+v", next)
	}
	if next.IncomeMultiplier != 1 {
		t.Fatalf("standing multiplier survived ascension: %v", next.IncomeMultiplier)
	}
	if s.Upgrades["aiBot"] != 12 {
		t.Fatalf("input state mutated")
	}
}

func pendingOn(t *testing.T, e *Engine, s State) State {
	t.Helper()
	p := pendingWith(t, e, "emmanuele", "marina", "donaldo")
	s.PendingOffers = p.PendingOffers
	s.AwaitingOfferChoice = true
	return s
}

func TestClick_ValueScalesWithAscension(t *testing.T) {
	e := newTestEngine(t, Rules{})
	s := e.NewState(t0)
	next, res := e.Click(s)
	if !res.OK() || res.Value != 1 || next.Money != 1 || next.LifetimeEarnings != 1 {
		t.Fatalf("click at level 0: res=%+v money=%v", res, next.Money)
	}
	if got := e.ClickValue(3); got != 2.5 {
		t.Fatalf("click value at level 3: got %v want 2.5", got)
	}
}

func TestGameOver_PlayerActionsLeaveMoneyFrozen(t *testing.T) {
	e := newTestEngine(t, Rules{})
	s := pendingWith(t, e, "emmanuele", "marina", "donaldo")
	s.Climate = 100
	s.Money = 50
	s.LifetimeEarnings = 80
	s.MoneyPerSecond = 4
	s.CanAscend = true
	if !e.IsGameOver(s) {
		t.Fatalf("setup: expected game over")
	}

	clicked, cr := e.Click(s)
	if cr.Reject != RejectGameOver || cr.Value != 0 {
		t.Fatalf("click during game over: got %+v want reject %s", cr, RejectGameOver)
	}
	if clicked.Money != 50 || clicked.LifetimeEarnings != 80 {
		t.Fatalf("click moved money: money=%v lifetime=%v", clicked.Money, clicked.LifetimeEarnings)
	}

	def := e.Catalogs().Upgrades.Defs[0]
	s.Money = 1e9
	bought, br := e.Buy(s, def.ID)
	if br.Reject != RejectGameOver || bought.Money != 1e9 || bought.Count(def.ID) != s.Count(def.ID) {
		t.Fatalf("buy during game over: res=%+v money=%v", br, bought.Money)
	}
	s.Money = 50

	offer, _ := e.Catalogs().Offer("emmanuele")
	chosen, ch := e.ChooseOffer(s, "emmanuele", t0.Add(time.Second))
	if !ch.OK() {
		t.Fatalf("choose offer during game over: %+v", ch)
	}
	if chosen.MoneyPerSecond != 4 || chosen.Money != 50 {
		t.Fatalf("offer moved income while over: mps=%v money=%v", chosen.MoneyPerSecond, chosen.Money)
	}
	if want := e.clampMeter(s.Reputation + offer.ReputationChange); chosen.Reputation != want {
		t.Fatalf("reputation: got %v want %v", chosen.Reputation, want)
	}
	if want := e.clampMeter(s.Climate + offer.ClimateChange); chosen.Climate != want {
		t.Fatalf("climate: got %v want %v", chosen.Climate, want)
	}
	if chosen.AwaitingOfferChoice || len(chosen.PendingOffers) != 0 {
		t.Fatalf("offers not cleared: %+v", chosen.PendingOffers)
	}
}

func TestRandSampler_SharedAcrossGoroutines(t *testing.T) {
	e := newTestEngine(t, Rules{})
	base := e.NewState(t0)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := base.Clone()
			now := t0
			for i := 0; i < 200; i++ {
				now = now.Add(time.Hour)
				next, ok := e.MaybeGenerateOffers(s, now)
				if !ok {
					continue
				}
				seen := map[string]bool{}
				for _, o := range next.PendingOffers {
					if seen[o.ID] {
						t.Errorf("duplicate offer %s", o.ID)
					}
					seen[o.ID] = true
				}
			}
		}()
	}
	wg.Wait()
}

// Random interleavings of every entry point must keep the meters in range and the
// upgrade keys equal to the catalog.
func TestOperations_InvariantsHoldUnderRandomSequences(t *testing.T) {
	e := newTestEngine(t, Rules{})
	rng := rand.New(rand.NewSource(2024))
	ids := make([]string, 0, len(e.Catalogs().Upgrades.Defs))
	for _, d := range e.Catalogs().Upgrades.Defs {
		ids = append(ids, d.ID)
	}

	s := e.NewState(t0)
	now := t0
	for step := 0; step < 20000; step++ {
		now = now.Add(time.Duration(rng.Intn(400)) * time.Millisecond)
		prevLifetime := s.LifetimeEarnings
		wasCanAscend := s.CanAscend
		wasOver := e.IsGameOver(s)
		switch rng.Intn(6) {
		case 0, 1:
			s, _ = e.Tick(s, now)
		case 2:
			s, _ = e.Buy(s, ids[rng.Intn(len(ids))])
		case 3:
			s, _ = e.Click(s)
		case 4:
			if len(s.PendingOffers) > 0 {
				s, _ = e.ChooseOffer(s, s.PendingOffers[rng.Intn(len(s.PendingOffers))].ID, now)
			} else {
				s, _ = e.MaybeGenerateOffers(s, now)
			}
		case 5:
			var res AscendResult
			s, res = e.Ascend(s, now)
			if res.OK() {
				wasCanAscend = false
			}
		}

		if s.Reputation < 0 || s.Reputation > 100 || s.Climate < 0 || s.Climate > 100 {
			t.Fatalf("step %d: meters out of range rep=%v climate=%v", step, s.Reputation, s.Climate)
		}
		if s.Money < 0 {
			t.Fatalf("step %d: money negative %v", step, s.Money)
		}
		if s.LifetimeEarnings < prevLifetime {
			t.Fatalf("step %d: lifetime earnings decreased", step)
		}
		if len(s.Upgrades) != len(ids) {
			t.Fatalf("step %d: upgrade keys changed", step)
		}
		if n := len(s.PendingOffers); n != 0 && n != 3 {
			t.Fatalf("step %d: partial offer set %d", step, n)
		}
		if s.AwaitingOfferChoice != (len(s.PendingOffers) > 0) {
			t.Fatalf("step %d: awaiting flag out of sync", step)
		}
		if !wasCanAscend && s.CanAscend && (wasOver || !e.IsGameOver(s)) {
			t.Fatalf("step %d: CanAscend raised outside a game over edge", step)
		}
	}
}
