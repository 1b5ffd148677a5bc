package game

import (
	"time"

	"capclicker.app/internal/sim/catalogs"
)

// State is the whole per-player simulation aggregate. Transition functions take it by value
// and return a new value; Clone must be used before touching Upgrades or PendingOffers.
type State struct {
	Money          float64
	MoneyPerSecond float64 // cached rate from the last tick, not authoritative
	Reputation     float64
	Climate        float64

	Upgrades map[string]int // upgrade id -> owned count; keys are exactly the catalog ids

	LastTick         time.Time
	AscensionLevel   int
	LifetimeEarnings float64
	CanAscend        bool

	PendingOffers       []catalogs.OfferDef // exactly Rules.OfferCount entries or none
	LastOfferAt         time.Time
	AwaitingOfferChoice bool

	// IncomeMultiplier is the standing product of chosen offer multipliers. It only affects
	// income when Rules.PersistentOfferMultiplier is set, and is reset by ascension.
	IncomeMultiplier float64
}

func (s State) Clone() State {
	out := s
	out.Upgrades = make(map[string]int, len(s.Upgrades))
	for id, n := range s.Upgrades {
		out.Upgrades[id] = n
	}
	if s.PendingOffers != nil {
		out.PendingOffers = append([]catalogs.OfferDef(nil), s.PendingOffers...)
	}
	return out
}

func (s State) Count(upgradeID string) int { return s.Upgrades[upgradeID] }

// Engine applies the model's transition functions against one catalog.
// It holds no player state and is shared by all sessions; its Sampler must be safe for
// concurrent use.
type Engine struct {
	cats    *catalogs.Catalogs
	rules   Rules
	sampler Sampler
}

func NewEngine(cats *catalogs.Catalogs, rules Rules, sampler Sampler) *Engine {
	if cats == nil {
		cats = catalogs.Default()
	}
	rules.applyDefaults()
	if sampler == nil {
		sampler = NewRandSampler(time.Now().UnixNano())
	}
	return &Engine{cats: cats, rules: rules, sampler: sampler}
}

func (e *Engine) Catalogs() *catalogs.Catalogs { return e.cats }
func (e *Engine) Rules() Rules                 { return e.rules }

// NewState returns a fresh run at ascension level zero.
func (e *Engine) NewState(now time.Time) State {
	return State{
		Reputation:       e.rules.StartingReputation,
		Upgrades:         e.zeroUpgrades(),
		LastTick:         now,
		LastOfferAt:      now,
		IncomeMultiplier: 1,
	}
}

func (e *Engine) zeroUpgrades() map[string]int {
	m := make(map[string]int, len(e.cats.Upgrades.Defs))
	for _, d := range e.cats.Upgrades.Defs {
		m[d.ID] = 0
	}
	return m
}

func (e *Engine) IsGameOver(s State) bool {
	return s.Climate >= e.rules.ClimateDanger || s.Reputation <= e.rules.ReputationDanger
}

// GameOverReason names the meter that ended the run, or "" while the game is running.
func (e *Engine) GameOverReason(s State) string {
	switch {
	case s.Climate >= e.rules.ClimateDanger:
		return "climate"
	case s.Reputation <= e.rules.ReputationDanger:
		return "reputation"
	}
	return ""
}

// Locked reports whether an upgrade is hidden behind the first ascension.
func (e *Engine) Locked(s State, def catalogs.UpgradeDef) bool {
	return def.RequiresAscension && s.AscensionLevel == 0
}

func (e *Engine) clampMeter(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > e.rules.MeterMax {
		return e.rules.MeterMax
	}
	return v
}
