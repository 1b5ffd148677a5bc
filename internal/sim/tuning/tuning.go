package tuning

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"capclicker.app/internal/sim/game"
)

const (
	MultiplierTransient  = "transient"
	MultiplierPersistent = "persistent"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	// Loop cadence.
	TickMs          int `yaml:"tick_ms"`
	OfferPollMs     int `yaml:"offer_poll_ms"`
	SaveEveryMs     int `yaml:"save_every_ms"`
	StatePushMs     int `yaml:"state_push_ms"`
	OfferIntervalMs int `yaml:"offer_interval_ms"`

	Economy   Economy   `yaml:"economy"`
	Ascension Ascension `yaml:"ascension"`
	Offers    Offers    `yaml:"offers"`

	RateLimits RateLimits `yaml:"rate_limits"`
}

type Economy struct {
	CostGrowth           float64 `yaml:"cost_growth"`
	AscensionIncomeBonus float64 `yaml:"ascension_income_bonus"`
	ClickBase            float64 `yaml:"click_base"`
	ClickAscensionBonus  float64 `yaml:"click_ascension_bonus"`
	ClimateDanger        float64 `yaml:"climate_danger"`
	ReputationDanger     float64 `yaml:"reputation_danger"`
}

type Ascension struct {
	MoneyBase          float64 `yaml:"money_base"`
	MoneyStep          float64 `yaml:"money_step"`
	StartingMoneyFloor float64 `yaml:"starting_money_floor"`
}

type Offers struct {
	Count          int    `yaml:"count"`
	MultiplierMode string `yaml:"multiplier_mode"` // transient | persistent
}

type RateLimits struct {
	ActionsPerSecond float64 `yaml:"actions_per_second"`
	ActionBurst      int     `yaml:"action_burst"`
}

func Defaults() Tuning {
	r := game.DefaultRules()
	return Tuning{
		ProtocolVersion: "1.0",
		TickMs:          100,
		OfferPollMs:     1000,
		SaveEveryMs:     30000,
		StatePushMs:     250,
		OfferIntervalMs: int(r.OfferInterval / time.Millisecond),
		Economy: Economy{
			CostGrowth:           r.CostGrowth,
			AscensionIncomeBonus: r.AscensionIncomeBonus,
			ClickBase:            r.ClickBase,
			ClickAscensionBonus:  r.ClickAscensionBonus,
			ClimateDanger:        r.ClimateDanger,
			ReputationDanger:     r.ReputationDanger,
		},
		Ascension: Ascension{
			MoneyBase:          r.AscensionMoneyBase,
			MoneyStep:          r.AscensionMoneyStep,
			StartingMoneyFloor: r.StartingMoneyFloor,
		},
		Offers: Offers{
			Count:          r.OfferCount,
			MultiplierMode: MultiplierTransient,
		},
		RateLimits: RateLimits{
			ActionsPerSecond: 30,
			ActionBurst:      60,
		},
	}
}

// Load reads tuning.yaml over the defaults, so omitted keys keep their default values.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.TickMs <= 0 || t.OfferPollMs <= 0 || t.SaveEveryMs <= 0 || t.StatePushMs <= 0 {
		return fmt.Errorf("loop periods must be > 0")
	}
	if t.OfferIntervalMs <= 0 {
		return fmt.Errorf("offer_interval_ms must be > 0")
	}
	if t.Economy.CostGrowth <= 1 {
		return fmt.Errorf("economy.cost_growth must be > 1 (got %v)", t.Economy.CostGrowth)
	}
	if t.Offers.Count <= 0 {
		return fmt.Errorf("offers.count must be > 0")
	}
	switch strings.ToLower(strings.TrimSpace(t.Offers.MultiplierMode)) {
	case "", MultiplierTransient, MultiplierPersistent:
	default:
		return fmt.Errorf("offers.multiplier_mode: unknown mode %q", t.Offers.MultiplierMode)
	}
	if t.RateLimits.ActionsPerSecond < 0 || t.RateLimits.ActionBurst < 0 {
		return fmt.Errorf("rate_limits must be >= 0")
	}
	return nil
}

func (t Tuning) TickPeriod() time.Duration { return time.Duration(t.TickMs) * time.Millisecond }
func (t Tuning) OfferPoll() time.Duration  { return time.Duration(t.OfferPollMs) * time.Millisecond }
func (t Tuning) SavePeriod() time.Duration { return time.Duration(t.SaveEveryMs) * time.Millisecond }
func (t Tuning) StatePush() time.Duration  { return time.Duration(t.StatePushMs) * time.Millisecond }

// Rules maps the economic section onto the simulation model. Meter bounds are fixed.
func (t Tuning) Rules() game.Rules {
	r := game.DefaultRules()
	r.CostGrowth = t.Economy.CostGrowth
	r.AscensionIncomeBonus = t.Economy.AscensionIncomeBonus
	r.ClickBase = t.Economy.ClickBase
	r.ClickAscensionBonus = t.Economy.ClickAscensionBonus
	r.ClimateDanger = t.Economy.ClimateDanger
	r.ReputationDanger = t.Economy.ReputationDanger
	r.AscensionMoneyBase = t.Ascension.MoneyBase
	r.AscensionMoneyStep = t.Ascension.MoneyStep
	r.StartingMoneyFloor = t.Ascension.StartingMoneyFloor
	r.OfferInterval = time.Duration(t.OfferIntervalMs) * time.Millisecond
	r.OfferCount = t.Offers.Count
	r.PersistentOfferMultiplier = strings.EqualFold(strings.TrimSpace(t.Offers.MultiplierMode), MultiplierPersistent)
	return r
}
