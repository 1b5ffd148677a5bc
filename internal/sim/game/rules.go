package game

import "time"

// Rules holds the fixed constants of the economic model. Zero fields are filled from DefaultRules.
type Rules struct {
	CostGrowth           float64 // purchase cost = floor(base * growth^count)
	AscensionIncomeBonus float64 // income scale per ascension level
	ClickBase            float64
	ClickAscensionBonus  float64 // click scale per ascension level

	AscensionMoneyBase float64 // share of lifetime earnings granted on ascension
	AscensionMoneyStep float64 // extra share per previous ascension level
	StartingMoneyFloor float64
	ClimateDanger      float64
	ReputationDanger   float64
	MeterMax           float64
	StartingReputation float64

	OfferInterval time.Duration
	OfferCount    int

	// PersistentOfferMultiplier folds chosen offer multipliers into the income formula
	// instead of only scaling the last observed rate until the next tick.
	PersistentOfferMultiplier bool
}

func DefaultRules() Rules {
	return Rules{
		CostGrowth:           1.15,
		AscensionIncomeBonus: 0.2,
		ClickBase:            1,
		ClickAscensionBonus:  0.5,
		AscensionMoneyBase:   0.2,
		AscensionMoneyStep:   0.1,
		StartingMoneyFloor:   400,
		ClimateDanger:        100,
		ReputationDanger:     0,
		MeterMax:             100,
		StartingReputation:   100,
		OfferInterval:        5 * time.Second,
		OfferCount:           3,
	}
}

func (r *Rules) applyDefaults() {
	d := DefaultRules()
	if r.CostGrowth <= 0 {
		r.CostGrowth = d.CostGrowth
	}
	if r.AscensionIncomeBonus <= 0 {
		r.AscensionIncomeBonus = d.AscensionIncomeBonus
	}
	if r.ClickBase <= 0 {
		r.ClickBase = d.ClickBase
	}
	if r.ClickAscensionBonus <= 0 {
		r.ClickAscensionBonus = d.ClickAscensionBonus
	}
	if r.AscensionMoneyBase <= 0 {
		r.AscensionMoneyBase = d.AscensionMoneyBase
	}
	if r.AscensionMoneyStep <= 0 {
		r.AscensionMoneyStep = d.AscensionMoneyStep
	}
	if r.StartingMoneyFloor <= 0 {
		r.StartingMoneyFloor = d.StartingMoneyFloor
	}
	if r.MeterMax <= 0 {
		r.MeterMax = d.MeterMax
	}
	if r.ClimateDanger <= 0 {
		r.ClimateDanger = r.MeterMax
	}
	if r.StartingReputation <= 0 {
		r.StartingReputation = r.MeterMax
	}
	if r.OfferInterval <= 0 {
		r.OfferInterval = d.OfferInterval
	}
	if r.OfferCount <= 0 {
		r.OfferCount = d.OfferCount
	}
}
