package session

import (
	"time"

	"capclicker.app/internal/sim/catalogs"
	"capclicker.app/internal/sim/game"
)

type UpgradeView struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Icon        string       `json:"icon"`
	Tag         catalogs.Tag `json:"tag"`
	Count       int          `json:"count"`
	NextCost    float64      `json:"next_cost"`
	Locked      bool         `json:"locked"`
	Affordable  bool         `json:"affordable"`
}

type OfferView struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Description      string       `json:"description"`
	Icon             string       `json:"icon"`
	Tag              catalogs.Tag `json:"tag"`
	MoneyMultiplier  float64      `json:"money_multiplier"`
	ReputationChange float64      `json:"reputation_change"`
	ClimateChange    float64      `json:"climate_change"`
}

// View is the read-only projection handed to the presentation layer.
type View struct {
	UserID string `json:"user_id"`
	AtMs   int64  `json:"at_ms"`

	Money            float64 `json:"money"`
	MoneyPerSecond   float64 `json:"money_per_second"`
	Reputation       float64 `json:"reputation"`
	Climate          float64 `json:"climate"`
	LifetimeEarnings float64 `json:"lifetime_earnings"`
	AscensionLevel   int     `json:"ascension_level"`
	ClickValue       float64 `json:"click_value"`

	GameOver       bool   `json:"game_over"`
	GameOverReason string `json:"game_over_reason,omitempty"`

	// CanAscend is the full gate, not the raw armed flag.
	CanAscend         bool    `json:"can_ascend"`
	NextStartingMoney float64 `json:"next_starting_money"`

	Upgrades            []UpgradeView `json:"upgrades"`
	PendingOffers       []OfferView   `json:"pending_offers"`
	AwaitingOfferChoice bool          `json:"awaiting_offer_choice"`
	NextOfferInMs       int64         `json:"next_offer_in_ms"`
}

func BuildView(e *game.Engine, userID string, s game.State, now time.Time) View {
	v := View{
		UserID:              userID,
		AtMs:                now.UnixMilli(),
		Money:               s.Money,
		MoneyPerSecond:      s.MoneyPerSecond,
		Reputation:          s.Reputation,
		Climate:             s.Climate,
		LifetimeEarnings:    s.LifetimeEarnings,
		AscensionLevel:      s.AscensionLevel,
		ClickValue:          e.ClickValue(s.AscensionLevel),
		GameOver:            e.IsGameOver(s),
		GameOverReason:      e.GameOverReason(s),
		CanAscend:           e.CanAscend(s),
		NextStartingMoney:   e.StartingMoney(s),
		AwaitingOfferChoice: s.AwaitingOfferChoice,
		Upgrades:            make([]UpgradeView, 0, len(e.Catalogs().Upgrades.Defs)),
		PendingOffers:       make([]OfferView, 0, len(s.PendingOffers)),
	}
	for _, d := range e.Catalogs().Upgrades.Defs {
		n := s.Count(d.ID)
		cost := e.Cost(d, n)
		locked := e.Locked(s, d)
		v.Upgrades = append(v.Upgrades, UpgradeView{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Icon:        d.Icon,
			Tag:         d.Tag,
			Count:       n,
			NextCost:    cost,
			Locked:      locked,
			Affordable:  !locked && !v.GameOver && cost <= s.Money,
		})
	}
	for _, o := range s.PendingOffers {
		v.PendingOffers = append(v.PendingOffers, OfferView{
			ID:               o.ID,
			Name:             o.Name,
			Description:      o.Description,
			Icon:             o.Icon,
			Tag:              o.Tag,
			MoneyMultiplier:  o.MoneyMultiplier,
			ReputationChange: o.ReputationChange,
			ClimateChange:    o.ClimateChange,
		})
	}
	if !s.AwaitingOfferChoice {
		left := e.Rules().OfferInterval - now.Sub(s.LastOfferAt)
		if left < 0 {
			left = 0
		}
		v.NextOfferInMs = left.Milliseconds()
	}
	return v
}
