package telemetry

import (
	"time"

	"github.com/google/uuid"
)

type Name string

const (
	MoneyClicked             Name = "money_clicked"
	UpgradePurchased         Name = "upgrade_purchased"
	OffersGenerated          Name = "offers_generated"
	TemporaryUpgradeSelected Name = "temporary_upgrade_selected"
	GameOver                 Name = "game_over"
	PlayerAscended           Name = "player_ascended"
	GameLoaded               Name = "game_loaded"
	GameSaved                Name = "game_saved"
	UserLoggedIn             Name = "user_logged_in"
	UserLoggedOut            Name = "user_logged_out"
	AuthError                Name = "auth_error"
)

type Params map[string]any

type Event struct {
	ID     string    `json:"id"`
	Name   Name      `json:"name"`
	UserID string    `json:"user_id,omitempty"`
	At     time.Time `json:"at"`
	Params Params    `json:"params,omitempty"`
}

func New(name Name, userID string, at time.Time, params Params) Event {
	return Event{
		ID:     uuid.NewString(),
		Name:   name,
		UserID: userID,
		At:     at.UTC(),
		Params: params,
	}
}
