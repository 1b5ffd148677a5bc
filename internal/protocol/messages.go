package protocol

import (
	"capclicker.app/internal/sim/session"
	"capclicker.app/internal/telemetry"
)

// HELLO (client -> server). An empty UserID asks for a guest account.
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	UserID          string     `json:"user_id,omitempty"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	UserID          string         `json:"user_id"`
	SessionID       string         `json:"session_id"`
	Token           string         `json:"token,omitempty"`
	Guest           bool           `json:"guest,omitempty"`
	Params          GameParams     `json:"params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type GameParams struct {
	TickMs          int `json:"tick_ms"`
	StatePushMs     int `json:"state_push_ms"`
	OfferIntervalMs int `json:"offer_interval_ms"`
	OfferCount      int `json:"offer_count"`
}

type CatalogDigests struct {
	Upgrades DigestRef `json:"upgrades"`
	Offers   DigestRef `json:"offers"`
}

type DigestRef struct {
	Digest string `json:"digest"`
	Count  int    `json:"count"`
}

// STATE (server -> client)
type StateMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	View            session.View `json:"view"`
}

// ACT (client -> server)
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ActID           string `json:"act_id,omitempty"`
	Kind            string `json:"kind"`
	UpgradeID       string `json:"upgrade_id,omitempty"`
	OfferID         string `json:"offer_id,omitempty"`
}

func (a ActMsg) Action() session.Action {
	return session.Action{Kind: session.Kind(a.Kind), UpgradeID: a.UpgradeID, OfferID: a.OfferID}
}

// RESULT (server -> client), one per ACT.
type ResultMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	ActID           string  `json:"act_id,omitempty"`
	Kind            string  `json:"kind"`
	OK              bool    `json:"ok"`
	Code            string  `json:"code,omitempty"`
	Amount          float64 `json:"amount,omitempty"`
}

func NewResult(actID string, res session.Result) ResultMsg {
	return ResultMsg{
		Type:            TypeResult,
		ProtocolVersion: Version,
		ActID:           actID,
		Kind:            string(res.Kind),
		OK:              res.OK(),
		Code:            CodeFor(res.Reject),
		Amount:          res.Amount,
	}
}

// EVENT (server -> client)
type EventMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	Name            string           `json:"name"`
	Params          telemetry.Params `json:"params,omitempty"`
}

// ERROR (server -> client), sent before the server closes a connection.
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message,omitempty"`
}
