package observerproto

import "capclicker.app/internal/sim/session"

// Version is the observer protocol version (separate from the player WS protocol).
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be re-sent to
// switch player or cadence.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	UserID          string `json:"user_id"`
	IntervalMs      int    `json:"interval_ms,omitempty"`
}

// HTTP response for GET /admin/v1/observer/sessions.
type SessionsResponse struct {
	ProtocolVersion string        `json:"protocol_version"`
	AtMs            int64         `json:"at_ms"`
	Sessions        []SessionInfo `json:"sessions"`
}

type SessionInfo struct {
	UserID         string  `json:"user_id"`
	SessionID      string  `json:"session_id"`
	Money          float64 `json:"money"`
	MoneyPerSecond float64 `json:"money_per_second"`
	Reputation     float64 `json:"reputation"`
	Climate        float64 `json:"climate"`
	AscensionLevel int     `json:"ascension_level"`
	GameOver       bool    `json:"game_over"`
}

// Server -> Client. Sent every interval while the subscribed player is online.
type ViewMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Online          bool         `json:"online"`
	View            session.View `json:"view"`
}

func Info(s *session.Session) SessionInfo {
	v := s.View()
	return SessionInfo{
		UserID:         s.UserID(),
		SessionID:      s.ID(),
		Money:          v.Money,
		MoneyPerSecond: v.MoneyPerSecond,
		Reputation:     v.Reputation,
		Climate:        v.Climate,
		AscensionLevel: v.AscensionLevel,
		GameOver:       v.GameOver,
	}
}
