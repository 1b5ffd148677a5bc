package protocol

import (
	"capclicker.app/internal/sim/game"
	"capclicker.app/internal/sim/session"
)

const (
	// Protocol/transport validation.
	ErrProtoBadRequest  = "E_PROTO_BAD_REQUEST"
	ErrAuth             = "E_AUTH"
	ErrAlreadyConnected = "E_ALREADY_CONNECTED"
	ErrRateLimit        = "E_RATE_LIMIT"

	// Rule/action layer.
	ErrBadRequest        = "E_BAD_REQUEST"
	ErrUnknownUpgrade    = "E_UNKNOWN_UPGRADE"
	ErrLocked            = "E_LOCKED"
	ErrGameOver          = "E_GAME_OVER"
	ErrInsufficientFunds = "E_INSUFFICIENT_FUNDS"
	ErrNotPending        = "E_NOT_PENDING"
	ErrAscensionBlocked  = "E_ASCENSION_BLOCKED"
	ErrInternal          = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:   {},
	ErrAuth:              {},
	ErrAlreadyConnected:  {},
	ErrRateLimit:         {},
	ErrBadRequest:        {},
	ErrUnknownUpgrade:    {},
	ErrLocked:            {},
	ErrGameOver:          {},
	ErrInsufficientFunds: {},
	ErrNotPending:        {},
	ErrAscensionBlocked:  {},
	ErrInternal:          {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeFor maps a rejected action onto its wire code. Success maps to "".
func CodeFor(r game.Reject) string {
	switch r {
	case game.RejectNone:
		return ""
	case game.RejectUnknown:
		return ErrUnknownUpgrade
	case game.RejectLocked:
		return ErrLocked
	case game.RejectGameOver:
		return ErrGameOver
	case game.RejectFunds:
		return ErrInsufficientFunds
	case game.RejectNotPending:
		return ErrNotPending
	case game.RejectGateClosed:
		return ErrAscensionBlocked
	case session.RejectBadAction:
		return ErrBadRequest
	}
	return ErrInternal
}
