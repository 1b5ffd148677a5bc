package protocol

import (
	"testing"

	"capclicker.app/internal/sim/game"
	"capclicker.app/internal/sim/session"
)

func TestIsKnownCode(t *testing.T) {
	for c := range knownCodes {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if !IsKnownCode("") {
		t.Fatalf("empty code means success")
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestCodeFor_EveryRejectHasAKnownCode(t *testing.T) {
	for _, r := range []game.Reject{
		game.RejectUnknown,
		game.RejectLocked,
		game.RejectGameOver,
		game.RejectFunds,
		game.RejectNotPending,
		game.RejectGateClosed,
		session.RejectBadAction,
	} {
		c := CodeFor(r)
		if c == "" || c == ErrInternal || !IsKnownCode(c) {
			t.Fatalf("reject %q mapped to %q", r, c)
		}
	}
	if CodeFor(game.RejectNone) != "" {
		t.Fatalf("success must map to no code")
	}
	if CodeFor("SOMETHING_NEW") != ErrInternal {
		t.Fatalf("unmapped rejects fall back to E_INTERNAL")
	}
}

func TestNewResult(t *testing.T) {
	r := NewResult("a1", session.Result{Kind: session.KindBuy, Reject: game.RejectFunds, Amount: 115})
	if r.Type != TypeResult || r.OK || r.Code != ErrInsufficientFunds || r.ActID != "a1" || r.Kind != "BUY" {
		t.Fatalf("result: %+v", r)
	}
}
