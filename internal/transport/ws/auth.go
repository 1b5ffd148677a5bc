package ws

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer issues and checks reconnect tokens bound to a user id. A zero Signer accepts
// any claimed user id (dev mode) and issues no tokens.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) Signer {
	if secret == "" {
		return Signer{}
	}
	return Signer{secret: []byte(secret)}
}

func (s Signer) Enabled() bool { return len(s.secret) > 0 }

func (s Signer) Sign(userID string) string {
	if !s.Enabled() {
		return ""
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s Signer) Verify(userID, token string) bool {
	if !s.Enabled() {
		return true
	}
	want, err := hex.DecodeString(token)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(userID))
	return hmac.Equal(mac.Sum(nil), want)
}
