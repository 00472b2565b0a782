package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrInvalidState means the OAuth state parameter failed authentication,
// was malformed, or is older than the freshness window.
var ErrInvalidState = errors.New("invalid oauth state")

// statePayload is the authenticated content of the state parameter. It binds
// the callback to the user who started the flow and to a point in time.
type statePayload struct {
	UserID   string `json:"user_id"`
	IssuedAt int64  `json:"issued_at"`
}

// stateCodec signs and verifies the OAuth state parameter. The encoded form
// is base64url(JSON payload) + "." + base64url(HMAC-SHA256 tag), so a tampered
// or forged state is rejected before any token exchange happens.
type stateCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func newStateCodec(secret string, ttl time.Duration) *stateCodec {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &stateCodec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (c *stateCodec) Encode(userID string) (string, error) {
	raw, err := json.Marshal(statePayload{UserID: userID, IssuedAt: c.now().Unix()})
	if err != nil {
		return "", err
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	return payload + "." + c.tag(payload), nil
}

// Decode verifies the tag and freshness and returns the user id the flow was
// started for.
func (c *stateCodec) Decode(state string) (string, error) {
	payload, tag, ok := strings.Cut(state, ".")
	if !ok {
		return "", ErrInvalidState
	}
	if !hmac.Equal([]byte(tag), []byte(c.tag(payload))) {
		return "", ErrInvalidState
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", ErrInvalidState
	}
	var p statePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.UserID == "" {
		return "", ErrInvalidState
	}
	issued := time.Unix(p.IssuedAt, 0)
	if c.now().Sub(issued) > c.ttl || issued.After(c.now().Add(time.Minute)) {
		return "", ErrInvalidState
	}
	return p.UserID, nil
}

func (c *stateCodec) tag(payload string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
