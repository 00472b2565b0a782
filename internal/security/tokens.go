package security

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenInvalid is returned when a token is malformed, carries a bad
	// signature, or was signed for a different issuer or audience.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned when a token's exp claim has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned when a token's digest is present in the
	// revocation store, or when the store cannot be consulted (fail closed).
	ErrTokenRevoked = errors.New("token revoked")
)

// AccessClaims holds JWT claims for the access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
}

// RefreshClaims holds JWT claims for the refresh token. Generation is the
// user's token generation at issue time; the caller compares it against the
// user's current generation and treats a mismatch as revocation.
type RefreshClaims struct {
	jwt.RegisteredClaims
	Generation int64  `json:"generation"`
	SessionID  string `json:"session_id"`
}

// RevocationStore records token digests until their natural expiry.
type RevocationStore interface {
	// Revoke stores the digest for ttl. Race-safe; insertion order is irrelevant.
	Revoke(ctx context.Context, digest string, ttl time.Duration) error
	// IsRevoked reports whether the digest is present.
	IsRevoked(ctx context.Context, digest string) (bool, error)
}

// TokenAuthority issues and validates HS256 access and refresh tokens.
// Access and refresh tokens are signed with independent secrets, so a leaked
// refresh token can never pass as an access token or vice versa.
type TokenAuthority struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	revoked       RevocationStore
	now           func() time.Time
}

// NewTokenAuthority returns a TokenAuthority signing with the two given
// secrets. issuer and audience are set on claims and validated on parse.
func NewTokenAuthority(accessSecret, refreshSecret []byte, issuer, audience string, accessTTL, refreshTTL time.Duration, revoked RevocationStore) *TokenAuthority {
	return &TokenAuthority{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		issuer:        issuer,
		audience:      audience,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		revoked:       revoked,
		now:           time.Now,
	}
}

// IssueAccess issues a short-lived access token embedding the user's id,
// email, role, and the session it is bound to.
func (a *TokenAuthority) IssueAccess(userID, email, role, sessionID string) (token string, expiresAt time.Time, err error) {
	now := a.now().UTC()
	expiresAt = now.Add(a.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			Audience:  jwt.ClaimStrings{a.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:     email,
		Role:      role,
		SessionID: sessionID,
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.accessSecret)
	return token, expiresAt, err
}

// IssueRefresh issues a long-lived refresh token embedding the user's id,
// current token generation, and the session it is bound to.
func (a *TokenAuthority) IssueRefresh(userID string, generation int64, sessionID string) (token string, expiresAt time.Time, err error) {
	now := a.now().UTC()
	expiresAt = now.Add(a.refreshTTL)
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    a.issuer,
			Audience:  jwt.ClaimStrings{a.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Generation: generation,
		SessionID:  sessionID,
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.refreshSecret)
	return token, expiresAt, err
}

// ValidateAccess validates the access token and returns its claims.
// Revocation is checked before the signature or expiry: a blacklisted token
// fails with ErrTokenRevoked even if it would otherwise verify, and a
// revocation-store failure also fails with ErrTokenRevoked (fail closed).
func (a *TokenAuthority) ValidateAccess(ctx context.Context, tokenString string) (*AccessClaims, error) {
	if err := a.checkRevoked(ctx, tokenString); err != nil {
		return nil, err
	}
	claims := &AccessClaims{}
	if err := a.parse(tokenString, claims, a.accessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// ValidateRefresh validates the refresh token and returns its claims. The
// caller must additionally compare claims.Generation with the user's current
// token generation and treat a mismatch as revocation.
func (a *TokenAuthority) ValidateRefresh(ctx context.Context, tokenString string) (*RefreshClaims, error) {
	if err := a.checkRevoked(ctx, tokenString); err != nil {
		return nil, err
	}
	claims := &RefreshClaims{}
	if err := a.parse(tokenString, claims, a.refreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// Revoke blacklists the token until its own expiry. Tokens that are already
// past expiry are left alone; the expiry check rejects them anyway.
func (a *TokenAuthority) Revoke(ctx context.Context, tokenString string) error {
	ttl := a.remainingLifetime(tokenString)
	if ttl <= 0 {
		return nil
	}
	return a.revoked.Revoke(ctx, TokenDigest(tokenString), ttl)
}

func (a *TokenAuthority) checkRevoked(ctx context.Context, tokenString string) error {
	if a.revoked == nil {
		return nil
	}
	revoked, err := a.revoked.IsRevoked(ctx, TokenDigest(tokenString))
	if err != nil || revoked {
		return ErrTokenRevoked
	}
	return nil
}

func (a *TokenAuthority) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !token.Valid {
		return ErrTokenInvalid
	}
	iss, err := claims.GetIssuer()
	if err != nil || iss != a.issuer {
		return ErrTokenInvalid
	}
	aud, err := claims.GetAudience()
	if err != nil {
		return ErrTokenInvalid
	}
	for _, cand := range aud {
		if cand == a.audience {
			return nil
		}
	}
	return ErrTokenInvalid
}

// remainingLifetime reads exp without verifying the signature; revocation of
// a forged token is harmless, and the real expiry is enforced on validation.
func (a *TokenAuthority) remainingLifetime(tokenString string) time.Duration {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return 0
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return 0
	}
	return exp.Time.Sub(a.now())
}
