// Package service brokers partner CRM tokens: it runs the OAuth dance, stores
// the resulting token pair, and hands out access tokens, refreshing them ahead
// of expiry. Callers never see refresh tokens.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"leadflow/api/internal/crm/domain"
	"leadflow/api/internal/crm/hubspot"
	"leadflow/api/internal/crm/repository"
)

var (
	// ErrNotConnected means the user has no stored CRM token.
	ErrNotConnected = errors.New("crm not connected")
	// ErrExchangeFailed means the partner rejected a code exchange or refresh.
	ErrExchangeFailed = errors.New("crm token exchange failed")
	// ErrNetworkTimeout means a partner call timed out before completing.
	ErrNetworkTimeout = errors.New("crm request timed out")
)

// PartnerClient is the OAuth surface of the partner CRM.
type PartnerClient interface {
	AuthorizationURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*hubspot.Grant, error)
	Refresh(ctx context.Context, refreshToken string) (*hubspot.Grant, error)
}

// Broker owns the CRM connection lifecycle for every user.
type Broker struct {
	tokens  repository.Repository
	partner PartnerClient
	state   *stateCodec
	scopes  string
	// refreshWindow is how long before expiry a token is treated as stale.
	refreshWindow time.Duration
	logger        *zap.Logger
	now           func() time.Time

	// refreshing deduplicates concurrent refreshes per user: one partner call
	// runs, every waiter reuses its result.
	refreshing singleflight.Group
}

// NewBroker returns a Broker over the given store and partner client. The
// stateSecret authenticates the OAuth state parameter; stateTTL bounds how
// long an issued state stays acceptable.
func NewBroker(tokens repository.Repository, partner PartnerClient, stateSecret string,
	stateTTL, refreshWindow time.Duration, scopes string, logger *zap.Logger) *Broker {
	if refreshWindow <= 0 {
		refreshWindow = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		tokens:        tokens,
		partner:       partner,
		state:         newStateCodec(stateSecret, stateTTL),
		scopes:        scopes,
		refreshWindow: refreshWindow,
		logger:        logger,
		now:           time.Now,
	}
}

// BuildAuthorizationURL returns the partner authorization URL the user's
// browser should be sent to, with a signed state bound to the user.
func (b *Broker) BuildAuthorizationURL(userID string) (string, error) {
	state, err := b.state.Encode(userID)
	if err != nil {
		return "", fmt.Errorf("encode oauth state: %w", err)
	}
	return b.partner.AuthorizationURL(state), nil
}

// HandleCallback verifies the state, exchanges the code, and stores the token
// pair. It returns the user the flow belongs to.
func (b *Broker) HandleCallback(ctx context.Context, state, code string) (string, error) {
	userID, err := b.state.Decode(state)
	if err != nil {
		return "", err
	}
	grant, err := b.partner.ExchangeCode(ctx, code)
	if err != nil {
		b.logger.Warn("crm code exchange failed", zap.String("user_id", userID), zap.Error(err))
		if hubspot.IsTimeout(err) {
			return "", ErrNetworkTimeout
		}
		return "", ErrExchangeFailed
	}
	if err := b.store(ctx, userID, grant, ""); err != nil {
		return "", err
	}
	b.logger.Info("crm connected", zap.String("user_id", userID))
	return userID, nil
}

// GetValidAccessToken returns an access token for the user, refreshing it
// first when it expires within the refresh window. Concurrent callers for the
// same user share a single refresh.
func (b *Broker) GetValidAccessToken(ctx context.Context, userID string) (string, error) {
	v, err, _ := b.refreshing.Do(userID, func() (any, error) {
		return b.validAccessToken(ctx, userID)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (b *Broker) validAccessToken(ctx context.Context, userID string) (string, error) {
	tok, err := b.tokens.GetByUserID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load crm token: %w", err)
	}
	if tok == nil {
		return "", ErrNotConnected
	}
	if !tok.ExpiresWithin(b.now(), b.refreshWindow) {
		return tok.AccessToken, nil
	}

	grant, err := b.partner.Refresh(ctx, tok.RefreshToken)
	if err != nil {
		b.logger.Warn("crm token refresh failed", zap.String("user_id", userID), zap.Error(err))
		if hubspot.IsTimeout(err) {
			return "", ErrNetworkTimeout
		}
		return "", ErrExchangeFailed
	}
	if err := b.store(ctx, userID, grant, tok.RefreshToken); err != nil {
		return "", err
	}
	return grant.AccessToken, nil
}

// IsConnected reports whether the user has a stored CRM token. It never
// returns an error: a lookup failure degrades to "not connected".
func (b *Broker) IsConnected(ctx context.Context, userID string) bool {
	tok, err := b.tokens.GetByUserID(ctx, userID)
	if err != nil {
		b.logger.Warn("crm connection lookup failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return tok != nil
}

// Disconnect removes the user's stored token. Disconnecting a user who never
// connected is a no-op.
func (b *Broker) Disconnect(ctx context.Context, userID string) error {
	if err := b.tokens.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("delete crm token: %w", err)
	}
	b.logger.Info("crm disconnected", zap.String("user_id", userID))
	return nil
}

// store persists a grant. When the partner omits the refresh token on a
// refresh grant, the previous one is retained; it is still valid.
func (b *Broker) store(ctx context.Context, userID string, grant *hubspot.Grant, priorRefresh string) error {
	refresh := grant.RefreshToken
	if refresh == "" {
		refresh = priorRefresh
	}
	now := b.now().UTC()
	t := &domain.IntegrationToken{
		ID:           uuid.New().String(),
		UserID:       userID,
		AccessToken:  grant.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(time.Duration(grant.ExpiresIn) * time.Second),
		Scopes:       b.scopes,
		UpdatedAt:    now,
	}
	if err := b.tokens.Upsert(ctx, t); err != nil {
		return fmt.Errorf("store crm token: %w", err)
	}
	return nil
}
