package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"leadflow/api/internal/crm/domain"
	"leadflow/api/internal/crm/hubspot"
)

type memTokenRepo struct {
	mu      sync.Mutex
	m       map[string]*domain.IntegrationToken
	getErr  error
	upserts int
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{m: make(map[string]*domain.IntegrationToken)}
}

func (r *memTokenRepo) Upsert(ctx context.Context, t *domain.IntegrationToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.m[t.UserID] = &cp
	r.upserts++
	return nil
}

func (r *memTokenRepo) GetByUserID(ctx context.Context, userID string) (*domain.IntegrationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	t, ok := r.m[userID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *memTokenRepo) DeleteByUserID(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, userID)
	return nil
}

type fakePartner struct {
	refreshCalls  atomic.Int64
	refreshDelay  time.Duration
	refreshGrant  *hubspot.Grant
	refreshErr    error
	exchangeGrant *hubspot.Grant
	exchangeErr   error
}

func (p *fakePartner) AuthorizationURL(state string) string {
	return "https://partner.example/authorize?state=" + url.QueryEscape(state)
}

func (p *fakePartner) ExchangeCode(ctx context.Context, code string) (*hubspot.Grant, error) {
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return p.exchangeGrant, nil
}

func (p *fakePartner) Refresh(ctx context.Context, refreshToken string) (*hubspot.Grant, error) {
	p.refreshCalls.Add(1)
	if p.refreshDelay > 0 {
		time.Sleep(p.refreshDelay)
	}
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	return p.refreshGrant, nil
}

func newTestBroker(repo *memTokenRepo, partner PartnerClient) *Broker {
	return NewBroker(repo, partner, "state-secret", 10*time.Minute, 5*time.Minute, "contacts content timeline", nil)
}

func seedToken(repo *memTokenRepo, userID, access, refresh string, expiresAt time.Time) {
	_ = repo.Upsert(context.Background(), &domain.IntegrationToken{
		ID: "t1", UserID: userID, AccessToken: access, RefreshToken: refresh,
		ExpiresAt: expiresAt, Scopes: "contacts", UpdatedAt: time.Now(),
	})
	repo.mu.Lock()
	repo.upserts = 0
	repo.mu.Unlock()
}

func TestGetValidAccessTokenUsesCachedToken(t *testing.T) {
	repo := newMemTokenRepo()
	partner := &fakePartner{}
	b := newTestBroker(repo, partner)
	seedToken(repo, "u1", "cached", "r1", time.Now().Add(time.Hour))

	got, err := b.GetValidAccessToken(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetValidAccessToken: %v", err)
	}
	if got != "cached" {
		t.Errorf("token = %q, want cached", got)
	}
	if n := partner.refreshCalls.Load(); n != 0 {
		t.Errorf("partner called %d times for a fresh token, want 0", n)
	}
}

func TestGetValidAccessTokenRefreshesInsideWindow(t *testing.T) {
	repo := newMemTokenRepo()
	partner := &fakePartner{refreshGrant: &hubspot.Grant{AccessToken: "new-access", RefreshToken: "new-refresh", ExpiresIn: 21600}}
	b := newTestBroker(repo, partner)
	// Expires in 2 minutes, inside the 5 minute refresh window.
	seedToken(repo, "u1", "stale", "r1", time.Now().Add(2*time.Minute))

	got, err := b.GetValidAccessToken(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetValidAccessToken: %v", err)
	}
	if got != "new-access" {
		t.Errorf("token = %q, want new-access", got)
	}
	stored, _ := repo.GetByUserID(context.Background(), "u1")
	if stored.RefreshToken != "new-refresh" {
		t.Errorf("stored refresh = %q, want new-refresh", stored.RefreshToken)
	}
	if !stored.ExpiresAt.After(time.Now().Add(5 * time.Hour)) {
		t.Errorf("stored expiry %v not pushed forward", stored.ExpiresAt)
	}
}

func TestGetValidAccessTokenRetainsOmittedRefreshToken(t *testing.T) {
	repo := newMemTokenRepo()
	partner := &fakePartner{refreshGrant: &hubspot.Grant{AccessToken: "new-access", ExpiresIn: 21600}}
	b := newTestBroker(repo, partner)
	seedToken(repo, "u1", "stale", "keep-me", time.Now().Add(time.Minute))

	if _, err := b.GetValidAccessToken(context.Background(), "u1"); err != nil {
		t.Fatalf("GetValidAccessToken: %v", err)
	}
	stored, _ := repo.GetByUserID(context.Background(), "u1")
	if stored.RefreshToken != "keep-me" {
		t.Errorf("stored refresh = %q, want keep-me", stored.RefreshToken)
	}
}

// Concurrent callers with a stale token must share one partner refresh.
func TestGetValidAccessTokenDeduplicatesRefreshes(t *testing.T) {
	repo := newMemTokenRepo()
	partner := &fakePartner{
		refreshDelay: 50 * time.Millisecond,
		refreshGrant: &hubspot.Grant{AccessToken: "new-access", RefreshToken: "r2", ExpiresIn: 21600},
	}
	b := newTestBroker(repo, partner)
	seedToken(repo, "u1", "stale", "r1", time.Now().Add(time.Minute))

	const callers = 10
	var wg sync.WaitGroup
	results := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n], errs[n] = b.GetValidAccessToken(context.Background(), "u1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] != "new-access" {
			t.Errorf("caller %d token = %q, want new-access", i, results[i])
		}
	}
	if n := partner.refreshCalls.Load(); n != 1 {
		t.Errorf("partner refreshed %d times, want 1", n)
	}
}

func TestGetValidAccessTokenNotConnected(t *testing.T) {
	b := newTestBroker(newMemTokenRepo(), &fakePartner{})
	if _, err := b.GetValidAccessToken(context.Background(), "nobody"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestGetValidAccessTokenRefreshFailure(t *testing.T) {
	repo := newMemTokenRepo()
	partner := &fakePartner{refreshErr: errors.New("401 bad token")}
	b := newTestBroker(repo, partner)
	seedToken(repo, "u1", "stale", "r1", time.Now().Add(time.Minute))

	if _, err := b.GetValidAccessToken(context.Background(), "u1"); !errors.Is(err, ErrExchangeFailed) {
		t.Errorf("err = %v, want ErrExchangeFailed", err)
	}
	if repo.upserts != 0 {
		t.Error("failed refresh must not overwrite the stored token")
	}
}

func TestGetValidAccessTokenTimeout(t *testing.T) {
	repo := newMemTokenRepo()
	partner := &fakePartner{refreshErr: context.DeadlineExceeded}
	b := newTestBroker(repo, partner)
	seedToken(repo, "u1", "stale", "r1", time.Now().Add(time.Minute))

	if _, err := b.GetValidAccessToken(context.Background(), "u1"); !errors.Is(err, ErrNetworkTimeout) {
		t.Errorf("err = %v, want ErrNetworkTimeout", err)
	}
}

func TestBuildAuthorizationURLCarriesSignedState(t *testing.T) {
	b := newTestBroker(newMemTokenRepo(), &fakePartner{})
	raw, err := b.BuildAuthorizationURL("u1")
	if err != nil {
		t.Fatalf("BuildAuthorizationURL: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	state := u.Query().Get("state")
	if state == "" {
		t.Fatal("authorization URL missing state")
	}
	userID, err := b.state.Decode(state)
	if err != nil || userID != "u1" {
		t.Errorf("Decode(state) = %q, %v; want u1", userID, err)
	}
}

func TestHandleCallbackStoresGrant(t *testing.T) {
	repo := newMemTokenRepo()
	partner := &fakePartner{exchangeGrant: &hubspot.Grant{AccessToken: "a1", RefreshToken: "r1", ExpiresIn: 21600}}
	b := newTestBroker(repo, partner)

	state, _ := b.state.Encode("u1")
	userID, err := b.HandleCallback(context.Background(), state, "code-123")
	if err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}
	if userID != "u1" {
		t.Errorf("userID = %q, want u1", userID)
	}
	stored, _ := repo.GetByUserID(context.Background(), "u1")
	if stored == nil || stored.AccessToken != "a1" || stored.RefreshToken != "r1" {
		t.Errorf("stored token = %+v", stored)
	}
	if stored.Scopes != "contacts content timeline" {
		t.Errorf("stored scopes = %q", stored.Scopes)
	}
}

func TestHandleCallbackRejectsTamperedState(t *testing.T) {
	repo := newMemTokenRepo()
	b := newTestBroker(repo, &fakePartner{exchangeGrant: &hubspot.Grant{AccessToken: "a1", ExpiresIn: 60}})

	state, _ := b.state.Encode("u1")
	for _, bad := range []string{
		"",
		"no-dot-here",
		state + "x",
		strings.Replace(state, ".", "x.", 1),
	} {
		if _, err := b.HandleCallback(context.Background(), bad, "code"); !errors.Is(err, ErrInvalidState) {
			t.Errorf("state %q: err = %v, want ErrInvalidState", bad, err)
		}
	}
	if len(repo.m) != 0 {
		t.Error("tampered state must not store a token")
	}
}

func TestHandleCallbackRejectsExpiredState(t *testing.T) {
	b := newTestBroker(newMemTokenRepo(), &fakePartner{})
	b.state.now = func() time.Time { return time.Now().Add(-time.Hour) }
	state, _ := b.state.Encode("u1")
	b.state.now = time.Now

	if _, err := b.HandleCallback(context.Background(), state, "code"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestIsConnected(t *testing.T) {
	repo := newMemTokenRepo()
	b := newTestBroker(repo, &fakePartner{})
	if b.IsConnected(context.Background(), "u1") {
		t.Error("u1 should not be connected")
	}
	seedToken(repo, "u1", "a1", "r1", time.Now().Add(time.Hour))
	if !b.IsConnected(context.Background(), "u1") {
		t.Error("u1 should be connected")
	}

	repo.getErr = errors.New("db down")
	if b.IsConnected(context.Background(), "u1") {
		t.Error("lookup failure should degrade to not connected")
	}
}

func TestDisconnect(t *testing.T) {
	repo := newMemTokenRepo()
	b := newTestBroker(repo, &fakePartner{})
	seedToken(repo, "u1", "a1", "r1", time.Now().Add(time.Hour))

	if err := b.Disconnect(context.Background(), "u1"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if b.IsConnected(context.Background(), "u1") {
		t.Error("u1 still connected after Disconnect")
	}
	if err := b.Disconnect(context.Background(), "u1"); err != nil {
		t.Errorf("second Disconnect: %v", err)
	}
}

// End to end against a fake partner token endpoint over HTTP: the real client
// sends the form-encoded grant and the broker stores what comes back.
func TestHandleCallbackAgainstHTTPPartner(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"http-access","refresh_token":"http-refresh","expires_in":21600}`))
	}))
	defer srv.Close()

	client := hubspot.NewClient(hubspot.Config{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RedirectURI:  "http://localhost:3000/api/hubspot/callback",
		Scopes:       "contacts content timeline",
		AuthURL:      srv.URL + "/authorize",
		TokenURL:     srv.URL + "/token",
		Timeout:      2 * time.Second,
	})
	repo := newMemTokenRepo()
	b := newTestBroker(repo, client)

	state, _ := b.state.Encode("u1")
	if _, err := b.HandleCallback(context.Background(), state, "code-xyz"); err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}

	if gotForm.Get("grant_type") != "authorization_code" {
		t.Errorf("grant_type = %q", gotForm.Get("grant_type"))
	}
	if gotForm.Get("code") != "code-xyz" || gotForm.Get("client_id") != "cid" || gotForm.Get("client_secret") != "csecret" {
		t.Errorf("unexpected form: %v", gotForm)
	}
	stored, _ := repo.GetByUserID(context.Background(), "u1")
	if stored == nil || stored.AccessToken != "http-access" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestHTTPPartnerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := hubspot.NewClient(hubspot.Config{TokenURL: srv.URL})
	b := newTestBroker(newMemTokenRepo(), client)
	state, _ := b.state.Encode("u1")
	if _, err := b.HandleCallback(context.Background(), state, "bad"); !errors.Is(err, ErrExchangeFailed) {
		t.Errorf("err = %v, want ErrExchangeFailed", err)
	}
}
