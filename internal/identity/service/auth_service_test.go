package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"leadflow/api/internal/rbac"
	"leadflow/api/internal/revocation"
	"leadflow/api/internal/security"
	sessiondomain "leadflow/api/internal/session/domain"
	sessionsvc "leadflow/api/internal/session/service"
	userdomain "leadflow/api/internal/user/domain"
)

type memUserRepo struct {
	mu sync.Mutex
	m  map[string]*userdomain.User // keyed by id
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{m: make(map[string]*userdomain.User)}
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.m {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) Create(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.m[u.ID] = &cp
	return nil
}

func (r *memUserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.m[id]; ok {
		t := at
		u.LastLoginAt = &t
		u.UpdatedAt = at
	}
	return nil
}

func (r *memUserRepo) IncrementGeneration(ctx context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.m[id]
	if !ok {
		return 0, errors.New("user not found")
	}
	u.TokenGeneration++
	return u.TokenGeneration, nil
}

type memSessionRepo struct {
	mu sync.Mutex
	m  map[string]*sessiondomain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{m: make(map[string]*sessiondomain.Session)}
}

func (r *memSessionRepo) Create(ctx context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.m[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) GetByID(ctx context.Context, id string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memSessionRepo) Touch(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok && s.IsActive {
		s.LastActivityAt = at
	}
	return nil
}

func (r *memSessionRepo) Deactivate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.m[id]; ok {
		s.IsActive = false
	}
	return nil
}

func (r *memSessionRepo) DeactivateAllForUser(ctx context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.m {
		if s.UserID == userID && s.IsActive {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) ListActive(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*sessiondomain.Session
	for _, s := range r.m {
		if s.UserID == userID && s.IsActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	return out, nil
}

func (r *memSessionRepo) ListActiveCreatedSince(ctx context.Context, userID string, since time.Time) ([]*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*sessiondomain.Session
	for _, s := range r.m {
		if s.UserID == userID && s.IsActive && !s.CreatedAt.Before(since) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memSessionRepo) DeactivateIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.m {
		if s.IsActive && s.LastActivityAt.Before(cutoff) {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

type fixedResolver map[string]string

func (f fixedResolver) Resolve(ip string) string {
	if loc, ok := f[ip]; ok {
		return loc
	}
	return "unknown"
}

type authFixture struct {
	svc      *AuthService
	users    *memUserRepo
	sessions *memSessionRepo
	tokens   *security.TokenAuthority
}

func newAuthFixture(t *testing.T, resolver fixedResolver) *authFixture {
	t.Helper()
	users := newMemUserRepo()
	sessions := newMemSessionRepo()
	tokens := security.NewTokenAuthority(
		[]byte("access-secret"), []byte("refresh-secret"),
		"leadflow-auth", "leadflow-api",
		15*time.Minute, 168*time.Hour,
		revocation.NewMemoryStore(),
	)
	registry := sessionsvc.NewRegistry(sessions, resolver, nil)
	svc := NewAuthService(users, security.NewHasher(4), tokens, registry, nil, nil)
	return &authFixture{svc: svc, users: users, sessions: sessions, tokens: tokens}
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, nil)

	reg, err := f.svc.Register(ctx, " Agent@Example.com ", "hunter2hunter2", "", sessionsvc.RequestContext{IP: "1.1.1.1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.User.Email != "agent@example.com" {
		t.Errorf("email not normalized: %q", reg.User.Email)
	}
	if reg.User.Role != rbac.RoleAgent {
		t.Errorf("default role = %q, want AGENT", reg.User.Role)
	}
	if reg.Tokens.AccessToken == "" || reg.Tokens.RefreshToken == "" {
		t.Fatal("registration should issue both tokens")
	}

	login, err := f.svc.Login(ctx, "agent@example.com", "hunter2hunter2", sessionsvc.RequestContext{IP: "1.1.1.1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.User.LastLoginAt == nil {
		t.Error("lastLoginAt not stamped")
	}

	claims, err := f.tokens.ValidateAccess(ctx, login.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if claims.Subject != login.User.ID || claims.SessionID != login.SessionID {
		t.Errorf("claims %+v not bound to user/session", claims)
	}
	if claims.Role != string(rbac.RoleAgent) {
		t.Errorf("claims role = %q", claims.Role)
	}

	sess, _ := f.sessions.GetByID(ctx, login.SessionID)
	if sess == nil || !sess.IsActive {
		t.Error("login session missing or inactive")
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, nil)
	if _, err := f.svc.Register(ctx, "a@b.com", "hunter2hunter2", rbac.RoleManager, sessionsvc.RequestContext{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := f.svc.Register(ctx, "A@B.COM", "otherpassword", rbac.RoleAgent, sessionsvc.RequestContext{}); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestRegisterWeakPassword(t *testing.T) {
	f := newAuthFixture(t, nil)
	if _, err := f.svc.Register(context.Background(), "a@b.com", "short", "", sessionsvc.RequestContext{}); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("err = %v, want ErrWeakPassword", err)
	}
}

// Unknown email and wrong password must be indistinguishable.
func TestLoginInvalidCredentials(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, nil)
	_, _ = f.svc.Register(ctx, "a@b.com", "hunter2hunter2", "", sessionsvc.RequestContext{})

	_, errUnknown := f.svc.Login(ctx, "nobody@b.com", "hunter2hunter2", sessionsvc.RequestContext{})
	_, errWrongPw := f.svc.Login(ctx, "a@b.com", "wrong-password", sessionsvc.RequestContext{})
	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrongPw, ErrInvalidCredentials) {
		t.Errorf("errors = %v / %v, both should be ErrInvalidCredentials", errUnknown, errWrongPw)
	}
	if errUnknown.Error() != errWrongPw.Error() {
		t.Error("unknown-email and wrong-password errors must be identical")
	}
}

func TestRefreshTokenIssuesNewAccessOnly(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, nil)
	reg, _ := f.svc.Register(ctx, "a@b.com", "hunter2hunter2", "", sessionsvc.RequestContext{})

	access, expiresAt, err := f.svc.RefreshToken(ctx, reg.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if access == "" || !expiresAt.After(time.Now()) {
		t.Fatalf("bad access token result: %q %v", access, expiresAt)
	}
	claims, err := f.tokens.ValidateAccess(ctx, access)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if claims.SessionID != reg.SessionID {
		t.Errorf("refreshed access bound to %q, want %q", claims.SessionID, reg.SessionID)
	}

	// The original refresh token stays valid; it is not rotated.
	if _, _, err := f.svc.RefreshToken(ctx, reg.Tokens.RefreshToken); err != nil {
		t.Errorf("second refresh with same token: %v", err)
	}
}

func TestRefreshTokenRejectsAccessToken(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, nil)
	reg, _ := f.svc.Register(ctx, "a@b.com", "hunter2hunter2", "", sessionsvc.RequestContext{})
	if _, _, err := f.svc.RefreshToken(ctx, reg.Tokens.AccessToken); !errors.Is(err, security.ErrTokenInvalid) {
		t.Errorf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestLogoutRevokesAndInvalidates(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, nil)
	reg, _ := f.svc.Register(ctx, "a@b.com", "hunter2hunter2", "", sessionsvc.RequestContext{})

	if err := f.svc.Logout(ctx, reg.Tokens.AccessToken, "1.1.1.1"); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.tokens.ValidateAccess(ctx, reg.Tokens.AccessToken); !errors.Is(err, security.ErrTokenRevoked) {
		t.Errorf("access after logout: err = %v, want ErrTokenRevoked", err)
	}
	sess, _ := f.sessions.GetByID(ctx, reg.SessionID)
	if sess.IsActive {
		t.Error("session still active after logout")
	}
}

func TestLogoutWithGarbageTokenFails(t *testing.T) {
	f := newAuthFixture(t, nil)
	if err := f.svc.Logout(context.Background(), "not-a-token", ""); !errors.Is(err, security.ErrTokenInvalid) {
		t.Errorf("err = %v, want ErrTokenInvalid", err)
	}
}

// Register, login twice, LogoutAll: every session dies and every previously
// issued refresh token is revoked by the generation bump.
func TestLogoutAll(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t, nil)
	reg, _ := f.svc.Register(ctx, "a@b.com", "hunter2hunter2", "", sessionsvc.RequestContext{})
	login, _ := f.svc.Login(ctx, "a@b.com", "hunter2hunter2", sessionsvc.RequestContext{})

	n, err := f.svc.LogoutAll(ctx, reg.User.ID, "1.1.1.1")
	if err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}
	if n != 2 {
		t.Errorf("invalidated %d sessions, want 2", n)
	}

	for _, refresh := range []string{reg.Tokens.RefreshToken, login.Tokens.RefreshToken} {
		if _, _, err := f.svc.RefreshToken(ctx, refresh); !errors.Is(err, security.ErrTokenRevoked) {
			t.Errorf("refresh after LogoutAll: err = %v, want ErrTokenRevoked", err)
		}
	}
	active, _ := f.sessions.ListActive(ctx, reg.User.ID)
	if len(active) != 0 {
		t.Errorf("%d sessions still active after LogoutAll", len(active))
	}

	// A fresh login works and its refresh token carries the new generation.
	again, err := f.svc.Login(ctx, "a@b.com", "hunter2hunter2", sessionsvc.RequestContext{})
	if err != nil {
		t.Fatalf("Login after LogoutAll: %v", err)
	}
	if _, _, err := f.svc.RefreshToken(ctx, again.Tokens.RefreshToken); err != nil {
		t.Errorf("refresh with post-bump token: %v", err)
	}
}

func TestLoginSuspiciousAdvisory(t *testing.T) {
	ctx := context.Background()
	resolver := fixedResolver{
		"1.1.1.1": "Paris, FR",
		"2.2.2.2": "Tokyo, JP",
		"3.3.3.3": "Lima, PE",
	}
	f := newAuthFixture(t, resolver)
	_, _ = f.svc.Register(ctx, "a@b.com", "hunter2hunter2", "", sessionsvc.RequestContext{IP: "1.1.1.1"})
	second, err := f.svc.Login(ctx, "a@b.com", "hunter2hunter2", sessionsvc.RequestContext{IP: "2.2.2.2"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if second.Suspicious != nil {
		t.Errorf("two locations flagged: %+v", second.Suspicious)
	}

	third, err := f.svc.Login(ctx, "a@b.com", "hunter2hunter2", sessionsvc.RequestContext{IP: "3.3.3.3"})
	if err != nil {
		t.Fatalf("flagged login must still succeed, got %v", err)
	}
	if third.Suspicious == nil || len(third.Suspicious.Locations) != 3 {
		t.Fatalf("third location not flagged: %+v", third.Suspicious)
	}
}
