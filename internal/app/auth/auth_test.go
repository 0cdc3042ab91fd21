package auth

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type memAccounts struct {
	mu     sync.Mutex
	nextID int64
	byMail map[string]domain.Account
	finds  int
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byMail: map[string]domain.Account{}}
}

func (m *memAccounts) CreateAccount(_ context.Context, email string, hash []byte) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byMail[email]; ok {
		return domain.Account{}, ports.ErrDuplicateEmail
	}
	m.nextID++
	acc := domain.Account{ID: m.nextID, Email: email, PasswordHash: hash, CreatedAt: time.Now()}
	m.byMail[email] = acc
	return acc, nil
}

func (m *memAccounts) FindAccountByEmail(_ context.Context, email string) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds++
	acc, ok := m.byMail[email]
	if !ok {
		return domain.Account{}, ports.ErrAccountNotFound
	}
	return acc, nil
}

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newSessions(t *testing.T) *Sessions {
	t.Helper()
	s, err := NewSessions([]byte("test-session-secret"), DefaultSessionTTL, fixedClock{epoch})
	require.NoError(t, err)
	return s
}

func newIssuer(t *testing.T) (*Issuer, *memAccounts, *Sessions) {
	t.Helper()
	accounts := newMemAccounts()
	sessions := newSessions(t)
	issuer, err := NewIssuer(accounts, sessions, bcrypt.MinCost, nil)
	require.NoError(t, err)
	return issuer, accounts, sessions
}

func TestDeviceKeyVerify(t *testing.T) {
	key := NewDeviceKey("s3cret")
	assert.True(t, key.Verify("s3cret"))
	assert.False(t, key.Verify("s3cret "))
	assert.False(t, key.Verify("other"))
	assert.False(t, key.Verify(""))
}

func TestDeviceKeyUnsetRejectsEverything(t *testing.T) {
	key := NewDeviceKey("")
	assert.False(t, key.Verify(""))
	assert.False(t, key.Verify("anything"))
}

func TestSessionsMintVerifyRoundTrip(t *testing.T) {
	s := newSessions(t)
	tok, err := s.Mint(domain.Identity{Subject: "7", Email: "a@b.c"})
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(7*24*time.Hour), tok.ExpiresAt)

	id, err := s.Verify(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, domain.Identity{Subject: "7", Email: "a@b.c"}, id)
}

func TestSessionsExpiry(t *testing.T) {
	s := newSessions(t)
	tok, err := s.Mint(domain.Identity{Subject: "7", Email: "a@b.c"})
	require.NoError(t, err)

	_, err = s.VerifyAt(tok.Value, epoch.Add(7*24*time.Hour-time.Second))
	require.NoError(t, err)

	_, err = s.VerifyAt(tok.Value, epoch.Add(7*24*time.Hour))
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSessionsRejectsTampering(t *testing.T) {
	s := newSessions(t)
	tok, err := s.Mint(domain.Identity{Subject: "7", Email: "a@b.c"})
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(tok.Value)
	require.NoError(t, err)
	raw[0] ^= 0x01
	_, err = s.Verify(base64.RawURLEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrInvalidToken)

	cases := map[string]string{
		"garbage":   "not a token!",
		"short":     base64.RawURLEncoding.EncodeToString([]byte("abc")),
		"truncated": tok.Value[:len(tok.Value)-4],
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Verify(v)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err = s.Verify("")
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestSessionsDifferentSecretRejects(t *testing.T) {
	s := newSessions(t)
	tok, err := s.Mint(domain.Identity{Subject: "7"})
	require.NoError(t, err)

	other, err := NewSessions([]byte("another-secret"), 0, fixedClock{epoch})
	require.NoError(t, err)
	_, err = other.Verify(tok.Value)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewSessionsRequiresSecret(t *testing.T) {
	_, err := NewSessions(nil, time.Hour, nil)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken("abc"))
	assert.Equal(t, "", BearerToken(""))
}

func TestRegisterLoginVerify(t *testing.T) {
	issuer, accounts, sessions := newIssuer(t)
	ctx := context.Background()

	acc, err := issuer.Register(ctx, " Ana@Example.com ", "pw-123")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", acc.Email)
	assert.NotEqual(t, "pw-123", string(accounts.byMail["ana@example.com"].PasswordHash))

	tok, err := issuer.Login(ctx, "ana@example.com", "pw-123")
	require.NoError(t, err)

	id, err := sessions.Verify(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, "1", id.Subject)
	assert.Equal(t, "ana@example.com", id.Email)

	_, err = sessions.VerifyAt(tok.Value, epoch.Add(8*24*time.Hour))
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	issuer, _, _ := newIssuer(t)
	ctx := context.Background()

	_, err := issuer.Register(ctx, "ana@example.com", "pw")
	require.NoError(t, err)
	_, err = issuer.Register(ctx, "ANA@example.com", "other")
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestRegisterRejectsMalformed(t *testing.T) {
	issuer, _, _ := newIssuer(t)
	ctx := context.Background()

	_, err := issuer.Register(ctx, "", "pw")
	assert.ErrorIs(t, err, ErrMissingCredentials)
	_, err = issuer.Register(ctx, "a@b.c", "")
	assert.ErrorIs(t, err, ErrMissingCredentials)
	_, err = issuer.Register(ctx, "a@b.c", strings.Repeat("x", 73))
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	issuer, accounts, _ := newIssuer(t)
	ctx := context.Background()

	_, err := issuer.Register(ctx, "ana@example.com", "pw-123")
	require.NoError(t, err)

	_, wrongPassword := issuer.Login(ctx, "ana@example.com", "nope")
	_, unknownEmail := issuer.Login(ctx, "bob@example.com", "pw-123")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.Equal(t, 2, accounts.finds)
}

func TestNewIssuerRejectsBadCost(t *testing.T) {
	_, err := NewIssuer(newMemAccounts(), newSessions(t), 99, nil)
	assert.Error(t, err)
}

func TestExemptAllowList(t *testing.T) {
	cases := []struct {
		method, path string
		exempt       bool
	}{
		{"POST", "/api/auth/login", true},
		{"POST", "/api/auth/register", true},
		{"POST", "/api/mediciones", true},
		{"POST", "/api/mediciones/", true},
		{"GET", "/api/mediciones", false},
		{"GET", "/api/auth/login", false},
		{"PUT", "/api/mediciones", false},
		{"DELETE", "/api/mediciones", false},
		{"POST", "/api/medicionesx", false},
		{"POST", "/api/auth/loginx", false},
		{"POST", "/api/auth", false},
		{"POST", "/api/other", false},
		{"GET", "/api/other", false},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			assert.Equal(t, tc.exempt, Exempt(tc.method, tc.path))
		})
	}
}

func TestSessionExemptRoutesIsACopy(t *testing.T) {
	routes := SessionExemptRoutes()
	require.Len(t, routes, 3)
	routes[0].Method = "GET"
	assert.True(t, Exempt("POST", "/api/auth/login"))
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), domain.Identity{Subject: "1"})
	id, ok := IdentityFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "1", id.Subject)
}
