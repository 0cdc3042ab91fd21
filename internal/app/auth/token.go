package auth

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

// DefaultSessionTTL is how long a session token stays valid.
const DefaultSessionTTL = 7 * 24 * time.Hour

const signingKeyInfo = "monitoreo session signing key v1"

// Claims is the CBOR payload of a session token. Integer keys keep the
// encoding compact.
type Claims struct {
	Subject   string `cbor:"1,keyasint"`
	Email     string `cbor:"2,keyasint"`
	ID        string `cbor:"3,keyasint"`
	IssuedAt  int64  `cbor:"4,keyasint"`
	ExpiresAt int64  `cbor:"5,keyasint"`
}

// Token is a minted session credential.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

var (
	claimsEnc cbor.EncMode
	claimsDec cbor.DecMode
)

func init() {
	var err error
	claimsEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("auth: CBOR encoder initialization failed: " + err.Error())
	}
	claimsDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("auth: CBOR decoder initialization failed: " + err.Error())
	}
}

// Sessions mints and verifies self-contained session tokens. The wire form is
// base64url(cbor(claims) || ed25519 signature); there is no server-side
// session table, so a token stays valid until it expires.
type Sessions struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	ttl     time.Duration
	clock   ports.Clock
}

// NewSessions derives the signing key from secret with HKDF-SHA256.
func NewSessions(secret []byte, ttl time.Duration, clock ports.Clock) (*Sessions, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("auth: session secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(signingKeyInfo)), seed); err != nil {
		return nil, fmt.Errorf("auth: deriving signing key: %w", err)
	}
	private := ed25519.NewKeyFromSeed(seed)

	return &Sessions{
		private: private,
		public:  private.Public().(ed25519.PublicKey),
		ttl:     ttl,
		clock:   clock,
	}, nil
}

func (s *Sessions) TTL() time.Duration { return s.ttl }

func (s *Sessions) Mint(id domain.Identity) (Token, error) {
	now := s.clock.Now()
	expires := now.Add(s.ttl)
	claims := Claims{
		Subject:   id.Subject,
		Email:     id.Email,
		ID:        uuid.NewString(),
		IssuedAt:  now.Unix(),
		ExpiresAt: expires.Unix(),
	}

	payload, err := claimsEnc.Marshal(&claims)
	if err != nil {
		return Token{}, fmt.Errorf("auth: encoding claims: %w", err)
	}
	signature := ed25519.Sign(s.private, payload)

	raw := make([]byte, 0, len(payload)+ed25519.SignatureSize)
	raw = append(raw, payload...)
	raw = append(raw, signature...)

	return Token{
		Value:     base64.RawURLEncoding.EncodeToString(raw),
		ExpiresAt: time.Unix(claims.ExpiresAt, 0).UTC(),
	}, nil
}

func (s *Sessions) Verify(token string) (domain.Identity, error) {
	return s.VerifyAt(token, s.clock.Now())
}

// VerifyAt is Verify with an explicit instant for the expiry check.
func (s *Sessions) VerifyAt(token string, now time.Time) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, ErrMissingToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return domain.Identity{}, ErrInvalidToken
	}
	if len(raw) <= ed25519.SignatureSize {
		return domain.Identity{}, ErrInvalidToken
	}

	split := len(raw) - ed25519.SignatureSize
	payload, signature := raw[:split], raw[split:]
	if !ed25519.Verify(s.public, payload, signature) {
		return domain.Identity{}, ErrInvalidToken
	}

	var claims Claims
	if err := claimsDec.Unmarshal(payload, &claims); err != nil {
		return domain.Identity{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return domain.Identity{}, ErrInvalidToken
	}
	if now.Unix() >= claims.ExpiresAt {
		return domain.Identity{}, ErrExpiredToken
	}

	return domain.Identity{Subject: claims.Subject, Email: claims.Email}, nil
}

// BearerToken extracts the credential from an Authorization header value.
// Anything other than "Bearer <token>" yields "".
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// IsUnauthenticated reports whether err is any session failure.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated)
}
