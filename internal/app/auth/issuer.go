package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/domain"
	"github.com/marcelofrutosn/sistema-de-monitoreo/internal/ports"
)

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

// Issuer registers accounts and exchanges credentials for session tokens.
type Issuer struct {
	accounts ports.AccountStore
	sessions *Sessions
	cost     int
	obs      ports.Observability

	// dummyHash is compared against when the email is unknown so a miss
	// costs the same as a wrong password.
	dummyHash []byte
}

func NewIssuer(accounts ports.AccountStore, sessions *Sessions, cost int, obs ports.Observability) (*Issuer, error) {
	if accounts == nil {
		return nil, fmt.Errorf("auth: account store is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("auth: sessions are required")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("auth: bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	if obs == nil {
		obs = ports.NopObservability{}
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("monitoreo-unknown-account"), cost)
	if err != nil {
		return nil, fmt.Errorf("auth: preparing dummy hash: %w", err)
	}

	return &Issuer{
		accounts:  accounts,
		sessions:  sessions,
		cost:      cost,
		obs:       obs,
		dummyHash: dummy,
	}, nil
}

// Register creates an account. The password is only ever stored hashed.
func (i *Issuer) Register(ctx context.Context, email, password string) (domain.Account, error) {
	email = domain.NormalizeEmail(email)
	if err := checkCredentials(email, password); err != nil {
		return domain.Account{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), i.cost)
	if err != nil {
		return domain.Account{}, fmt.Errorf("auth: hashing password: %w", err)
	}

	acc, err := i.accounts.CreateAccount(ctx, email, hash)
	switch {
	case errors.Is(err, ports.ErrDuplicateEmail):
		return domain.Account{}, ErrDuplicateEmail
	case err != nil:
		i.obs.LogError("account creation failed", err, ports.Field{Key: "email", Value: email})
		return domain.Account{}, err
	}

	i.obs.LogInfo("account registered", ports.Field{Key: "account_id", Value: acc.ID})
	return acc, nil
}

// Login verifies credentials and mints a session token. Unknown email and
// wrong password are indistinguishable to the caller.
func (i *Issuer) Login(ctx context.Context, email, password string) (Token, error) {
	email = domain.NormalizeEmail(email)
	if err := checkCredentials(email, password); err != nil {
		return Token{}, err
	}

	acc, err := i.accounts.FindAccountByEmail(ctx, email)
	switch {
	case errors.Is(err, ports.ErrAccountNotFound):
		_ = bcrypt.CompareHashAndPassword(i.dummyHash, []byte(password))
		i.obs.IncCounter(ports.MetricAuthFailures, 1)
		return Token{}, ErrInvalidCredentials
	case err != nil:
		i.obs.LogError("account lookup failed", err)
		return Token{}, err
	}

	if err := bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(password)); err != nil {
		i.obs.IncCounter(ports.MetricAuthFailures, 1)
		return Token{}, ErrInvalidCredentials
	}

	return i.sessions.Mint(domain.Identity{
		Subject: strconv.FormatInt(acc.ID, 10),
		Email:   acc.Email,
	})
}

func checkCredentials(email, password string) error {
	if email == "" || password == "" {
		return ErrMissingCredentials
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: password longer than %d bytes", ErrMissingCredentials, maxPasswordBytes)
	}
	return nil
}
