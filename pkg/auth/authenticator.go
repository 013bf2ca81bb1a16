// Package auth verifies submitted credentials without revealing whether the
// identifier exists.
//
// Every Check performs exactly one hash comparison (against a dummy hash when
// the identifier is unknown) and then waits until a fixed floor has elapsed.
// This evens out response latency in practice; it is not a constant-time
// guarantee, and a floor shorter than the hash cost gives no padding at all.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultFloor is the minimum duration of a Check call.
const DefaultFloor = 200 * time.Millisecond

// ErrCredentialNotFound is returned by a CredentialStore when no credential
// owns the identifier. It never leaves this package through Check.
var ErrCredentialNotFound = errors.New("credential not found")

// Credential is the external record the authenticator resolves identifiers to.
type Credential struct {
	ID          string
	Identifiers []string
	SecretHash  []byte
}

// CredentialStore looks credentials up by any of their identifiers.
type CredentialStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*Credential, error)
}

// Result is identical for an unknown identifier and a wrong secret: Valid is
// false and Credential is nil.
type Result struct {
	Valid      bool
	Credential *Credential
}

type Authenticator struct {
	store     CredentialStore
	hasher    Hasher
	floor     time.Duration
	dummyHash []byte
	logger    zerolog.Logger
}

type Option func(*Authenticator)

func WithHasher(h Hasher) Option {
	return func(a *Authenticator) { a.hasher = h }
}

func WithFloor(d time.Duration) Option {
	return func(a *Authenticator) { a.floor = d }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(a *Authenticator) { a.logger = logger }
}

// NewAuthenticator builds an authenticator and derives its dummy hash from
// random bytes using the same hasher as stored credentials.
func NewAuthenticator(store CredentialStore, opts ...Option) (*Authenticator, error) {
	a := &Authenticator{
		store:  store,
		hasher: BcryptHasher{},
		floor:  DefaultFloor,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate dummy secret: %w", err)
	}
	dummy, err := a.hasher.Hash(base64.RawURLEncoding.EncodeToString(seed))
	if err != nil {
		return nil, fmt.Errorf("hash dummy secret: %w", err)
	}
	a.dummyHash = dummy
	return a, nil
}

func (a *Authenticator) Floor() time.Duration { return a.floor }

// Check resolves identifier and compares secret. The returned error is only
// set for store failures other than a miss; the Result is invalid in that case.
func (a *Authenticator) Check(ctx context.Context, identifier, secret string) (Result, error) {
	start := time.Now()

	hash := a.dummyHash
	found := false
	var lookupErr error

	cred, err := a.store.FindByIdentifier(ctx, identifier)
	switch {
	case err == nil && cred != nil:
		hash = cred.SecretHash
		found = true
	case err == nil, errors.Is(err, ErrCredentialNotFound):
	default:
		lookupErr = fmt.Errorf("credential lookup: %w", err)
		a.logger.Error().Err(err).Msg("credential store lookup failed")
	}

	matched := a.hasher.Compare(hash, secret) == nil
	valid := found && matched

	a.waitFloor(ctx, start)

	if !valid {
		return Result{}, lookupErr
	}
	return Result{Valid: true, Credential: cred}, nil
}

func (a *Authenticator) waitFloor(ctx context.Context, start time.Time) {
	remaining := a.floor - time.Since(start)
	if remaining <= 0 {
		return
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
