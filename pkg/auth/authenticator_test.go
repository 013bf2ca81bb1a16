package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testFloor = 40 * time.Millisecond

type memoryCredentialStore struct {
	byIdentifier map[string]*Credential
	err          error
}

func (s *memoryCredentialStore) FindByIdentifier(_ context.Context, identifier string) (*Credential, error) {
	if s.err != nil {
		return nil, s.err
	}
	cred, ok := s.byIdentifier[identifier]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return cred, nil
}

type countingHasher struct {
	BcryptHasher
	mu       sync.Mutex
	compares int
}

func (h *countingHasher) Compare(hash []byte, secret string) error {
	h.mu.Lock()
	h.compares++
	h.mu.Unlock()
	return h.BcryptHasher.Compare(hash, secret)
}

func newTestAuthenticator(t *testing.T, floor time.Duration) (*Authenticator, *memoryCredentialStore) {
	t.Helper()
	hasher := BcryptHasher{Cost: bcrypt.MinCost}
	hash, err := hasher.Hash("correct horse")
	require.NoError(t, err)

	cred := &Credential{ID: "cred-1", Identifiers: []string{"ada@kls.example", "ada"}, SecretHash: hash}
	store := &memoryCredentialStore{byIdentifier: map[string]*Credential{
		"ada@kls.example": cred,
		"ada":             cred,
	}}

	a, err := NewAuthenticator(store, WithHasher(hasher), WithFloor(floor))
	require.NoError(t, err)
	return a, store
}

func TestCheckValidCredential(t *testing.T) {
	a, _ := newTestAuthenticator(t, testFloor)

	res, err := a.Check(context.Background(), "ada", "correct horse")
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.NotNil(t, res.Credential)
	require.Equal(t, "cred-1", res.Credential.ID)
}

func TestCheckResultShapeHidesIdentifierExistence(t *testing.T) {
	a, _ := newTestAuthenticator(t, testFloor)
	ctx := context.Background()

	unknown, err := a.Check(ctx, "nobody@kls.example", "correct horse")
	require.NoError(t, err)
	wrong, err := a.Check(ctx, "ada@kls.example", "wrong")
	require.NoError(t, err)

	require.Equal(t, Result{}, unknown)
	require.Equal(t, unknown, wrong)
}

func TestCheckAlwaysComparesOnce(t *testing.T) {
	hasher := &countingHasher{BcryptHasher: BcryptHasher{Cost: bcrypt.MinCost}}
	hash, err := hasher.Hash("secret")
	require.NoError(t, err)
	store := &memoryCredentialStore{byIdentifier: map[string]*Credential{"known": {ID: "1", SecretHash: hash}}}

	a, err := NewAuthenticator(store, WithHasher(hasher), WithFloor(0))
	require.NoError(t, err)

	_, _ = a.Check(context.Background(), "known", "nope")
	_, _ = a.Check(context.Background(), "unknown", "nope")
	require.Equal(t, 2, hasher.compares)
}

func TestCheckLatencyIsIndistinguishable(t *testing.T) {
	a, _ := newTestAuthenticator(t, testFloor)
	ctx := context.Background()

	const trials = 12
	measure := func(identifier string) []time.Duration {
		out := make([]time.Duration, 0, trials)
		for i := 0; i < trials; i++ {
			start := time.Now()
			_, _ = a.Check(ctx, identifier, "wrong secret")
			out = append(out, time.Since(start))
		}
		return out
	}

	unknown := measure("ghost@kls.example")
	wrong := measure("ada@kls.example")

	for _, d := range append(append([]time.Duration{}, unknown...), wrong...) {
		require.GreaterOrEqual(t, d, testFloor)
	}

	diff := mean(unknown) - mean(wrong)
	if diff < 0 {
		diff = -diff
	}
	require.Less(t, diff, 15*time.Millisecond, "unknown=%v wrong=%v", mean(unknown), mean(wrong))
}

func TestCheckDefaultFloor(t *testing.T) {
	store := &memoryCredentialStore{byIdentifier: map[string]*Credential{}}
	a, err := NewAuthenticator(store, WithHasher(BcryptHasher{Cost: bcrypt.MinCost}))
	require.NoError(t, err)
	require.Equal(t, DefaultFloor, a.Floor())

	start := time.Now()
	res, err := a.Check(context.Background(), "ghost", "x")
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.GreaterOrEqual(t, time.Since(start), DefaultFloor)
}

func TestCheckStoreErrorIsInvalidAndPadded(t *testing.T) {
	a, store := newTestAuthenticator(t, testFloor)
	store.err = errors.New("database is locked")

	start := time.Now()
	res, err := a.Check(context.Background(), "ada", "correct horse")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrCredentialNotFound)
	require.Equal(t, Result{}, res)
	require.GreaterOrEqual(t, time.Since(start), testFloor)
}

func TestCheckStopsWaitingWhenContextDone(t *testing.T) {
	a, _ := newTestAuthenticator(t, 2*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	res, err := a.Check(ctx, "ghost", "x")
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Less(t, time.Since(start), time.Second)
}

func mean(ds []time.Duration) time.Duration {
	var total time.Duration
	for _, d := range ds {
		total += d
	}
	return total / time.Duration(len(ds))
}
