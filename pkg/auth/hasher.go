package auth

import "golang.org/x/crypto/bcrypt"

// Hasher derives and checks secret hashes.
type Hasher interface {
	Hash(secret string) ([]byte, error)
	Compare(hash []byte, secret string) error
}

// BcryptHasher hashes with bcrypt. A zero Cost means bcrypt.DefaultCost.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(secret string) ([]byte, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return bcrypt.GenerateFromPassword([]byte(secret), cost)
}

func (h BcryptHasher) Compare(hash []byte, secret string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(secret))
}
