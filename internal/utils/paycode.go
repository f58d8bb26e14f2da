package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// NewVenueCode returns a fresh pay-at-venue code ("GYM-NNNN") and its
// bcrypt hash. Only the hash is persisted; the plaintext is shown to the
// requester once and presented at the venue.
func NewVenueCode(cost int) (code, hash string, err error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", "", err
	}
	code = fmt.Sprintf("GYM-%04d", n.Int64())
	b, err := bcrypt.GenerateFromPassword([]byte(code), cost)
	if err != nil {
		return "", "", err
	}
	return code, string(b), nil
}

// VerifyVenueCode safely compares a bcrypt hash with the presented code.
func VerifyVenueCode(hash, code string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) == nil
}
