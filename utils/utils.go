package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const BcryptCost = 12

const (
	tokenCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// No 0/O or 1/I, so codes survive being read aloud.
	inviteCharset    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	InviteCodeLength = 6
)

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// GenerateToken returns a random alphanumeric string of the given length.
func GenerateToken(length int) (string, error) {
	return randomString(tokenCharset, length)
}

// GenerateInviteCode returns a short upper-case code players type to join.
func GenerateInviteCode() (string, error) {
	return randomString(inviteCharset, InviteCodeLength)
}

func randomString(charset string, length int) (string, error) {
	b := make([]byte, length)
	max := big.NewInt(int64(len(charset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		b[i] = charset[n.Int64()]
	}
	return string(b), nil
}
