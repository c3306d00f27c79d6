package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltBytes        = 16
	keyBytes         = 32
	pbkdf2Iterations = 100_000
)

// HashPassword derives a hex-encoded PBKDF2-SHA256 hash under a fresh random salt.
func HashPassword(password string) (hash, salt string, err error) {
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	salt = hex.EncodeToString(raw)
	return derive(password, salt), salt, nil
}

// CheckPassword reports whether password matches the stored hash and salt.
func CheckPassword(password, hash, salt string) bool {
	got := derive(password, salt)
	return subtle.ConstantTimeCompare([]byte(got), []byte(hash)) == 1
}

func derive(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), pbkdf2Iterations, keyBytes, sha256.New)
	return hex.EncodeToString(key)
}
