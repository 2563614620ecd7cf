package auth

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/pbkdf2"
)

const (
	passwordIterations = 100_000
	passwordKeyLen     = 64
	saltSize           = 32
)

// HashPassword derives a PBKDF2-SHA512 hash under a fresh random salt.
// Both values are base64 encoded.
func HashPassword(password string) (hash, salt string, err error) {
	b := make([]byte, saltSize)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	salt = base64.StdEncoding.EncodeToString(b)
	return derive(password, salt), salt, nil
}

func CheckPassword(password, hash, salt string) bool {
	got := derive(password, salt)
	return subtle.ConstantTimeCompare([]byte(got), []byte(hash)) == 1
}

func derive(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), passwordIterations, passwordKeyLen, sha512.New)
	return base64.StdEncoding.EncodeToString(key)
}
