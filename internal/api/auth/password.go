package auth

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/FACorreiaa/go-account-service/internal/api"
)

// bcrypt output always starts with one of these version prefixes.
var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// IsHashed reports whether value is already a well-formed bcrypt hash.
func IsHashed(value string) bool {
	for _, prefix := range bcryptPrefixes {
		if strings.HasPrefix(value, prefix) {
			// bcrypt.Cost parses the full modular crypt format, so a matching
			// prefix with a broken remainder is still treated as plaintext.
			if _, err := bcrypt.Cost([]byte(value)); err == nil {
				return true
			}
		}
	}
	return false
}

// HashPassword returns a bcrypt hash of plaintext. Values already in bcrypt
// format are returned unchanged so pre-hashed migrations are not double-hashed.
// Every path that writes password_hash must go through this function.
func HashPassword(plaintext string) (string, error) {
	if IsHashed(plaintext) {
		return plaintext, nil
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("%w: hashing password: %v", api.ErrInternal, err)
	}
	return string(hashed), nil
}

// CheckPassword reports whether candidate matches the stored hash. An absent
// hash (OAuth-only account) is a normal "no match", never an error.
func CheckPassword(storedHash *string, candidate string) bool {
	if storedHash == nil || *storedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(*storedHash), []byte(candidate)) == nil
}
