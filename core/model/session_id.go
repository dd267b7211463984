package model

import (
	"crypto/rand"
	"math/big"
)

const (
	// SessionIDLength is the fixed length of generated session ids.
	SessionIDLength = 12

	sessionIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// NewSessionID returns a random alphanumeric token. It isolates the chunk
// store of one upload from another and is not a credential.
func NewSessionID() (string, error) {
	max := big.NewInt(int64(len(sessionIDAlphabet)))
	id := make([]byte, SessionIDLength)
	for i := range id {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		id[i] = sessionIDAlphabet[n.Int64()]
	}

	return string(id), nil
}

// ValidSessionID reports whether id only uses the session id alphabet and
// can safely be used as a directory name.
func ValidSessionID(id string) bool {
	if len(id) == 0 || len(id) > 64 {
		return false
	}

	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return false
		}
	}

	return true
}
