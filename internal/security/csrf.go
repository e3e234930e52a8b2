package security

import (
	"fmt"

	"github.com/charlesng35/csahub/pkg/crypto"
)

const csrfTokenBytes = 32

// CSRFStore is the session state a CSRF token is bound to.
type CSRFStore interface {
	CSRFToken() string
	SetCSRFToken(token string)
}

// EnsureCSRFToken returns the token bound to the session, issuing one on
// first use. The token stays stable for the session's lifetime.
func EnsureCSRFToken(store CSRFStore) (string, error) {
	if token := store.CSRFToken(); token != "" {
		return token, nil
	}
	token, err := crypto.GenerateHexToken(csrfTokenBytes)
	if err != nil {
		return "", fmt.Errorf("security: issue csrf token: %w", err)
	}
	store.SetCSRFToken(token)
	return token, nil
}

// VerifyCSRFToken compares in constant time. Empty values never verify.
func VerifyCSRFToken(expected, submitted string) bool {
	return crypto.ConstantTimeEqual(expected, submitted)
}
