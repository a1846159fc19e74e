package app

import (
	"crypto/rand"
	"fmt"
)

const (
	joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	joinCodeLength   = 8

	// redraws before event creation gives up on a unique code
	joinCodeRetries = 5
)

// newJoinCode draws an 8-character code from the 36-symbol alphabet.
// Uniqueness is enforced by the store's join-code index; callers redraw on
// domain.ErrJoinCodeTaken.
func newJoinCode() (string, error) {
	buf := make([]byte, joinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("draw join code: %w", err)
	}
	for i, b := range buf {
		buf[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(buf), nil
}
