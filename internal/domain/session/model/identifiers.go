// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package model

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"

	"github.com/google/uuid"
)

// NewSessionID returns a fresh unguessable session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// NewGroupID returns a fresh group identifier.
func NewGroupID() string {
	return uuid.NewString()
}

var codeSpace = big.NewInt(1_000_000)

// NewSessionCode returns a random 6-digit decimal code, zero-padded.
// Uniqueness among live sessions is the store's job; the 10^6 space is thin
// enough that collisions must be checked at registration time.
func NewSessionCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate session code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

var codeRe = regexp.MustCompile(`^[0-9]{6}$`)

// IsCode reports whether s has the shape of a session code.
func IsCode(s string) bool {
	return codeRe.MatchString(s)
}
