// Package id generates opaque identifiers for connections and rooms.
package id

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a random UUIDv4 encoded as 26 lowercase base32 characters.
func NewID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(u[:])), nil
}

// NewPrefixed returns NewID with a short kind prefix such as "room_".
func NewPrefixed(prefix string) (string, error) {
	raw, err := NewID()
	if err != nil {
		return "", err
	}
	return prefix + raw, nil
}
