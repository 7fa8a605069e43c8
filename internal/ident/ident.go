// Package ident hands out opaque identifiers for files and chat messages.
package ident

import (
	"strconv"

	"github.com/google/uuid"
)

// Generator produces a new identifier on every call.
type Generator func() string

// New returns a random (version 4) UUID string.
func New() string {
	return uuid.NewString()
}

// Sequence returns a Generator that yields prefix-1, prefix-2, ... which keeps
// test fixtures readable.
func Sequence(prefix string) Generator {
	n := 0
	return func() string {
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}
