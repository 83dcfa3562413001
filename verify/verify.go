// Package verify compares a computed digest with the one the vendor declared.
//
// A mismatch is a result, not an error: the caller decides what to tell
// the user and what to do with the file.
package verify

import (
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// Outcome is the verdict of a comparison.
type Outcome int

const (
	OK Outcome = iota
	Mismatch
)

func (o Outcome) String() string {
	if o == OK {
		return "ok"
	}

	return "mismatch"
}

// Result records both digests alongside the verdict.
type Result struct {
	Outcome  Outcome
	Computed string
	Expected string
}

// OK reports whether the digests matched.
func (r Result) OK() bool {
	return r.Outcome == OK
}

func (r Result) String() string {
	if r.OK() {
		return fmt.Sprintf("checksum ok: %s", r.Computed)
	}

	return fmt.Sprintf("checksum mismatch: expected %s, got %s", r.Expected, r.Computed)
}

// Verify compares two hex digests, ignoring case and surrounding whitespace.
// Empty digests never match.
func Verify(computed, expected string) Result {
	c := strings.ToLower(strings.TrimSpace(computed))
	e := strings.ToLower(strings.TrimSpace(expected))

	r := Result{Outcome: Mismatch, Computed: c, Expected: e}
	if c != "" && c == e {
		r.Outcome = OK
	}

	return r
}

// Sum returns the lowercase hex encoding of h's current digest.
func Sum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
