// Package utils holds small paging helpers shared by list endpoints. Nothing
// here knows about ledgers or rewards.
package utils

import "strconv"

// Window bounds for list endpoints.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// AtoiDefault parses s, returning def when s is empty or not an integer.
// Surrounding whitespace is not trimmed.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// Window is a clamped (limit, offset) pair.
type Window struct {
	Limit  int
	Offset int
}

// ParseWindow reads raw limit and offset values and clamps them to
// [1, MaxLimit] and [0, ∞). Missing or malformed values use the defaults.
func ParseWindow(rawLimit, rawOffset string) Window {
	w := Window{
		Limit:  AtoiDefault(rawLimit, DefaultLimit),
		Offset: AtoiDefault(rawOffset, 0),
	}
	if w.Limit < 1 {
		w.Limit = 1
	}
	if w.Limit > MaxLimit {
		w.Limit = MaxLimit
	}
	if w.Offset < 0 {
		w.Offset = 0
	}
	return w
}

// HasMore reports whether rows remain past this window.
func (w Window) HasMore(total int64) bool {
	return int64(w.Offset)+int64(w.Limit) < total
}
