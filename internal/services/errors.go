// Package services defines the business logic for smart links, reward
// settlement, XP tracking and guest conversion.
// This file centralizes service-level error values so that handlers can map
// them to HTTP status codes consistently.
package services

import "errors"

// Smart link errors.
var (
	// ErrInvalidInviter is returned when a link is issued without an inviter.
	ErrInvalidInviter = errors.New("inviter id is required")

	// ErrInvalidParams is returned when link params are too large or carry a
	// malformed route identifier.
	ErrInvalidParams = errors.New("invalid link params")

	// ErrQuotaExceeded is returned when the inviter has used today's invites.
	ErrQuotaExceeded = errors.New("daily invite limit reached")

	// ErrCodeExhausted is returned when no unique link code could be allocated.
	ErrCodeExhausted = errors.New("could not allocate a unique link code")
)

// Reward errors.
var (
	// ErrInvalidUser is returned when a request carries no user id.
	ErrInvalidUser = errors.New("user id is required")

	// ErrInvalidDedupeKey is returned for empty or oversized dedupe keys.
	ErrInvalidDedupeKey = errors.New("dedupe key must be 1-200 characters")

	// ErrInvalidAmount is returned for non-positive or out-of-range amounts.
	ErrInvalidAmount = errors.New("amount must be between 1 and 1000000")

	// ErrPolicyNotFound indicates no policy covers the user's persona.
	ErrPolicyNotFound = errors.New("no reward policy for persona")

	// ErrRewardTypeMismatch indicates the requested reward type differs from
	// the one the matching policy pays out.
	ErrRewardTypeMismatch = errors.New("reward type does not match policy")

	// ErrDedupeKeyConflict indicates the dedupe key was already settled for a
	// different user.
	ErrDedupeKeyConflict = errors.New("dedupe key belongs to another user")
)

// XP and guest errors.
var (
	// ErrInvalidXP is returned when rawXp is outside (0, MaxRawXP].
	ErrInvalidXP = errors.New("raw xp must be between 1 and 10000")

	// ErrInvalidGuestSession is returned for malformed guest session ids.
	ErrInvalidGuestSession = errors.New("invalid guest session id")

	// ErrInvalidCompletion is returned for a missing challenge id or a score
	// outside 0..100.
	ErrInvalidCompletion = errors.New("invalid guest completion")
)
