package domain

import "errors"

// Validation errors for closed enumerations. Callers at the HTTP boundary map
// these to 400 responses.
var (
	ErrUnknownLoop        = errors.New("unknown loop")
	ErrUnknownRewardType  = errors.New("unknown reward type")
	ErrUnknownPersona     = errors.New("unknown persona type")
	ErrUnknownXpEventType = errors.New("unknown xp event type")
)

// Loop tags a growth mechanic for policy selection and analytics grouping.
type Loop string

const (
	LoopBuddyChallenge Loop = "buddy_challenge"
	LoopResultsShare   Loop = "results_share"
	LoopDeckShare      Loop = "deck_share"
	LoopCohortInvite   Loop = "cohort_invite"
)

// ParseLoop validates s against the known loops.
func ParseLoop(s string) (Loop, error) {
	switch l := Loop(s); l {
	case LoopBuddyChallenge, LoopResultsShare, LoopDeckShare, LoopCohortInvite:
		return l, nil
	}
	return "", ErrUnknownLoop
}

// RewardType is the kind of reward a policy pays out.
type RewardType string

const (
	RewardStreakShield RewardType = "streak_shield"
	RewardAIMinutes    RewardType = "ai_minutes"
	RewardBadge        RewardType = "badge"
	RewardCredits      RewardType = "credits"
)

// ParseRewardType validates s against the known reward types.
func ParseRewardType(s string) (RewardType, error) {
	switch t := RewardType(s); t {
	case RewardStreakShield, RewardAIMinutes, RewardBadge, RewardCredits:
		return t, nil
	}
	return "", ErrUnknownRewardType
}

// Unitless reports whether the reward is counted as a single item regardless
// of amount, which fixes its ledger quantity at 1.
func (t RewardType) Unitless() bool { return t == RewardBadge }

// RewardStatus is the RewardGrant state machine: pending -> granted | denied.
type RewardStatus string

const (
	RewardPending RewardStatus = "pending"
	RewardGranted RewardStatus = "granted"
	RewardDenied  RewardStatus = "denied"
)

// Terminal reports whether the status can no longer change.
func (s RewardStatus) Terminal() bool { return s == RewardGranted || s == RewardDenied }

// LedgerEntryType distinguishes paid from simulated (denied) spend.
type LedgerEntryType string

const (
	LedgerRewardGrant  LedgerEntryType = "reward_grant"
	LedgerRewardDenied LedgerEntryType = "reward_denied"
)

// ParseLedgerEntryType validates a ledger type filter.
func ParseLedgerEntryType(s string) (LedgerEntryType, bool) {
	switch t := LedgerEntryType(s); t {
	case LedgerRewardGrant, LedgerRewardDenied:
		return t, true
	}
	return "", false
}

// PersonaType is the audience segment of a user.
type PersonaType string

const (
	PersonaStudent PersonaType = "student"
	PersonaParent  PersonaType = "parent"
	PersonaTutor   PersonaType = "tutor"
)

// DefaultPersona applies when the account system has no profile row.
const DefaultPersona = PersonaStudent

// ParsePersona validates s against the known personas.
func ParsePersona(s string) (PersonaType, error) {
	switch p := PersonaType(s); p {
	case PersonaStudent, PersonaParent, PersonaTutor:
		return p, nil
	}
	return "", ErrUnknownPersona
}

// XpEventType is a member of the versioned, closed XP event enumeration.
type XpEventType string

// XpEventTypesVersion is bumped whenever a type is added or retired.
const XpEventTypesVersion = 1

const (
	XpChallengeCompleted XpEventType = "challenge.completed"
	XpChallengePerfect   XpEventType = "challenge.perfect"
	XpInviteSent         XpEventType = "invite.sent"
	XpInviteAccepted     XpEventType = "invite.accepted"
	XpStreakExtended     XpEventType = "streak.extended"
	XpDeckMastered       XpEventType = "deck.mastered"
)

// ParseXpEventType validates s against the v1 enumeration.
func ParseXpEventType(s string) (XpEventType, error) {
	switch t := XpEventType(s); t {
	case XpChallengeCompleted, XpChallengePerfect, XpInviteSent,
		XpInviteAccepted, XpStreakExtended, XpDeckMastered:
		return t, nil
	}
	return "", ErrUnknownXpEventType
}
