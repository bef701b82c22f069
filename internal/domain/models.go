// Package domain defines the persistence models for smart links, reward
// grants, the cost ledger, XP events, guest completions and referrals. These
// types are mapped with GORM and form the core data layer of the growth
// service.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// SmartLink is a signed, short-lived share reference. It is immutable once
// issued; expiry is enforced on read and rows are never physically deleted.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Code: opaque public code used in /l/{code}; unique.
//   - InviterID: user who shared the link.
//   - Loop: growth mechanic tag (see Loop constants).
//   - Params: opaque key-value payload describing the deep destination.
//   - Signature: "v1.<hex>" HMAC over the canonical tuple.
//   - ExpiresAt: instant after which the link resolves to the fallback route.
type SmartLink struct {
	ID        string            `json:"id"         gorm:"type:char(36);primaryKey"`
	Code      string            `json:"code"       gorm:"type:varchar(64);not null;uniqueIndex:ux_smart_links_code"`
	InviterID string            `json:"inviter_id" gorm:"type:varchar(64);not null;index"`
	Loop      string            `json:"loop"       gorm:"type:varchar(64);not null"`
	Params    datatypes.JSONMap `json:"params"`
	Signature string            `json:"-"          gorm:"type:varchar(128);not null"`
	ExpiresAt time.Time         `json:"expires_at" gorm:"not null;index"`
	CreatedAt time.Time         `json:"created_at"`
}

// TableName returns the database table name for SmartLink.
func (SmartLink) TableName() string { return "smart_links" }

// RewardGrant is the idempotency boundary for reward settlement: DedupeKey is
// unique and determines the stored outcome. Rows move from pending to a
// terminal status and are never deleted.
type RewardGrant struct {
	ID           string       `json:"id"                      gorm:"type:char(36);primaryKey"`
	UserID       string       `json:"user_id"                 gorm:"type:varchar(64);not null;index"`
	Type         RewardType   `json:"type"                    gorm:"type:varchar(32);not null"`
	Amount       int64        `json:"amount"                  gorm:"not null"`
	Loop         string       `json:"loop,omitempty"          gorm:"type:varchar(64)"`
	DedupeKey    string       `json:"dedupe_key"              gorm:"type:varchar(200);not null;uniqueIndex:ux_reward_grants_dedupe"`
	Status       RewardStatus `json:"status"                  gorm:"type:varchar(16);not null;index"`
	DeniedReason *string      `json:"denied_reason,omitempty" gorm:"type:varchar(255)"`
	GrantedAt    *time.Time   `json:"granted_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// TableName returns the database table name for RewardGrant.
func (RewardGrant) TableName() string { return "reward_grants" }

// LedgerEntry is the append-only cost audit row written once per settled
// grant attempt, denied or granted. Currency fields are integer cents.
type LedgerEntry struct {
	ID             string            `json:"id"                  gorm:"type:char(36);primaryKey"`
	UserID         string            `json:"user_id"             gorm:"type:varchar(64);not null;index:idx_ledger_user_created,priority:1"`
	RewardID       *string           `json:"reward_id,omitempty" gorm:"type:char(36);uniqueIndex:ux_ledger_reward"`
	Type           LedgerEntryType   `json:"type"                gorm:"type:varchar(32);not null;index"`
	UnitCostCents  int64             `json:"unit_cost_cents"     gorm:"not null"`
	Quantity       int64             `json:"quantity"            gorm:"not null"`
	TotalCostCents int64             `json:"total_cost_cents"    gorm:"not null"`
	Loop           *string           `json:"loop,omitempty"      gorm:"type:varchar(64)"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"          gorm:"index:idx_ledger_user_created,priority:2"`
}

// TableName returns the database table name for LedgerEntry.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// XpEvent is one append-only XP award. Totals, level and progress are always
// derived from these rows; nothing else stores them.
type XpEvent struct {
	ID          string            `json:"id"                     gorm:"type:char(36);primaryKey"`
	UserID      string            `json:"user_id"                gorm:"type:varchar(64);not null;index:idx_xp_user_persona,priority:1"`
	PersonaType PersonaType       `json:"persona_type"           gorm:"type:varchar(16);not null;index:idx_xp_user_persona,priority:2"`
	EventType   XpEventType       `json:"event_type"             gorm:"type:varchar(48);not null"`
	ReferenceID *string           `json:"reference_id,omitempty" gorm:"type:varchar(128)"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	RawXP       int64             `json:"raw_xp"                 gorm:"column:raw_xp;not null;check:raw_xp > 0"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TableName returns the database table name for XpEvent.
func (XpEvent) TableName() string { return "xp_events" }

// GuestCompletion is a qualifying action completed before authentication,
// keyed by a locally generated guest session id. Conversion flips Status to
// converted exactly once.
type GuestCompletion struct {
	ID              string     `json:"id"                          gorm:"type:char(36);primaryKey"`
	GuestSessionID  string     `json:"guest_session_id"            gorm:"type:varchar(64);not null;index:idx_guest_session_status,priority:1"`
	ChallengeID     string     `json:"challenge_id"                gorm:"type:varchar(64);not null"`
	Score           int        `json:"score"                       gorm:"not null"`
	InviterID       *string    `json:"inviter_id,omitempty"        gorm:"type:varchar(64)"`
	Loop            *string    `json:"loop,omitempty"              gorm:"type:varchar(64)"`
	SmartLinkCode   *string    `json:"smart_link_code,omitempty"   gorm:"type:varchar(64)"`
	Status          string     `json:"status"                      gorm:"type:varchar(16);not null;default:'pending';index:idx_guest_session_status,priority:2"`
	ConvertedUserID *string    `json:"converted_user_id,omitempty" gorm:"type:varchar(64)"`
	ConvertedAt     *time.Time `json:"converted_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// TableName returns the database table name for GuestCompletion.
func (GuestCompletion) TableName() string { return "guest_completions" }

// Guest completion statuses.
const (
	GuestPending   = "pending"
	GuestConverted = "converted"
)

// Referral links an inviter to an invitee for one converted completion.
type Referral struct {
	ID                string    `json:"id"                        gorm:"type:char(36);primaryKey"`
	InviterID         string    `json:"inviter_id"                gorm:"type:varchar(64);not null;index"`
	InviteeID         string    `json:"invitee_id"                gorm:"type:varchar(64);not null;index"`
	Loop              string    `json:"loop,omitempty"            gorm:"type:varchar(64)"`
	SmartLinkCode     *string   `json:"smart_link_code,omitempty" gorm:"type:varchar(64)"`
	GuestCompletionID string    `json:"guest_completion_id"       gorm:"type:char(36);not null;uniqueIndex:ux_referrals_completion"`
	CreatedAt         time.Time `json:"created_at"`
}

// TableName returns the database table name for Referral.
func (Referral) TableName() string { return "referrals" }

// UserProfile carries the persona used for reward policy selection. It is
// owned by the account system; this service only reads it.
type UserProfile struct {
	UserID      string      `json:"user_id"      gorm:"type:varchar(64);primaryKey"`
	PersonaType PersonaType `json:"persona_type" gorm:"type:varchar(16);not null"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TableName returns the database table name for UserProfile.
func (UserProfile) TableName() string { return "user_profiles" }
