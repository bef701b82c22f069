// Package handlers wires the growth loop's HTTP endpoints to the services.
//
// Handlers are transport-thin: they bind and validate input, call a service,
// and translate results into HTTP responses. Service dependencies are small
// interfaces so tests can substitute fakes for the presence and quota stores.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/growth-loop-backend/internal/analytics"
	"github.com/tbourn/growth-loop-backend/internal/attribution"
	"github.com/tbourn/growth-loop-backend/internal/domain"
	"github.com/tbourn/growth-loop-backend/internal/http/middleware"
	"github.com/tbourn/growth-loop-backend/internal/presence"
	"github.com/tbourn/growth-loop-backend/internal/ratelimit"
	"github.com/tbourn/growth-loop-backend/internal/services"
	"github.com/tbourn/growth-loop-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// SmartLinkService issues and resolves smart links.
type SmartLinkService interface {
	Issue(ctx context.Context, in services.IssueInput) (*services.IssuedLink, error)
	Resolve(ctx context.Context, code, rawQuery string) services.Resolution
}

// InviteQuota reports the caller's daily invite quota.
type InviteQuota interface {
	Check(ctx context.Context, userID string, date time.Time) ratelimit.Status
}

// RewardService settles reward grants.
type RewardService interface {
	Grant(ctx context.Context, req services.GrantRequest) (*services.GrantResult, error)
}

// XPService records XP events and derives totals.
type XPService interface {
	Record(ctx context.Context, in services.XpInput) (*domain.XpEvent, error)
	Totals(ctx context.Context, userID string, persona *domain.PersonaType) (services.Totals, error)
}

// PresenceService counts active users per subject.
type PresenceService interface {
	Ping(ctx context.Context, subject, userID string)
	Count(ctx context.Context, subject string) int64
	Counts(ctx context.Context, subjects []string) map[string]int64
	Healthy() bool
	Watch(ctx context.Context, subject string, emit func(presence.Message) error) error
}

// ConversionService records guest completions and converts them on sign-in.
type ConversionService interface {
	RecordGuestCompletion(ctx context.Context, in services.GuestCompletionInput) (*domain.GuestCompletion, error)
	Convert(ctx context.Context, guestSessionID, userID string, attrib *attribution.Record) (services.ConversionReport, error)
}

//
// Handler wiring
//

// Deps carries everything New needs.
type Deps struct {
	// DB backs ledger listing and idempotency records.
	DB *gorm.DB

	Links       SmartLinkService
	Quota       InviteQuota
	Rewards     RewardService
	XP          XPService
	Presence    PresenceService
	Conversions ConversionService

	// Cookies authenticates the attribution cookie.
	Cookies       *attribution.Codec
	CookieOptions middleware.CookieOptions
	// Events receives invite.joined. Nil discards.
	Events analytics.Emitter

	// IdempotencyTTL bounds how long an Idempotency-Key replays.
	IdempotencyTTL time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	db          *gorm.DB
	links       SmartLinkService
	quota       InviteQuota
	rewards     RewardService
	xp          XPService
	presence    PresenceService
	conversions ConversionService

	cookies   *attribution.Codec
	cookieOpt middleware.CookieOptions
	events    analytics.Emitter
	idemTTL   time.Duration
	now       func() time.Time
}

// New constructs Handlers from d, filling defaults.
func New(d Deps) *Handlers {
	h := &Handlers{
		db:          d.DB,
		links:       d.Links,
		quota:       d.Quota,
		rewards:     d.Rewards,
		xp:          d.XP,
		presence:    d.Presence,
		conversions: d.Conversions,
		cookies:     d.Cookies,
		cookieOpt:   d.CookieOptions,
		events:      d.Events,
		idemTTL:     d.IdempotencyTTL,
		now:         d.Now,
	}
	if h.events == nil {
		h.events = analytics.Discard{}
	}
	if h.idemTTL <= 0 {
		h.idemTTL = 24 * time.Hour
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

//
// Shared DTOs and helpers
//

// Pagination carries window metadata for list responses. List DTOs embed it
// so the fields sit next to the items.
type Pagination struct {
	Limit   int   `json:"limit" example:"20"`
	Offset  int   `json:"offset" example:"0"`
	Total   int64 `json:"total" example:"42"`
	HasMore bool  `json:"hasMore"`
}

func paginationOf(w utils.Window, total int64) Pagination {
	return Pagination{
		Limit:   w.Limit,
		Offset:  w.Offset,
		Total:   total,
		HasMore: w.HasMore(total),
	}
}

// clampWindow parses and bounds the limit and offset query params.
func clampWindow(c *gin.Context) utils.Window {
	return utils.ParseWindow(c.Query("limit"), c.Query("offset"))
}
