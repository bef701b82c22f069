// Package services – SmartLinkService
//
// This file implements smart link issuance and resolution. Issuance enforces
// the inviter's daily quota, allocates an opaque code, signs the link and
// persists it. Resolution is total: a missing, expired, forged or malformed
// link collapses into one safe fallback route and never yields attribution.
package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/growth-loop-backend/internal/analytics"
	"github.com/tbourn/growth-loop-backend/internal/attribution"
	"github.com/tbourn/growth-loop-backend/internal/domain"
	"github.com/tbourn/growth-loop-backend/internal/ratelimit"
	"github.com/tbourn/growth-loop-backend/internal/repo"
	"github.com/tbourn/growth-loop-backend/internal/signing"
)

// FallbackRoute is where every unresolvable link lands.
const FallbackRoute = "/"

const (
	maxParamsBytes = 2048
	codeAttempts   = 3
)

var (
	refIDRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	codeRE  = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// routeParams lists the deep-link params in priority order.
var routeParams = []struct {
	key    string
	prefix string
}{
	{"resultId", "/results/"},
	{"deckId", "/decks/"},
	{"cohortId", "/cohorts/"},
}

// InviteQuota is the subset of ratelimit.InviteLimiter used for issuance.
type InviteQuota interface {
	Check(ctx context.Context, userID string, date time.Time) ratelimit.Status
	Increment(ctx context.Context, userID string, date time.Time) *int64
}

// SmartLinkService issues and resolves smart links.
type SmartLinkService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Signer signs and verifies link payloads.
	Signer *signing.Codec
	// Quota enforces the daily invite limit. Nil disables the check.
	Quota InviteQuota
	// Events receives invite.sent. Nil discards.
	Events analytics.Emitter

	// TTL is the default link lifetime.
	TTL time.Duration
	// PublicBaseURL prefixes /l/{code} in issued URLs.
	PublicBaseURL string
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// NewSmartLinkService constructs a SmartLinkService with a 7 day default TTL.
func NewSmartLinkService(db *gorm.DB, signer *signing.Codec, quota InviteQuota, events analytics.Emitter) *SmartLinkService {
	return &SmartLinkService{
		DB:     db,
		Signer: signer,
		Quota:  quota,
		Events: events,
		TTL:    7 * 24 * time.Hour,
		Now:    time.Now,
	}
}

// IssueInput describes a link to create. A zero TTL uses the service default.
type IssueInput struct {
	InviterID string
	Loop      string
	Params    map[string]any
	TTL       time.Duration
}

// IssuedLink is the result of Issue.
type IssuedLink struct {
	Link  *domain.SmartLink
	URL   string
	Quota ratelimit.Status
}

// Resolution is the outcome of Resolve. Attribution is nil on the fallback.
type Resolution struct {
	Route       string
	Attribution *attribution.Record
}

// Fallback reports whether r is the safe fallback outcome.
func (r Resolution) Fallback() bool { return r.Attribution == nil }

// Issue creates, signs and stores a new smart link for in.InviterID.
func (s *SmartLinkService) Issue(ctx context.Context, in IssueInput) (*IssuedLink, error) {
	tr := otel.Tracer("services/SmartLinkService")
	ctx, span := tr.Start(ctx, "Issue",
		trace.WithAttributes(
			attribute.String("inviter.id", in.InviterID),
			attribute.String("loop", in.Loop),
		),
	)
	defer span.End()

	inviter := strings.TrimSpace(in.InviterID)
	if inviter == "" {
		return nil, ErrInvalidInviter
	}
	loop, err := domain.ParseLoop(in.Loop)
	if err != nil {
		return nil, err
	}
	if err := validateParams(in.Params); err != nil {
		return nil, err
	}

	now := s.now()
	var status ratelimit.Status
	if s.Quota != nil {
		status = s.Quota.Check(ctx, inviter, now)
		if !status.Allowed {
			return &IssuedLink{Quota: status}, ErrQuotaExceeded
		}
	}

	ttl := in.TTL
	if ttl <= 0 {
		ttl = s.TTL
	}
	// Unix seconds are what the signature covers; store the same instant.
	expires := now.Add(ttl).UTC().Truncate(time.Second)

	link := &domain.SmartLink{
		InviterID: inviter,
		Loop:      string(loop),
		Params:    datatypes.JSONMap(in.Params),
		ExpiresAt: expires,
	}
	if link.Params == nil {
		link.Params = datatypes.JSONMap{}
	}

	for attempt := 0; ; attempt++ {
		link.ID = uuid.NewString()
		link.Code = newCode()
		link.Signature, err = s.Signer.Sign(payloadOf(link))
		if err != nil {
			return nil, err
		}
		err = repo.CreateSmartLink(ctx, s.DB, link)
		if err == nil {
			break
		}
		if !errors.Is(err, repo.ErrDuplicate) {
			return nil, err
		}
		if attempt+1 >= codeAttempts {
			return nil, ErrCodeExhausted
		}
	}

	if s.Quota != nil {
		if n := s.Quota.Increment(ctx, inviter, now); n != nil {
			status.Remaining = max(status.Limit-*n, 0)
		}
	}

	s.emit(analytics.Event{
		Name:   analytics.EventInviteSent,
		UserID: inviter,
		Properties: map[string]any{
			"loop":            link.Loop,
			"smart_link_code": link.Code,
		},
		At: now,
	})

	return &IssuedLink{Link: link, URL: s.publicURL(link.Code), Quota: status}, nil
}

// Resolve maps code to a destination route plus attribution. Any failure
// resolves to FallbackRoute with no attribution; the caller cannot tell
// missing, expired and forged links apart.
func (s *SmartLinkService) Resolve(ctx context.Context, code, rawQuery string) Resolution {
	tr := otel.Tracer("services/SmartLinkService")
	ctx, span := tr.Start(ctx, "Resolve",
		trace.WithAttributes(attribute.String("smart_link.code", code)),
	)
	defer span.End()

	fallback := Resolution{Route: FallbackRoute}

	if !codeRE.MatchString(code) {
		return fallback
	}
	link, err := repo.GetSmartLinkByCode(ctx, s.DB, code)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			log.Warn().Err(err).Str("code", code).Msg("smart link lookup failed")
		}
		return fallback
	}
	if !s.now().Before(link.ExpiresAt) {
		return fallback
	}
	if !s.Signer.Verify(payloadOf(link), link.Signature) {
		log.Warn().Str("code", code).Msg("smart link signature mismatch")
		return fallback
	}
	route, ok := RouteFor(link.Params)
	if !ok {
		return fallback
	}

	// A malformed query still yields whatever pairs parsed before the error.
	q, _ := url.ParseQuery(rawQuery)
	rec := attribution.Record{
		InviterID:     link.InviterID,
		Loop:          link.Loop,
		SmartLinkCode: link.Code,
	}.WithUTM(q)

	span.SetAttributes(attribute.String("route", route))
	return Resolution{Route: route, Attribution: &rec}
}

// RouteFor derives the destination from params by priority. ok is false when
// the highest-priority reference present is not a well-formed id.
func RouteFor(params map[string]any) (route string, ok bool) {
	for _, rp := range routeParams {
		v, present := params[rp.key]
		if !present {
			continue
		}
		id, isStr := v.(string)
		if !isStr || !refIDRE.MatchString(id) {
			return "", false
		}
		return rp.prefix + id, true
	}
	return FallbackRoute, true
}

func validateParams(p map[string]any) error {
	if len(p) == 0 {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil || len(raw) > maxParamsBytes {
		return ErrInvalidParams
	}
	// Keys that only differ in Unicode normalization have no stable signature.
	if _, err := signing.Canonical(signing.Payload{Params: p}); err != nil {
		return ErrInvalidParams
	}
	if _, ok := RouteFor(p); !ok {
		return ErrInvalidParams
	}
	return nil
}

func payloadOf(l *domain.SmartLink) signing.Payload {
	return signing.Payload{
		Code:      l.Code,
		ExpiresAt: l.ExpiresAt,
		InviterID: l.InviterID,
		Loop:      l.Loop,
		Params:    map[string]any(l.Params),
	}
}

// newCode returns 22 url-safe characters from a random UUID.
func newCode() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}

func (s *SmartLinkService) publicURL(code string) string {
	return strings.TrimRight(s.PublicBaseURL, "/") + "/l/" + code
}

func (s *SmartLinkService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SmartLinkService) emit(e analytics.Event) {
	if s.Events != nil {
		s.Events.Emit(e)
	}
}
