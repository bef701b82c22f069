// Package services – ConversionService
//
// This file bridges guest activity into an authenticated account. A guest
// completes challenges under a locally generated session id; on sign-in each
// pending completion is converted exactly once, in its own transaction:
//
//  1. conditional pending -> converted update (0 rows means already done)
//  2. one XP event for the new user
//  3. when an inviter is known and is not the user: one referral, one
//     invite.accepted XP event for the inviter and one reward settlement
//     attempt keyed by guest-conversion:<completion id>
//
// A failure on one completion is logged and counted; the rest still run.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/growth-loop-backend/internal/analytics"
	"github.com/tbourn/growth-loop-backend/internal/attribution"
	"github.com/tbourn/growth-loop-backend/internal/domain"
	"github.com/tbourn/growth-loop-backend/internal/repo"
)

// XP awarded by conversion.
const (
	PerfectScore       = 100
	XPChallengePerfect = 50
	XPChallengeDone    = 10
	XPInviteAccepted   = 25
)

var (
	guestSessionRE = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

	// errAlreadyConverted rolls back a completion another caller converted.
	errAlreadyConverted = errors.New("guest completion already converted")
)

// ConversionDedupeKey is the reward dedupe key for a converted completion.
func ConversionDedupeKey(completionID string) string {
	return "guest-conversion:" + completionID
}

// GuestCompletionInput is a challenge finished before sign-in.
type GuestCompletionInput struct {
	GuestSessionID string
	ChallengeID    string
	Score          int
	Attribution    *attribution.Record
}

// ConversionReport summarizes one Convert call.
type ConversionReport struct {
	Converted int `json:"converted"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// ConversionService records guest completions and converts them on sign-in.
type ConversionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// XP records the XP events.
	XP *XPService
	// Rewards plans and settles the inviter reward.
	Rewards *RewardService
	// Personas resolves user and inviter personas.
	Personas PersonaResolver
	// Events receives guest.converted. Nil discards.
	Events analytics.Emitter
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// NewConversionService wires a ConversionService from its collaborators.
func NewConversionService(db *gorm.DB, xp *XPService, rewards *RewardService, events analytics.Emitter) *ConversionService {
	return &ConversionService{
		DB:       db,
		XP:       xp,
		Rewards:  rewards,
		Personas: ProfilePersonas{DB: db},
		Events:   events,
		Now:      time.Now,
	}
}

// RecordGuestCompletion stores a pending completion. Attribution present at
// completion time is captured on the row.
func (s *ConversionService) RecordGuestCompletion(ctx context.Context, in GuestCompletionInput) (*domain.GuestCompletion, error) {
	tr := otel.Tracer("services/ConversionService")
	ctx, span := tr.Start(ctx, "RecordGuestCompletion",
		trace.WithAttributes(attribute.String("guest_session.id", in.GuestSessionID)),
	)
	defer span.End()

	if !guestSessionRE.MatchString(in.GuestSessionID) {
		return nil, ErrInvalidGuestSession
	}
	challenge := strings.TrimSpace(in.ChallengeID)
	if challenge == "" || len(challenge) > 64 || in.Score < 0 || in.Score > PerfectScore {
		return nil, ErrInvalidCompletion
	}

	c := &domain.GuestCompletion{
		ID:             uuid.NewString(),
		GuestSessionID: in.GuestSessionID,
		ChallengeID:    challenge,
		Score:          in.Score,
		Status:         domain.GuestPending,
		CreatedAt:      s.now().UTC(),
	}
	if a := in.Attribution; a != nil && a.InviterID != "" {
		c.InviterID = strPtr(a.InviterID)
		c.Loop = strPtr(a.Loop)
		c.SmartLinkCode = strPtr(a.SmartLinkCode)
	}
	if err := repo.CreateGuestCompletion(ctx, s.DB, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Convert converts every pending completion of guestSessionID to userID.
// attrib is the attribution known at sign-in; a completion's own captured
// inviter takes precedence over it.
func (s *ConversionService) Convert(ctx context.Context, guestSessionID, userID string, attrib *attribution.Record) (ConversionReport, error) {
	tr := otel.Tracer("services/ConversionService")
	ctx, span := tr.Start(ctx, "Convert",
		trace.WithAttributes(
			attribute.String("guest_session.id", guestSessionID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	var report ConversionReport
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return report, ErrInvalidUser
	}
	if !guestSessionRE.MatchString(guestSessionID) {
		return report, ErrInvalidGuestSession
	}

	pending, err := repo.ListPendingGuestCompletions(ctx, s.DB, guestSessionID)
	if err != nil {
		return report, err
	}
	if len(pending) == 0 {
		return report, nil
	}

	userPersona, err := s.personas().Persona(ctx, userID)
	if err != nil {
		return report, err
	}

	for i := range pending {
		c := &pending[i]
		switch err := s.convertOne(ctx, c, userID, userPersona, attrib); {
		case err == nil:
			report.Converted++
		case errors.Is(err, errAlreadyConverted):
			report.Skipped++
		default:
			report.Failed++
			log.Warn().Err(err).
				Str("guest_completion_id", c.ID).
				Str("user_id", userID).
				Msg("guest conversion failed")
		}
	}

	span.SetAttributes(
		attribute.Int("converted", report.Converted),
		attribute.Int("skipped", report.Skipped),
		attribute.Int("failed", report.Failed),
	)
	return report, nil
}

func (s *ConversionService) convertOne(ctx context.Context, c *domain.GuestCompletion, userID string, persona domain.PersonaType, attrib *attribution.Record) error {
	inviter, loop, code := inviterOf(c, attrib)
	if inviter == userID {
		inviter = ""
	}

	// Reads happen before the transaction opens.
	var (
		inviterPersona domain.PersonaType
		plan           *GrantPlan
	)
	if inviter != "" {
		p, err := s.personas().Persona(ctx, inviter)
		if err != nil {
			return err
		}
		inviterPersona = p
		if s.Rewards != nil {
			plan, err = s.Rewards.Plan(ctx, GrantRequest{
				UserID:    inviter,
				Loop:      loop,
				DedupeKey: ConversionDedupeKey(c.ID),
				Metadata: map[string]any{
					"guest_completion_id": c.ID,
					"invitee_id":          userID,
				},
			})
			if err != nil {
				log.Warn().Err(err).
					Str("inviter_id", inviter).
					Str("guest_completion_id", c.ID).
					Msg("inviter reward not planned")
				plan = nil
			}
		}
	}

	now := s.now().UTC()
	var reward *GrantResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.MarkGuestConverted(ctx, tx, c.ID, userID, now)
		if err != nil {
			return err
		}
		if !ok {
			return errAlreadyConverted
		}

		eventType, raw := domain.XpChallengeCompleted, int64(XPChallengeDone)
		if c.Score >= PerfectScore {
			eventType, raw = domain.XpChallengePerfect, XPChallengePerfect
		}
		if _, err := s.XP.RecordTx(ctx, tx, XpInput{
			UserID:      userID,
			PersonaType: string(persona),
			EventType:   string(eventType),
			ReferenceID: strPtr(c.ID),
			Metadata:    map[string]any{"challenge_id": c.ChallengeID, "score": c.Score},
			RawXP:       &raw,
		}); err != nil {
			return err
		}

		if inviter == "" {
			return nil
		}

		ref := &domain.Referral{
			ID:                uuid.NewString(),
			InviterID:         inviter,
			InviteeID:         userID,
			Loop:              loop,
			GuestCompletionID: c.ID,
			CreatedAt:         now,
		}
		if code != "" {
			ref.SmartLinkCode = strPtr(code)
		}
		if err := repo.CreateReferral(ctx, tx, ref); err != nil {
			return err
		}

		accepted := int64(XPInviteAccepted)
		if _, err := s.XP.RecordTx(ctx, tx, XpInput{
			UserID:      inviter,
			PersonaType: string(inviterPersona),
			EventType:   string(domain.XpInviteAccepted),
			ReferenceID: strPtr(c.ID),
			Metadata:    map[string]any{"invitee_id": userID},
			RawXP:       &accepted,
		}); err != nil {
			return err
		}

		if plan != nil {
			reward, err = s.Rewards.Settle(ctx, tx, plan)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if reward != nil {
		s.Rewards.Observe(reward)
	}
	if s.Events != nil {
		props := map[string]any{
			"guest_completion_id": c.ID,
			"challenge_id":        c.ChallengeID,
			"score":               c.Score,
		}
		if inviter != "" {
			props["inviter_id"] = inviter
			props["loop"] = loop
		}
		s.Events.Emit(analytics.Event{Name: analytics.EventGuestConvert, UserID: userID, Properties: props, At: now})
	}
	return nil
}

// inviterOf prefers the attribution captured on the completion itself.
func inviterOf(c *domain.GuestCompletion, attrib *attribution.Record) (inviter, loop, code string) {
	if c.InviterID != nil && *c.InviterID != "" {
		return *c.InviterID, deref(c.Loop), deref(c.SmartLinkCode)
	}
	if attrib != nil {
		return attrib.InviterID, attrib.Loop, attrib.SmartLinkCode
	}
	return "", "", ""
}

func (s *ConversionService) personas() PersonaResolver {
	if s.Personas != nil {
		return s.Personas
	}
	return ProfilePersonas{DB: s.DB}
}

func (s *ConversionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
