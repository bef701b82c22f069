// Package services – XPService
//
// This file implements the XP ledger. Events are append-only; totals, level
// and progress are always derived from the full event log and never stored.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/growth-loop-backend/internal/domain"
	"github.com/tbourn/growth-loop-backend/internal/repo"
)

const (
	// DefaultRawXP applies when an event omits rawXp.
	DefaultRawXP = 1
	// MaxRawXP caps a single event.
	MaxRawXP = 10_000

	levelStep = 50
)

// Totals is the derived view of a user's XP.
type Totals struct {
	XP         int64   `json:"xp"`
	Level      int     `json:"level"`
	Progress   float64 `json:"progress"`
	NextNeeded int64   `json:"nextNeeded"`
}

// LevelThreshold is the XP at which level starts: 50*L*(L-1), so level 1
// begins at 0, level 2 at 100, level 3 at 300.
func LevelThreshold(level int) int64 {
	if level <= 1 {
		return 0
	}
	l := int64(level)
	return levelStep * l * (l - 1)
}

// LevelFor returns the level reached with xp.
func LevelFor(xp int64) int {
	level := 1
	for LevelThreshold(level+1) <= xp {
		level++
	}
	return level
}

// TotalsFor derives level, progress in [0,1) and XP still needed for the next
// level from a total.
func TotalsFor(xp int64) Totals {
	if xp < 0 {
		xp = 0
	}
	level := LevelFor(xp)
	cur, next := LevelThreshold(level), LevelThreshold(level+1)
	progress := float64(xp-cur) / float64(next-cur)
	if progress < 0 {
		progress = 0
	}
	return Totals{
		XP:         xp,
		Level:      level,
		Progress:   progress,
		NextNeeded: next - xp,
	}
}

// Derive computes Totals from an event log. Order does not matter.
func Derive(events []domain.XpEvent) Totals {
	var sum int64
	for _, e := range events {
		sum += e.RawXP
	}
	return TotalsFor(sum)
}

// XpInput is one event to record. An empty PersonaType is resolved from the
// user's profile; a nil RawXP records DefaultRawXP.
type XpInput struct {
	UserID      string
	PersonaType string
	EventType   string
	ReferenceID *string
	Metadata    map[string]any
	RawXP       *int64
}

// XPService records XP events and derives totals.
type XPService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Personas fills in a missing persona.
	Personas PersonaResolver
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// NewXPService constructs an XPService reading personas from user_profiles.
func NewXPService(db *gorm.DB) *XPService {
	return &XPService{DB: db, Personas: ProfilePersonas{DB: db}, Now: time.Now}
}

// Record validates in and appends one event.
func (s *XPService) Record(ctx context.Context, in XpInput) (*domain.XpEvent, error) {
	tr := otel.Tracer("services/XPService")
	ctx, span := tr.Start(ctx, "Record",
		trace.WithAttributes(
			attribute.String("user.id", in.UserID),
			attribute.String("xp.event_type", in.EventType),
		),
	)
	defer span.End()

	ev, err := s.build(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := repo.CreateXpEvent(ctx, s.DB, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// RecordTx appends an event inside tx. The persona must already be set.
func (s *XPService) RecordTx(ctx context.Context, tx *gorm.DB, in XpInput) (*domain.XpEvent, error) {
	if in.PersonaType == "" {
		return nil, domain.ErrUnknownPersona
	}
	ev, err := s.build(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := repo.CreateXpEvent(ctx, tx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Totals sums the user's events, optionally for one persona, and derives
// level and progress.
func (s *XPService) Totals(ctx context.Context, userID string, persona *domain.PersonaType) (Totals, error) {
	tr := otel.Tracer("services/XPService")
	ctx, span := tr.Start(ctx, "Totals", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	sum, err := repo.SumXP(ctx, s.DB, userID, persona)
	if err != nil {
		return Totals{}, err
	}
	return TotalsFor(sum), nil
}

func (s *XPService) build(ctx context.Context, in XpInput) (*domain.XpEvent, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, ErrInvalidUser
	}
	eventType, err := domain.ParseXpEventType(in.EventType)
	if err != nil {
		return nil, err
	}

	var persona domain.PersonaType
	if in.PersonaType == "" {
		if s.Personas == nil {
			persona = domain.DefaultPersona
		} else if persona, err = s.Personas.Persona(ctx, userID); err != nil {
			return nil, err
		}
	} else if persona, err = domain.ParsePersona(in.PersonaType); err != nil {
		return nil, err
	}

	raw := int64(DefaultRawXP)
	if in.RawXP != nil {
		raw = *in.RawXP
	}
	if raw <= 0 || raw > MaxRawXP {
		return nil, ErrInvalidXP
	}

	ev := &domain.XpEvent{
		ID:          uuid.NewString(),
		UserID:      userID,
		PersonaType: persona,
		EventType:   eventType,
		ReferenceID: in.ReferenceID,
		RawXP:       raw,
		CreatedAt:   s.now().UTC(),
	}
	if len(in.Metadata) > 0 {
		ev.Metadata = datatypes.JSONMap(in.Metadata)
	}
	return ev, nil
}

func (s *XPService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
