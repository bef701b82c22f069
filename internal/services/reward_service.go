// Package services – RewardService
//
// This file implements reward settlement. A grant is planned (reads: stored
// outcome, persona, policy, safety decision) and then settled (writes: one
// atomic upsert keyed by dedupe key, plus exactly one ledger entry when this
// call is the one that settled). Replays of a terminal dedupe key return the
// stored outcome with no side effects.
//
// Plan and Settle are exported separately so guest conversion can settle an
// inviter reward inside its own transaction.
package services

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/tbourn/growth-loop-backend/internal/config"
	"github.com/tbourn/growth-loop-backend/internal/domain"
	"github.com/tbourn/growth-loop-backend/internal/observability"
	"github.com/tbourn/growth-loop-backend/internal/repo"
)

const (
	maxDedupeKeyLen = 200
	maxRewardAmount = 1_000_000
)

// Policy is a validated catalog entry.
type Policy struct {
	Persona       domain.PersonaType
	Trigger       string
	RewardType    domain.RewardType
	Amount        int64
	UnitCostCents int64
}

// PolicyCatalog looks up policies by (persona, trigger).
type PolicyCatalog struct {
	byKey map[string]Policy
}

// NewPolicyCatalog validates ps and indexes it.
func NewPolicyCatalog(ps []config.RewardPolicy) (*PolicyCatalog, error) {
	if err := config.ValidatePolicies(ps); err != nil {
		return nil, err
	}
	c := &PolicyCatalog{byKey: make(map[string]Policy, len(ps))}
	for _, p := range ps {
		c.byKey[p.Persona+"|"+p.Trigger] = Policy{
			Persona:       domain.PersonaType(p.Persona),
			Trigger:       p.Trigger,
			RewardType:    domain.RewardType(p.RewardType),
			Amount:        p.Amount,
			UnitCostCents: p.UnitCostCents,
		}
	}
	return c, nil
}

// Lookup returns the policy for (persona, trigger).
func (c *PolicyCatalog) Lookup(persona domain.PersonaType, trigger string) (Policy, bool) {
	p, ok := c.byKey[string(persona)+"|"+trigger]
	return p, ok
}

// SafetyContext is what a SafetyCheck sees about one grant attempt.
type SafetyContext struct {
	RewardType domain.RewardType
	Amount     int64
	Loop       string
	DedupeKey  string
	Metadata   map[string]any
}

// SafetyDecision is the verdict of a SafetyCheck. Reason is stored on denial.
type SafetyDecision struct {
	Allowed bool
	Reason  string
}

// SafetyCheck decides whether a grant may proceed. Errors abort the grant
// without writing anything.
type SafetyCheck interface {
	Check(ctx context.Context, userID string, sc SafetyContext) (SafetyDecision, error)
}

// AllowAll is the default SafetyCheck.
type AllowAll struct{}

// Check implements SafetyCheck.
func (AllowAll) Check(context.Context, string, SafetyContext) (SafetyDecision, error) {
	return SafetyDecision{Allowed: true}, nil
}

// GrantRequest asks for one reward. RewardType may be empty for internal
// callers, in which case the policy's type is used. A nil Amount uses the
// policy amount.
type GrantRequest struct {
	UserID     string
	RewardType string
	Amount     *int64
	Loop       string
	DedupeKey  string
	Metadata   map[string]any
}

// GrantResult is the outcome of a grant attempt. Replayed results carry the
// stored outcome of the first attempt.
type GrantResult struct {
	RewardID       string              `json:"rewardId"`
	UserID         string              `json:"userId"`
	RewardType     domain.RewardType   `json:"rewardType"`
	Amount         int64               `json:"amount"`
	Status         domain.RewardStatus `json:"status"`
	DeniedReason   string              `json:"deniedReason,omitempty"`
	UnitCostCents  int64               `json:"unitCostCents"`
	TotalCostCents int64               `json:"totalCostCents"`
	DedupeKey      string              `json:"dedupeKey"`
	GrantedAt      *time.Time          `json:"grantedAt,omitempty"`
	Replayed       bool                `json:"replayed"`
}

// Granted reports whether the reward was paid.
func (r *GrantResult) Granted() bool { return r.Status == domain.RewardGranted }

// GrantPlan is the read-side outcome of Plan. When Existing is set the dedupe
// key is already terminal and settling it is a replay.
type GrantPlan struct {
	Request  GrantRequest
	Persona  domain.PersonaType
	Policy   Policy
	Amount   int64
	Decision SafetyDecision
	Existing *domain.RewardGrant
}

// RewardService settles reward grants against the policy catalog.
type RewardService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Policies is the reward policy catalog.
	Policies *PolicyCatalog
	// Personas resolves the user's persona.
	Personas PersonaResolver
	// Safety vets each new grant; nil allows all.
	Safety SafetyCheck
	// Events receives reward.granted and reward.denied. Nil discards.
	Events analytics.Emitter
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// NewRewardService constructs a RewardService with the allow-all safety check
// and personas read from user_profiles.
func NewRewardService(db *gorm.DB, policies *PolicyCatalog, events analytics.Emitter) *RewardService {
	return &RewardService{
		DB:       db,
		Policies: policies,
		Personas: ProfilePersonas{DB: db},
		Safety:   AllowAll{},
		Events:   events,
		Now:      time.Now,
	}
}

// Grant plans and settles req in one transaction, then emits analytics for a
// newly settled outcome.
func (s *RewardService) Grant(ctx context.Context, req GrantRequest) (*GrantResult, error) {
	tr := otel.Tracer("services/RewardService")
	ctx, span := tr.Start(ctx, "Grant",
		trace.WithAttributes(
			attribute.String("user.id", req.UserID),
			attribute.String("reward.type", req.RewardType),
			attribute.String("dedupe_key", req.DedupeKey),
		),
	)
	defer span.End()

	plan, err := s.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	if plan.Existing != nil {
		res, err := s.replay(ctx, s.DB, plan.Existing)
		if err != nil {
			return nil, err
		}
		s.Observe(res)
		return res, nil
	}

	var res *GrantResult
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var serr error
		res, serr = s.Settle(ctx, tx, plan)
		return serr
	})
	if err != nil {
		return nil, err
	}
	s.Observe(res)
	span.SetAttributes(
		attribute.String("reward.status", string(res.Status)),
		attribute.Bool("replayed", res.Replayed),
	)
	return res, nil
}

// Plan validates req and gathers everything Settle needs without writing.
func (s *RewardService) Plan(ctx context.Context, req GrantRequest) (*GrantPlan, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.DedupeKey = strings.TrimSpace(req.DedupeKey)
	if req.UserID == "" {
		return nil, ErrInvalidUser
	}
	if req.DedupeKey == "" || len(req.DedupeKey) > maxDedupeKeyLen {
		return nil, ErrInvalidDedupeKey
	}
	var wantType domain.RewardType
	if req.RewardType != "" {
		t, err := domain.ParseRewardType(req.RewardType)
		if err != nil {
			return nil, err
		}
		wantType = t
	}
	if req.Loop != "" {
		if _, err := domain.ParseLoop(req.Loop); err != nil {
			return nil, err
		}
	}
	if req.Amount != nil && (*req.Amount <= 0 || *req.Amount > maxRewardAmount) {
		return nil, ErrInvalidAmount
	}

	existing, err := repo.GetRewardByDedupeKey(ctx, s.DB, req.DedupeKey)
	switch {
	case err == nil && existing.UserID != req.UserID:
		return nil, ErrDedupeKeyConflict
	case err == nil && existing.Status.Terminal():
		return &GrantPlan{Request: req, Existing: existing}, nil
	case err != nil && !errors.Is(err, repo.ErrNotFound):
		return nil, err
	}

	persona, err := s.personas().Persona(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve persona: %w", err)
	}
	policy, ok := s.Policies.Lookup(persona, config.TriggerFVMComplete)
	if !ok {
		return nil, ErrPolicyNotFound
	}
	if wantType != "" && wantType != policy.RewardType {
		return nil, ErrRewardTypeMismatch
	}
	amount := policy.Amount
	if req.Amount != nil {
		amount = *req.Amount
	}

	decision, err := s.safety().Check(ctx, req.UserID, SafetyContext{
		RewardType: policy.RewardType,
		Amount:     amount,
		Loop:       req.Loop,
		DedupeKey:  req.DedupeKey,
		Metadata:   req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("safety check: %w", err)
	}

	return &GrantPlan{
		Request:  req,
		Persona:  persona,
		Policy:   policy,
		Amount:   amount,
		Decision: decision,
	}, nil
}

// Settle writes p inside tx. It must be called within a transaction so the
// grant row and its ledger entry commit together. If another caller settled
// the same dedupe key first, the stored outcome is returned as a replay and
// nothing is written; a key settled for another user yields
// ErrDedupeKeyConflict.
func (s *RewardService) Settle(ctx context.Context, tx *gorm.DB, p *GrantPlan) (*GrantResult, error) {
	if p.Existing != nil {
		return s.replay(ctx, tx, p.Existing)
	}

	now := s.now().UTC()
	g := &domain.RewardGrant{
		ID:        uuid.NewString(),
		UserID:    p.Request.UserID,
		Type:      p.Policy.RewardType,
		Amount:    p.Amount,
		Loop:      p.Request.Loop,
		DedupeKey: p.Request.DedupeKey,
	}
	entryType := domain.LedgerRewardGrant
	if p.Decision.Allowed {
		g.Status = domain.RewardGranted
		g.GrantedAt = &now
	} else {
		reason := p.Decision.Reason
		if reason == "" {
			reason = "denied by safety check"
		}
		g.Status = domain.RewardDenied
		g.DeniedReason = &reason
		entryType = domain.LedgerRewardDenied
	}

	stored, settled, err := repo.UpsertTerminalReward(ctx, tx, g)
	if err != nil {
		return nil, err
	}
	if !settled {
		if stored.UserID != p.Request.UserID {
			return nil, ErrDedupeKeyConflict
		}
		return s.replay(ctx, tx, stored)
	}

	quantity := p.Amount
	if p.Policy.RewardType.Unitless() {
		quantity = 1
	}
	meta := datatypes.JSONMap{
		"dedupe_key": p.Request.DedupeKey,
		"persona":    string(p.Persona),
		"trigger":    p.Policy.Trigger,
	}
	for k, v := range p.Request.Metadata {
		if _, reserved := meta[k]; !reserved {
			meta[k] = v
		}
	}
	if stored.DeniedReason != nil {
		meta["denied_reason"] = *stored.DeniedReason
	}
	entry := &domain.LedgerEntry{
		ID:             uuid.NewString(),
		UserID:         stored.UserID,
		RewardID:       &stored.ID,
		Type:           entryType,
		UnitCostCents:  p.Policy.UnitCostCents,
		Quantity:       quantity,
		TotalCostCents: p.Policy.UnitCostCents * quantity,
		Metadata:       meta,
		CreatedAt:      now,
	}
	if p.Request.Loop != "" {
		loop := p.Request.Loop
		entry.Loop = &loop
	}
	if err := repo.CreateLedgerEntry(ctx, tx, entry); err != nil {
		return nil, err
	}

	return resultOf(stored, entry, false), nil
}

// Observe records metrics and, for newly settled outcomes, emits analytics.
// Callers that settle inside their own transaction call it after commit.
func (s *RewardService) Observe(res *GrantResult) {
	if res.Replayed {
		observability.RewardOutcomes.WithLabelValues(string(res.RewardType), "replayed").Inc()
		return
	}
	observability.RewardOutcomes.WithLabelValues(string(res.RewardType), string(res.Status)).Inc()
	entryType := domain.LedgerRewardGrant
	name := analytics.EventRewardGranted
	if res.Status == domain.RewardDenied {
		entryType = domain.LedgerRewardDenied
		name = analytics.EventRewardDenied
	}
	observability.LedgerSpendCents.WithLabelValues(string(entryType)).Add(float64(res.TotalCostCents))

	if s.Events == nil {
		return
	}
	props := map[string]any{
		"reward_id":        res.RewardID,
		"reward_type":      string(res.RewardType),
		"amount":           res.Amount,
		"total_cost_cents": res.TotalCostCents,
		"dedupe_key":       res.DedupeKey,
	}
	if res.DeniedReason != "" {
		props["denied_reason"] = res.DeniedReason
	}
	s.Events.Emit(analytics.Event{Name: name, UserID: res.UserID, Properties: props, At: s.now()})
}

// replay rebuilds the result of a previously settled grant from its row and
// ledger entry.
func (s *RewardService) replay(ctx context.Context, db *gorm.DB, g *domain.RewardGrant) (*GrantResult, error) {
	entry, err := repo.GetLedgerByRewardID(ctx, db, g.ID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if entry == nil {
		log.Warn().Str("reward_id", g.ID).Msg("terminal reward has no ledger entry")
	}
	return resultOf(g, entry, true), nil
}

func resultOf(g *domain.RewardGrant, e *domain.LedgerEntry, replayed bool) *GrantResult {
	res := &GrantResult{
		RewardID:   g.ID,
		UserID:     g.UserID,
		RewardType: g.Type,
		Amount:     g.Amount,
		Status:     g.Status,
		DedupeKey:  g.DedupeKey,
		GrantedAt:  g.GrantedAt,
		Replayed:   replayed,
	}
	if g.DeniedReason != nil {
		res.DeniedReason = *g.DeniedReason
	}
	if e != nil {
		res.UnitCostCents = e.UnitCostCents
		res.TotalCostCents = e.TotalCostCents
	}
	return res
}

func (s *RewardService) personas() PersonaResolver {
	if s.Personas != nil {
		return s.Personas
	}
	return ProfilePersonas{DB: s.DB}
}

func (s *RewardService) safety() SafetyCheck {
	if s.Safety != nil {
		return s.Safety
	}
	return AllowAll{}
}

func (s *RewardService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
