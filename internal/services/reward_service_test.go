package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tbourn/growth-loop-backend/internal/analytics"
	"github.com/tbourn/growth-loop-backend/internal/config"
	"github.com/tbourn/growth-loop-backend/internal/domain"
	"github.com/tbourn/growth-loop-backend/internal/repo"
)

// ----- Fakes -----

type denyAll struct{ reason string }

func (d denyAll) Check(context.Context, string, SafetyContext) (SafetyDecision, error) {
	return SafetyDecision{Allowed: false, Reason: d.reason}, nil
}

type brokenSafety struct{}

func (brokenSafety) Check(context.Context, string, SafetyContext) (SafetyDecision, error) {
	return SafetyDecision{}, errors.New("fraud service down")
}

type staticPersonas map[string]domain.PersonaType

func (p staticPersonas) Persona(_ context.Context, userID string) (domain.PersonaType, error) {
	if v, ok := p[userID]; ok {
		return v, nil
	}
	return domain.DefaultPersona, nil
}

func newRewardService(t *testing.T) (*RewardService, *recEmitter) {
	t.Helper()
	ev := &recEmitter{}
	s := NewRewardService(newTestDB(t), mustCatalog(t), ev)
	s.Now = fixedClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	return s, ev
}

// ----- Tests -----

func TestGrant_GrantsOnceAndReplays(t *testing.T) {
	s, ev := newRewardService(t)
	ctx := context.Background()
	req := GrantRequest{UserID: "u1", RewardType: "ai_minutes", Loop: "buddy_challenge", DedupeKey: "fvm:u1"}

	first, err := s.Grant(ctx, req)
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if !first.Granted() || first.Replayed {
		t.Fatalf("first = %+v", first)
	}
	if first.Amount != 15 || first.UnitCostCents != 2 || first.TotalCostCents != 30 {
		t.Fatalf("amounts = %+v", first)
	}

	second, err := s.Grant(ctx, req)
	if err != nil {
		t.Fatalf("Grant replay: %v", err)
	}
	if !second.Replayed || second.RewardID != first.RewardID || second.TotalCostCents != first.TotalCostCents {
		t.Fatalf("replay = %+v, first = %+v", second, first)
	}

	if n := countRows(t, s.DB, &domain.RewardGrant{}); n != 1 {
		t.Fatalf("reward rows = %d, want 1", n)
	}
	if n := countRows(t, s.DB, &domain.LedgerEntry{}); n != 1 {
		t.Fatalf("ledger rows = %d, want 1", n)
	}
	if got := ev.named(analytics.EventRewardGranted); len(got) != 1 {
		t.Fatalf("reward.granted emitted %d times, want 1", len(got))
	}
}

func TestGrant_PersonaSelectsPolicy(t *testing.T) {
	s, _ := newRewardService(t)
	ctx := context.Background()
	setPersona(t, s.DB, "p1", domain.PersonaParent)
	setPersona(t, s.DB, "t1", domain.PersonaTutor)

	parent, err := s.Grant(ctx, GrantRequest{UserID: "p1", DedupeKey: "k-p1"})
	if err != nil {
		t.Fatalf("Grant parent: %v", err)
	}
	if parent.RewardType != domain.RewardStreakShield || parent.Amount != 1 || parent.TotalCostCents != 25 {
		t.Fatalf("parent = %+v", parent)
	}

	tutor, err := s.Grant(ctx, GrantRequest{UserID: "t1", RewardType: "credits", Amount: i64(3), DedupeKey: "k-t1"})
	if err != nil {
		t.Fatalf("Grant tutor: %v", err)
	}
	if tutor.Amount != 3 || tutor.TotalCostCents != 30 {
		t.Fatalf("tutor = %+v", tutor)
	}
}

func TestGrant_BadgeQuantityIsOne(t *testing.T) {
	ev := &recEmitter{}
	cat, err := NewPolicyCatalog([]config.RewardPolicy{
		{Persona: "student", Trigger: config.TriggerFVMComplete, RewardType: "badge", Amount: 5, UnitCostCents: 7},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	s := NewRewardService(newTestDB(t), cat, ev)

	res, err := s.Grant(context.Background(), GrantRequest{UserID: "u1", DedupeKey: "badge:u1"})
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	entry, err := repo.GetLedgerByRewardID(context.Background(), s.DB, res.RewardID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if entry.Quantity != 1 || entry.TotalCostCents != 7 {
		t.Fatalf("badge entry = %+v", entry)
	}
}

func TestGrant_DeniedWritesSimulatedLedgerAndReplaysDenial(t *testing.T) {
	s, ev := newRewardService(t)
	s.Safety = denyAll{reason: "velocity"}
	ctx := context.Background()
	req := GrantRequest{UserID: "u1", RewardType: "ai_minutes", DedupeKey: "fvm:u1"}

	res, err := s.Grant(ctx, req)
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if res.Status != domain.RewardDenied || res.DeniedReason != "velocity" {
		t.Fatalf("res = %+v", res)
	}
	entry, err := repo.GetLedgerByRewardID(ctx, s.DB, res.RewardID)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if entry.Type != domain.LedgerRewardDenied || entry.TotalCostCents != 30 {
		t.Fatalf("entry = %+v", entry)
	}

	// Once denied, the key stays denied even if safety would now allow it.
	s.Safety = AllowAll{}
	again, err := s.Grant(ctx, req)
	if err != nil {
		t.Fatalf("Grant replay: %v", err)
	}
	if !again.Replayed || again.Status != domain.RewardDenied || again.RewardID != res.RewardID {
		t.Fatalf("again = %+v", again)
	}
	if got := ev.named(analytics.EventRewardDenied); len(got) != 1 {
		t.Fatalf("reward.denied emitted %d times", len(got))
	}
	if got := ev.named(analytics.EventRewardGranted); len(got) != 0 {
		t.Fatalf("unexpected reward.granted")
	}
}

func TestGrant_PendingRowIsSettled(t *testing.T) {
	s, _ := newRewardService(t)
	ctx := context.Background()
	pending := &domain.RewardGrant{
		ID: "g-pending", UserID: "u1", Type: domain.RewardAIMinutes, Amount: 15,
		DedupeKey: "fvm:u1", Status: domain.RewardPending,
	}
	if err := s.DB.Create(pending).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := s.Grant(ctx, GrantRequest{UserID: "u1", DedupeKey: "fvm:u1"})
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if res.Replayed || res.RewardID != "g-pending" || !res.Granted() {
		t.Fatalf("res = %+v", res)
	}
	if n := countRows(t, s.DB, &domain.LedgerEntry{}); n != 1 {
		t.Fatalf("ledger rows = %d", n)
	}
}

func TestGrant_ValidationAndPolicyErrors(t *testing.T) {
	s, _ := newRewardService(t)
	ctx := context.Background()
	setPersona(t, s.DB, "p1", domain.PersonaParent)

	cases := []struct {
		name string
		req  GrantRequest
		want error
	}{
		{"no user", GrantRequest{DedupeKey: "k"}, ErrInvalidUser},
		{"no key", GrantRequest{UserID: "u1"}, ErrInvalidDedupeKey},
		{"long key", GrantRequest{UserID: "u1", DedupeKey: strings.Repeat("k", 201)}, ErrInvalidDedupeKey},
		{"unknown type", GrantRequest{UserID: "u1", DedupeKey: "k", RewardType: "gold"}, domain.ErrUnknownRewardType},
		{"unknown loop", GrantRequest{UserID: "u1", DedupeKey: "k", Loop: "spam"}, domain.ErrUnknownLoop},
		{"zero amount", GrantRequest{UserID: "u1", DedupeKey: "k", Amount: i64(0)}, ErrInvalidAmount},
		{"huge amount", GrantRequest{UserID: "u1", DedupeKey: "k", Amount: i64(maxRewardAmount + 1)}, ErrInvalidAmount},
		{"type mismatch", GrantRequest{UserID: "p1", DedupeKey: "k", RewardType: "ai_minutes"}, ErrRewardTypeMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Grant(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if n := countRows(t, s.DB, &domain.RewardGrant{}); n != 0 {
		t.Fatalf("rejected grants must not write, got %d", n)
	}
}

func TestGrant_PolicyNotFound(t *testing.T) {
	cat, err := NewPolicyCatalog([]config.RewardPolicy{
		{Persona: "tutor", Trigger: config.TriggerFVMComplete, RewardType: "credits", Amount: 1, UnitCostCents: 1},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	s := NewRewardService(newTestDB(t), cat, nil)
	if _, err := s.Grant(context.Background(), GrantRequest{UserID: "student-1", DedupeKey: "k"}); !errors.Is(err, ErrPolicyNotFound) {
		t.Fatalf("err = %v, want ErrPolicyNotFound", err)
	}
}

func TestGrant_SafetyErrorAbortsWithoutWrites(t *testing.T) {
	s, _ := newRewardService(t)
	s.Safety = brokenSafety{}
	if _, err := s.Grant(context.Background(), GrantRequest{UserID: "u1", DedupeKey: "k"}); err == nil {
		t.Fatalf("expected error")
	}
	if n := countRows(t, s.DB, &domain.RewardGrant{}); n != 0 {
		t.Fatalf("rows = %d", n)
	}
}

func TestPlan_ExistingTerminalShortCircuits(t *testing.T) {
	s, _ := newRewardService(t)
	s.Personas = staticPersonas{}
	ctx := context.Background()
	if _, err := s.Grant(ctx, GrantRequest{UserID: "u1", DedupeKey: "k"}); err != nil {
		t.Fatalf("Grant: %v", err)
	}

	plan, err := s.Plan(ctx, GrantRequest{UserID: "u1", DedupeKey: "k"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Existing == nil || plan.Existing.Status != domain.RewardGranted {
		t.Fatalf("plan = %+v", plan)
	}
}

// A dedupe key settled for one user never replays to another.
func TestGrant_DedupeKeyOwnedByFirstUser(t *testing.T) {
	s, ev := newRewardService(t)
	ctx := context.Background()
	first, err := s.Grant(ctx, GrantRequest{UserID: "u1", RewardType: "ai_minutes", DedupeKey: "shared"})
	if err != nil {
		t.Fatalf("Grant u1: %v", err)
	}

	res, err := s.Grant(ctx, GrantRequest{UserID: "u2", RewardType: "ai_minutes", DedupeKey: "shared"})
	if !errors.Is(err, ErrDedupeKeyConflict) {
		t.Fatalf("Grant u2 err = %v, res = %+v", err, res)
	}
	if res != nil {
		t.Fatalf("u2 received %+v", res)
	}

	again, err := s.Grant(ctx, GrantRequest{UserID: "u1", RewardType: "ai_minutes", DedupeKey: "shared"})
	if err != nil || !again.Replayed || again.RewardID != first.RewardID {
		t.Fatalf("u1 replay = %+v, %v", again, err)
	}
	if n := countRows(t, s.DB, &domain.LedgerEntry{}); n != 1 {
		t.Fatalf("ledger rows = %d, want 1", n)
	}
	if got := ev.named(analytics.EventRewardGranted); len(got) != 1 {
		t.Fatalf("granted events = %d", len(got))
	}
}

// A plan made before another user settled the key fails at Settle.
func TestSettle_KeySettledByAnotherUserInBetween(t *testing.T) {
	s, _ := newRewardService(t)
	ctx := context.Background()
	plan, err := s.Plan(ctx, GrantRequest{UserID: "u2", RewardType: "ai_minutes", DedupeKey: "race"})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if _, err := s.Grant(ctx, GrantRequest{UserID: "u1", RewardType: "ai_minutes", DedupeKey: "race"}); err != nil {
		t.Fatalf("Grant u1: %v", err)
	}

	if _, err := s.Settle(ctx, s.DB, plan); !errors.Is(err, ErrDedupeKeyConflict) {
		t.Fatalf("Settle err = %v, want ErrDedupeKeyConflict", err)
	}
	if n := countRows(t, s.DB, &domain.LedgerEntry{}); n != 1 {
		t.Fatalf("ledger rows = %d, want 1", n)
	}
}

// Concurrent grants with one dedupe key settle exactly once.
func TestGrant_ConcurrentSameDedupeKey(t *testing.T) {
	ev := &recEmitter{}
	s := NewRewardService(newFileDB(t), mustCatalog(t), ev)
	ctx := context.Background()
	req := GrantRequest{UserID: "u1", RewardType: "ai_minutes", DedupeKey: "fvm:race"}

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*GrantResult
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Grant(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			results = append(results, res)
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("errors: %v", errs)
	}
	fresh := 0
	for _, r := range results {
		if !r.Replayed {
			fresh++
		}
		if r.RewardID != results[0].RewardID || !r.Granted() {
			t.Fatalf("divergent result %+v vs %+v", r, results[0])
		}
	}
	if fresh != 1 {
		t.Fatalf("fresh settlements = %d, want 1", fresh)
	}
	if n := countRows(t, s.DB, &domain.LedgerEntry{}); n != 1 {
		t.Fatalf("ledger rows = %d, want 1", n)
	}
	if got := ev.named(analytics.EventRewardGranted); len(got) != 1 {
		t.Fatalf("reward.granted = %d, want 1", len(got))
	}
}

func TestNewPolicyCatalog_RejectsInvalid(t *testing.T) {
	_, err := NewPolicyCatalog([]config.RewardPolicy{
		{Persona: "alien", Trigger: config.TriggerFVMComplete, RewardType: "credits", Amount: 1},
	})
	if err == nil {
		t.Fatalf("expected error")
	}

	cat := mustCatalog(t)
	for _, p := range []domain.PersonaType{domain.PersonaStudent, domain.PersonaParent, domain.PersonaTutor} {
		if _, ok := cat.Lookup(p, config.TriggerFVMComplete); !ok {
			t.Errorf("no default policy for %s", p)
		}
	}
	if _, ok := cat.Lookup(domain.PersonaStudent, "on_something_else"); ok {
		t.Errorf("unexpected policy for unknown trigger")
	}
}
