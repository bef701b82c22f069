package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/growth-loop-backend/internal/domain"
)

func TestGetIdempotency_Lookup(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()
	now := time.Now().UTC()

	for _, rec := range []domain.Idempotency{
		{ID: "live", UserID: "alice", Scope: "xp.track", Key: "k-live", ReferenceID: "evt-1", Status: 201, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
		{ID: "stale", UserID: "alice", Scope: "xp.track", Key: "k-stale", ReferenceID: "evt-0", Status: 201, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
	} {
		rec := rec
		if err := db.Create(&rec).Error; err != nil {
			t.Fatalf("seed %s: %v", rec.ID, err)
		}
	}

	tests := []struct {
		name              string
		user, scope, key  string
		wantRef           string
	}{
		{"live", "alice", "xp.track", "k-live", "evt-1"},
		{"expired", "alice", "xp.track", "k-stale", ""},
		{"other user", "bob", "xp.track", "k-live", ""},
		{"other scope", "alice", "smart_links.issue", "k-live", ""},
		{"blank scope", "alice", "  ", "k-live", ""},
		{"blank key", "alice", "xp.track", "", ""},
	}
	for _, tc := range tests {
		rec, err := GetIdempotency(ctx, db, tc.user, tc.scope, tc.key, now)
		if tc.wantRef == "" {
			if rec != nil || !errors.Is(err, ErrNotFound) {
				t.Errorf("%s: got (%+v, %v), want ErrNotFound", tc.name, rec, err)
			}
			continue
		}
		if err != nil || rec.ReferenceID != tc.wantRef || rec.Status != 201 {
			t.Errorf("%s: got (%+v, %v)", tc.name, rec, err)
		}
	}
}

func TestCreateIdempotency_DuplicatesPerUserScopeKey(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()
	before := time.Now().UTC()

	rec, err := CreateIdempotency(ctx, db, "alice", "xp.track", "k-1", "evt-1", 201, 90*time.Minute)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == "" || rec.ReferenceID != "evt-1" || rec.Status != 201 {
		t.Fatalf("record = %+v", rec)
	}
	if ttl := rec.ExpiresAt.Sub(before); ttl < 90*time.Minute || ttl > 91*time.Minute {
		t.Fatalf("expires in %v, want ~90m", ttl)
	}

	if _, err := CreateIdempotency(ctx, db, "alice", "xp.track", "k-1", "evt-2", 201, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("same tuple: want ErrDuplicate, got %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "bob", "xp.track", "k-1", "evt-3", 201, time.Hour); err != nil {
		t.Fatalf("other user must not collide: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, "alice", "smart_links.issue", "k-1", "sl-1", 201, time.Hour); err != nil {
		t.Fatalf("other scope must not collide: %v", err)
	}
}

func TestCreateIdempotency_ExpiredKeyIsReusable(t *testing.T) {
	db := newTestDB(t, &domain.Idempotency{})
	ctx := context.Background()
	now := time.Now().UTC()
	if err := db.Create(&domain.Idempotency{
		ID: "old", UserID: "alice", Scope: "xp.track", Key: "k-1", ReferenceID: "evt-old",
		Status: 201, CreatedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-time.Minute),
	}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec, err := CreateIdempotency(ctx, db, "alice", "xp.track", "k-1", "evt-new", 201, time.Hour)
	if err != nil || rec.ReferenceID != "evt-new" {
		t.Fatalf("reuse: rec=%+v err=%v", rec, err)
	}
	got, err := GetIdempotency(ctx, db, "alice", "xp.track", "k-1", now)
	if err != nil || got.ReferenceID != "evt-new" {
		t.Fatalf("lookup after reuse: %+v err=%v", got, err)
	}
}

func TestCreateIdempotency_StorageError(t *testing.T) {
	db := newTestDB(t) // no schema
	_, err := CreateIdempotency(context.Background(), db, "alice", "xp.track", "k", "r", 201, time.Minute)
	if err == nil || errors.Is(err, ErrDuplicate) {
		t.Fatalf("want a storage error, got %v", err)
	}
}
