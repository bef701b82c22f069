package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/tbourn/growth-loop-backend/internal/domain"
	"github.com/tbourn/growth-loop-backend/internal/http/middleware"
)

func TestTrackXP_Created(t *testing.T) {
	env := newEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/xp/track",
		TrackXPRequest{EventType: "challenge.completed", RawXP: i64(120)}, asUser(testUser))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	got := decode[TrackXPResponse](t, w)
	if got.Event == nil || got.Event.PersonaType != domain.PersonaStudent || got.Event.RawXP != 120 {
		t.Fatalf("event = %+v", got.Event)
	}
	if got.XP != 120 || got.Level != 2 {
		t.Fatalf("totals = %+v", got.Totals)
	}

	// Totals are top-level fields, not nested.
	var raw map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, k := range []string{"xp", "level", "progress", "nextNeeded", "event"} {
		if _, found := raw[k]; !found {
			t.Fatalf("top-level %q missing: %s", k, w.Body.String())
		}
	}
	if _, nested := raw["totals"]; nested {
		t.Fatalf("unexpected nested totals: %s", w.Body.String())
	}
}

func TestTrackXP_IdempotentReplay(t *testing.T) {
	env := newEnv(t)
	body := TrackXPRequest{EventType: "deck.mastered", PersonaType: "parent", RawXP: i64(40)}
	key := withHeader(middleware.HeaderIdempotencyKey, "track-001")

	first := env.do(t, http.MethodPost, "/api/v1/xp/track", body, asUser(testUser), key)
	if first.Code != http.StatusCreated {
		t.Fatalf("first = %d body=%s", first.Code, first.Body.String())
	}
	second := env.do(t, http.MethodPost, "/api/v1/xp/track", body, asUser(testUser), key)
	if second.Code != http.StatusOK {
		t.Fatalf("replay = %d body=%s", second.Code, second.Body.String())
	}
	if second.Header().Get(middleware.HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("replay header missing")
	}
	a, b := decode[TrackXPResponse](t, first), decode[TrackXPResponse](t, second)
	if a.Event.ID != b.Event.ID || b.XP != 40 {
		t.Fatalf("replay returned %+v / %+v", b.Event, b.Totals)
	}
	if n := countRows(t, env.db, &domain.XpEvent{}); n != 1 {
		t.Fatalf("xp events = %d, want 1", n)
	}

	// Keys are scoped per user.
	other := env.do(t, http.MethodPost, "/api/v1/xp/track", body, asUser("user-2"), key)
	if other.Code != http.StatusCreated {
		t.Fatalf("other user = %d", other.Code)
	}
}

func TestTrackXP_Validation(t *testing.T) {
	env := newEnv(t)

	cases := []struct {
		name string
		body any
		code string
	}{
		{"unknown event", TrackXPRequest{EventType: "level.skipped"}, ErrCodeValidation},
		{"unknown persona", TrackXPRequest{EventType: "invite.sent", PersonaType: "admin"}, ErrCodeValidation},
		{"zero xp", TrackXPRequest{EventType: "invite.sent", RawXP: i64(0)}, ErrCodeValidation},
		{"too much xp", TrackXPRequest{EventType: "invite.sent", RawXP: i64(10_001)}, ErrCodeValidation},
		{"missing event", map[string]any{}, ErrCodeBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/xp/track", tc.body, asUser(testUser))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
			}
			if code := errCode(t, w); code != tc.code {
				t.Fatalf("code = %q, want %q", code, tc.code)
			}
		})
	}
}

func TestTrackXP_BadIdempotencyKey(t *testing.T) {
	env := newEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/xp/track", TrackXPRequest{EventType: "invite.sent"},
		asUser(testUser), withHeader(middleware.HeaderIdempotencyKey, "has spaces"))
	if w.Code != http.StatusBadRequest || errCode(t, w) != "bad_idempotency_key" {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
}

func TestXPBalance(t *testing.T) {
	env := newEnv(t)
	for _, in := range []TrackXPRequest{
		{EventType: "challenge.completed", PersonaType: "student", RawXP: i64(90)},
		{EventType: "challenge.completed", PersonaType: "student", RawXP: i64(30)},
		{EventType: "streak.extended", PersonaType: "tutor", RawXP: i64(5)},
	} {
		if w := env.do(t, http.MethodPost, "/api/v1/xp/track", in, asUser(testUser)); w.Code != http.StatusCreated {
			t.Fatalf("track = %d", w.Code)
		}
	}

	w := env.do(t, http.MethodGet, "/api/v1/xp/balance", nil, asUser(testUser))
	all := decode[XPBalanceResponse](t, w)
	if all.XP != 125 || all.Level != 2 || all.PersonaType != "" || all.UserID != testUser {
		t.Fatalf("all = %+v", all)
	}

	w = env.do(t, http.MethodGet, "/api/v1/xp/balance?persona=tutor", nil, asUser(testUser))
	tutor := decode[XPBalanceResponse](t, w)
	if tutor.XP != 5 || tutor.Level != 1 || tutor.PersonaType != "tutor" || tutor.NextNeeded != 95 {
		t.Fatalf("tutor = %+v", tutor)
	}

	w = env.do(t, http.MethodGet, "/api/v1/xp/balance?persona=robot", nil, asUser(testUser))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad persona = %d", w.Code)
	}
}
