package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/growth-loop-backend/internal/analytics"
	"github.com/tbourn/growth-loop-backend/internal/attribution"
	"github.com/tbourn/growth-loop-backend/internal/config"
	"github.com/tbourn/growth-loop-backend/internal/http/middleware"
	"github.com/tbourn/growth-loop-backend/internal/presence"
	"github.com/tbourn/growth-loop-backend/internal/ratelimit"
	"github.com/tbourn/growth-loop-backend/internal/repo"
	"github.com/tbourn/growth-loop-backend/internal/services"
	"github.com/tbourn/growth-loop-backend/internal/signing"
)

// ---------- test DB ----------

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()

	// Unique DSN per call to avoid cross-test contamination
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// ---------- fakes ----------

type recEmitter struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recEmitter) Emit(e analytics.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recEmitter) named(name string) []analytics.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []analytics.Event
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// counterStore backs a real InviteLimiter with a map.
type counterStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (s *counterStore) Counter(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[key], nil
}

func (s *counterStore) Increment(_ context.Context, key string, _ time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	return s.counts[key], nil
}

type fakePresence struct {
	mu      sync.Mutex
	pings   map[string][]string
	counts  map[string]int64
	healthy bool
	frames  []presence.Message
}

func (f *fakePresence) Ping(_ context.Context, subject, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings[subject] = append(f.pings[subject], userID)
}

func (f *fakePresence) Count(_ context.Context, subject string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[subject]
}

func (f *fakePresence) Counts(ctx context.Context, subjects []string) map[string]int64 {
	out := make(map[string]int64, len(subjects))
	for _, s := range subjects {
		out[s] = f.Count(ctx, s)
	}
	return out
}

func (f *fakePresence) Healthy() bool { return f.healthy }

// Watch replays the configured frames and returns.
func (f *fakePresence) Watch(_ context.Context, _ string, emit func(presence.Message) error) error {
	for _, m := range f.frames {
		if err := emit(m); err != nil {
			return err
		}
	}
	return nil
}

// ---------- environment ----------

const testUser = "user-1"

var testNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db       *gorm.DB
	router   *gin.Engine
	events   *recEmitter
	quota    *counterStore
	presence *fakePresence
	links    *services.SmartLinkService
	rewards  *services.RewardService
	cookies  *attribution.Codec
}

const inviteLimit = 3

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	signer, err := signing.NewCodec([]byte("handler-test-secret-0123456789"))
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	catalog, err := services.NewPolicyCatalog(config.DefaultPolicies())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	env := &testEnv{
		db:       db,
		events:   &recEmitter{},
		quota:    &counterStore{counts: map[string]int64{}},
		presence: &fakePresence{pings: map[string][]string{}, counts: map[string]int64{}, healthy: true},
		cookies:  attribution.NewCodec(signer),
	}
	limiter := ratelimit.NewInviteLimiter(env.quota, inviteLimit)

	env.links = services.NewSmartLinkService(db, signer, limiter, env.events)
	env.links.PublicBaseURL = "https://app.example.com"
	env.links.Now = func() time.Time { return testNow }
	env.rewards = services.NewRewardService(db, catalog, env.events)
	xp := services.NewXPService(db)
	conv := services.NewConversionService(db, xp, env.rewards, env.events)

	h := New(Deps{
		DB:          db,
		Links:       env.links,
		Quota:       limiter,
		Rewards:     env.rewards,
		XP:          xp,
		Presence:    env.presence,
		Conversions: conv,
		Cookies:     env.cookies,
		Events:      env.events,
		Now:         func() time.Time { return testNow },
	})
	env.router = testRouter(h)
	return env
}

// testRouter mirrors the production route table without the ops middleware.
func testRouter(h *Handlers) *gin.Engine {
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Authenticate(""),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{
			Scopes: map[string]string{"/api/v1/xp/track": ScopeXPTrack},
		}, func(ctx context.Context, uid, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, h.db, uid, scope, key, now)
			return err == nil && rec != nil, err
		}),
	)
	r.GET("/l/:code", h.ResolveSmartLink)

	api := r.Group("/api/v1")
	api.POST("/presence/:subject/ping", h.PingPresence)
	api.GET("/presence/:subject", h.PresenceCount)
	api.GET("/presence/:subject/stream", h.PresenceStream)
	api.GET("/presence", h.PresenceCounts)
	api.POST("/guest/completions", h.RecordGuestCompletion)

	authed := api.Group("", middleware.RequireUser())
	authed.POST("/smart-links", h.CreateSmartLink)
	authed.GET("/invites/limit", h.InviteLimit)
	authed.POST("/rewards/grant", h.GrantReward)
	authed.GET("/rewards/ledger", h.ListLedger)
	authed.POST("/xp/track", h.TrackXP)
	authed.GET("/xp/balance", h.XPBalance)
	authed.POST("/auth/complete", h.CompleteSignIn)
	authed.GET("/referrals", h.ListReferrals)
	return r
}

// ---------- request helpers ----------

type reqOpt func(*http.Request)

func asUser(id string) reqOpt {
	return func(r *http.Request) { r.Header.Set(middleware.HeaderUserID, id) }
}

func withHeader(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func withCookie(name, value string) reqOpt {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

func (e *testEnv) do(t *testing.T, method, path string, body any, opts ...reqOpt) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(req)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[ErrorResponse](t, w).Code
}

func responseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
