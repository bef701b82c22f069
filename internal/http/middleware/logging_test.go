package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

type errSentinel struct{}

func (e errSentinel) Error() string { return "boom" }

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/l/:code", func(c *gin.Context) {
		c.String(http.StatusOK, RequestIDFrom(c))
	})

	tests := []struct {
		name, in string
		keep     bool
	}{
		{"absent", "", false},
		{"uuid", "0b6f0c1e-8a55-4c57-9f65-3d5a3c2e9b11", true},
		{"proxy trace id", "1-67891233:abc.def_9", true},
		{"oversized", strings.Repeat("r", maxRequestIDLength+1), false},
		{"spaces", "rid with spaces", false},
		{"log injection", `rid","level":"panic`, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/l/abc", nil)
			if tc.in != "" {
				req.Header.Set(requestIDHeader, tc.in)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(requestIDHeader)
			if got == "" || got != w.Body.String() {
				t.Fatalf("header %q and context %q disagree", got, w.Body.String())
			}
			if (got == tc.in) != tc.keep {
				t.Fatalf("in=%q out=%q keep=%v", tc.in, got, tc.keep)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}), Recovery())
	r.POST("/api/v1/rewards/grant", func(c *gin.Context) { panic("nil policy") })
	r.GET("/presence/:subject/stream", func(c *gin.Context) {
		c.String(http.StatusOK, "event: presence\n")
		panic("stream write after flush")
	})

	t.Run("before write", func(t *testing.T) {
		buf.Reset()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/rewards/grant", nil)
		req.Header.Set(requestIDHeader, "rid-grant")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d", w.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("body: %v", err)
		}
		if body["code"] != "internal_error" || body["request_id"] != "rid-grant" {
			t.Fatalf("body = %v", body)
		}
		logs := buf.String()
		if !strings.Contains(logs, "panic recovered") || !strings.Contains(logs, `"route":"/api/v1/rewards/grant"`) {
			t.Fatalf("logs = %s", logs)
		}
		if strings.Contains(w.Body.String(), "nil policy") {
			t.Fatalf("panic value leaked: %s", w.Body.String())
		}
	})

	t.Run("after write", func(t *testing.T) {
		buf.Reset()
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/presence/deck-1/stream", nil))

		if strings.Contains(w.Body.String(), "internal_error") {
			t.Fatalf("error envelope appended to a started body: %q", w.Body.String())
		}
		if !strings.Contains(buf.String(), "panic recovered") {
			t.Fatalf("logs = %s", buf.String())
		}
	})
}

func TestLoggerFrom(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	scoped := zerolog.New(buf).With().Str("request_id", "rid-scoped").Logger()
	r := gin.New()
	r.GET("/global", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("global")
	})
	r.GET("/scoped", func(c *gin.Context) {
		c.Set(loggerKey, &scoped)
		LoggerFrom(c).Info().Msg("scoped")
	})
	r.GET("/wrong-type", func(c *gin.Context) {
		c.Set(loggerKey, scoped) // value, not pointer
		LoggerFrom(c).Info().Msg("wrong-type")
	})

	for _, p := range []string{"/global", "/scoped", "/wrong-type"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	for i, wantRID := range []bool{false, true, false} {
		if got := strings.Contains(lines[i], `"request_id":"rid-scoped"`); got != wantRID {
			t.Errorf("line %d request_id present=%v: %s", i, got, lines[i])
		}
	}
}

func TestTruncateAndAsString(t *testing.T) {
	for _, tc := range []struct {
		in   string
		max  int
		want string
	}{
		{"ref=abc", 32, "ref=abc"},
		{"code=abcdefgh", 7, "code=ab…"},
		{"anything", 0, "anything"},
	} {
		if got := truncate(tc.in, tc.max); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
	if asString("u-1") != "u-1" || asString(42) != "" || asString(nil) != "" {
		t.Error("asString")
	}
}
