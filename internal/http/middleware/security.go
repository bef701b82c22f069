package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions configures SecurityHeaders.
//
// NoStoreRoutes lists route patterns (as returned by c.FullPath) whose
// responses must never be cached: smart link redirects that set attribution
// cookies, and sign-in completion. NoStore applies the same to everything.
type SecurityOptions struct {
	EnableHSTS    bool          // only honoured on HTTPS requests
	HSTSMaxAge    time.Duration // <= 0 means 180 days
	NoStore       bool
	NoStoreRoutes []string
	EnablePolicy  bool // Permissions-Policy and X-Permitted-Cross-Domain-Policies
}

type header struct{ name, value string }

// SecurityHeaders adds hardening headers to every response. The header set
// is computed once; per request only the no-store and HSTS decisions vary.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	static := []header{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
	}
	if opt.EnablePolicy {
		static = append(static,
			header{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()"},
			header{"X-Permitted-Cross-Domain-Policies", "none"},
		)
	}
	noCache := []header{
		{"Cache-Control", "no-store"},
		{"Pragma", "no-cache"},
		{"Expires", "0"},
	}

	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains; preload"

	noStoreRoute := make(map[string]bool, len(opt.NoStoreRoutes))
	for _, p := range opt.NoStoreRoutes {
		noStoreRoute[p] = true
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range static {
			h.Set(kv.name, kv.value)
		}
		if opt.NoStore || noStoreRoute[c.FullPath()] {
			for _, kv := range noCache {
				h.Set(kv.name, kv.value)
			}
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		if h.Get(requestIDHeader) != "" {
			exposeHeader(h, requestIDHeader)
		}
		c.Next()
	}
}

// exposeHeader appends name to Access-Control-Expose-Headers once.
func exposeHeader(h http.Header, name string) {
	const key = "Access-Control-Expose-Headers"
	cur := h.Get(key)
	switch {
	case cur == "":
		h.Set(key, name)
	case !containsToken(cur, name):
		h.Set(key, cur+", "+name)
	}
}

func containsToken(list, tok string) bool {
	for _, part := range strings.Split(list, ",") {
		if strings.EqualFold(strings.TrimSpace(part), tok) {
			return true
		}
	}
	return false
}

// isHTTPS trusts X-Forwarded-Proto; the service always runs behind a proxy.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
