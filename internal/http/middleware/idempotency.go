// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for unsafe HTTP methods. It
// validates an Idempotency-Key request header, resolves the operation scope
// from the matched route, optionally asks a lookup whether (user, scope, key)
// already completed, and annotates the request context so downstream code can:
//   - read the normalized key (GetIdempotencyKey) and scope (IdempotencyScope)
//   - detect replayed requests (IsReplay)
//   - bypass rate limiting when a replay is served
//
// Persistence stays behind the IdempotencyLookup function type; handlers own
// the stored reference and decide how to serve a replay.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client's key.
//
// A client keeps the key stable across retries of one logical operation, so
// a retried grant or XP track resolves to the result already stored.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is set to "true" on responses served from a
// stored result. Handlers set it; this middleware only detects the replay.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

// Gin context keys for idempotency state. Read them through the accessors.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemScope  = "idem.scope"
	ctxKeyIdemReplay = "idem.replay" // bool: true when a stored replay exists
	ctxKeyRateBypass = "rate.bypass" // bool: true to skip rate limiting
)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
// The bool is false when the request carried no key.
//
// Handlers read the key here rather than from the header, which may have
// failed validation.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IdempotencyScope returns the operation scope for the matched route, or ""
// when the route does not participate in idempotency.
func IdempotencyScope(c *gin.Context) string {
	v, _ := c.Get(ctxKeyIdemScope)
	return asString(v)
}

// IsReplay reports whether the lookup found a completed request for this
// (user, scope, key).
//
// When true the handler may skip work and serve the persisted outcome; the
// rate limiter has already been told to let the request through.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Defaults to ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Scopes maps registered route patterns (c.FullPath) to operation scopes,
	// e.g. "/api/v1/xp/track" -> "xp.track". Routes not listed are still
	// validated but never looked up.
	Scopes map[string]string
}

// IdempotencyLookup answers whether a still-valid result exists for
// (userID, scope, key) at now. Implementations consult the stored record and
// its expiry; the TTL is theirs to enforce.
//
// Errors are treated as a miss so a failing store never blocks a request.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header when present and
// stashes it with the route's scope in the request context.
//
// Behavior:
//   - No header: the middleware is a no-op.
//   - Invalid key (too long or outside Pattern): 400 bad_idempotency_key.
//   - Scoped route with a caller and a lookup hit: the request is marked as a
//     replay and flagged to bypass rate limiting.
//   - Otherwise the next handler runs unchanged.
//
// It must run after Authenticate so the lookup sees the caller's identity.
// It never serves a stored payload itself.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortJSON(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		scope := opts.Scopes[c.FullPath()]
		if scope != "" {
			c.Set(ctxKeyIdemScope, scope)
		}

		uid := UserID(c)
		if lookup != nil && scope != "" && uid != "" {
			if exists, _ := lookup(c.Request.Context(), uid, scope, key, time.Now().UTC()); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}
