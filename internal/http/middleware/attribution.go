// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file carries the attribution cookie across requests. The smart link
// redirect writes it; Propagate reports the first authenticated or anonymous
// visit that still carries it as invite.opened and drops a short-lived marker
// cookie so the event fires once per hour rather than once per request.
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/growth-loop-backend/internal/analytics"
	"github.com/tbourn/growth-loop-backend/internal/attribution"
)

// CookieOptions holds the attributes shared by attribution cookies.
type CookieOptions struct {
	Secure bool
	Domain string
}

// SetAttribution writes the signed attribution cookie.
func SetAttribution(c *gin.Context, codec *attribution.Codec, r attribution.Record, opt CookieOptions) error {
	v, err := codec.Encode(r)
	if err != nil {
		return err
	}
	setCookie(c, attribution.CookieName, v, attribution.MaxAge, opt)
	return nil
}

// ClearAttribution expires the attribution and marker cookies.
func ClearAttribution(c *gin.Context, opt CookieOptions) {
	setCookie(c, attribution.CookieName, "", -1, opt)
	setCookie(c, attribution.MarkerCookieName, "", -1, opt)
}

// ReadAttribution returns the authenticated record from the request cookie.
// Missing, unsigned and tampered cookies all report ok=false.
func ReadAttribution(c *gin.Context, codec *attribution.Codec) (attribution.Record, bool) {
	raw, err := c.Cookie(attribution.CookieName)
	if err != nil || raw == "" {
		return attribution.Record{}, false
	}
	r, err := codec.Decode(raw)
	if err != nil {
		return attribution.Record{}, false
	}
	return r, true
}

// Propagate emits invite.opened for a valid attribution cookie when the
// marker cookie is absent, then sets the marker. The event carries the user
// id when authentication has already run.
func Propagate(codec *attribution.Codec, events analytics.Emitter, opt CookieOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := c.Cookie(attribution.MarkerCookieName); err == nil {
			c.Next()
			return
		}
		rec, ok := ReadAttribution(c, codec)
		if !ok {
			c.Next()
			return
		}
		events.Emit(analytics.Event{
			Name:       analytics.EventInviteOpened,
			UserID:     UserID(c),
			Properties: rec.Fields(),
			At:         time.Now().UTC(),
		})
		setCookie(c, attribution.MarkerCookieName, "1", attribution.MarkerMaxAge, opt)
		c.Next()
	}
}

// setCookie writes a Lax, HttpOnly cookie on path "/". A negative maxAge
// deletes it.
func setCookie(c *gin.Context, name, value string, maxAge time.Duration, opt CookieOptions) {
	secs := int(maxAge / time.Second)
	if maxAge < 0 {
		secs = -1
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   opt.Domain,
		MaxAge:   secs,
		Secure:   opt.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
