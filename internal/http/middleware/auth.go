// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements edge authentication. A bearer JWT (HS256) carries the
// user id in its "sub" claim. When no secret is configured the X-User-ID
// header is trusted instead, which is only meant for local development and
// tests. Routes that need an identity add RequireUser.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// ctxKeyUserID is where the authenticated user id lives in the Gin context.
	ctxKeyUserID = "userID"
	// HeaderUserID is the development identity header.
	HeaderUserID = "X-User-ID"
)

var errBadToken = errors.New("invalid bearer token")

// UserID returns the authenticated user id, or "" for anonymous requests.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SetUserID stores id as the authenticated user.
func SetUserID(c *gin.Context, id string) { c.Set(ctxKeyUserID, id) }

// Authenticate resolves the caller's identity. A malformed or invalid bearer
// token is rejected with 401; a missing one leaves the request anonymous.
func Authenticate(secret string) gin.HandlerFunc {
	key := []byte(secret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	return func(c *gin.Context) {
		authz := strings.TrimSpace(c.GetHeader("Authorization"))
		if authz != "" && len(key) > 0 {
			sub, err := subject(parser, key, authz)
			if err != nil {
				abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
				return
			}
			SetUserID(c, sub)
			c.Next()
			return
		}
		if len(key) == 0 {
			if id := strings.TrimSpace(c.GetHeader(HeaderUserID)); id != "" && len(id) <= 64 {
				SetUserID(c, id)
			}
		}
		c.Next()
	}
}

// RequireUser rejects anonymous requests with 401.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		c.Next()
	}
}

func subject(p *jwt.Parser, key []byte, authz string) (string, error) {
	raw, found := strings.CutPrefix(authz, "Bearer ")
	if !found || raw == "" {
		return "", errBadToken
	}
	var claims jwt.RegisteredClaims
	tok, err := p.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return key, nil })
	if err != nil || !tok.Valid {
		return "", errBadToken
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" || len(sub) > 64 {
		return "", errBadToken
	}
	return sub, nil
}

// abortJSON writes the standard error envelope from middleware, which cannot
// import the handlers package.
func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}
