// Smart link HTTP handlers.
//
// This file exposes the invite entry points:
//   - POST /smart-links     (issue, quota enforced)
//   - GET  /invites/limit   (quota status)
//   - GET  /l/{code}        (public resolve + redirect)
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/growth-loop-backend/internal/domain"
	"github.com/tbourn/growth-loop-backend/internal/http/middleware"
	"github.com/tbourn/growth-loop-backend/internal/ratelimit"
	"github.com/tbourn/growth-loop-backend/internal/services"
)

// maxLinkTTL bounds the lifetime a caller may request.
const maxLinkTTL = 30 * 24 * time.Hour

//
// DTOs
//

// CreateSmartLinkRequest is the JSON payload for issuing a link.
type CreateSmartLinkRequest struct {
	// Loop tags the growth mechanic.
	Loop string `json:"loop" binding:"required" example:"results_share"`
	// Params describes the deep destination (resultId, deckId or cohortId).
	Params map[string]any `json:"params"`
	// TTLSeconds overrides the default lifetime (max 30 days).
	TTLSeconds int64 `json:"ttlSeconds,omitempty" example:"604800"`
}

// SmartLinkResponse describes an issued link.
type SmartLinkResponse struct {
	Code      string           `json:"code" example:"q8m1N2x0Rk6c3v7T1bQ9aA"`
	URL       string           `json:"url" example:"https://app.example.com/l/q8m1N2x0Rk6c3v7T1bQ9aA"`
	Loop      string           `json:"loop" example:"results_share"`
	ExpiresAt time.Time        `json:"expiresAt"`
	Quota     ratelimit.Status `json:"quota"`
}

//
// Handlers
//

// CreateSmartLink godoc
// @ID          createSmartLink
// @Summary     Issue a smart link
// @Description Issues a signed share link for the caller. Consumes one unit of the daily invite quota.
// @Tags        SmartLinks
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.CreateSmartLinkRequest  true  "Link payload"
//
// @Success     201  {object}  handlers.SmartLinkResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid loop or params"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     429  {object}  handlers.ErrorResponse  "Daily invite limit reached"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /smart-links [post]
func (h *Handlers) CreateSmartLink(c *gin.Context) {
	var req CreateSmartLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second
	if req.TTLSeconds < 0 || ttl > maxLinkTTL {
		fail(c, http.StatusBadRequest, ErrCodeValidation, "ttlSeconds must be between 0 and 2592000")
		return
	}

	out, err := h.links.Issue(c.Request.Context(), services.IssueInput{
		InviterID: middleware.UserID(c),
		Loop:      req.Loop,
		Params:    req.Params,
		TTL:       ttl,
	})
	switch {
	case err == nil:
	case errors.Is(err, services.ErrQuotaExceeded):
		if out != nil {
			setQuotaHeaders(c, out.Quota)
		}
		fail(c, http.StatusTooManyRequests, ErrCodeQuotaExceeded, err.Error())
		return
	case errors.Is(err, domain.ErrUnknownLoop),
		errors.Is(err, services.ErrInvalidParams),
		errors.Is(err, services.ErrInvalidInviter):
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	default:
		fail(c, http.StatusInternalServerError, ErrCodeIssueFailed, "could not issue smart link", err)
		return
	}

	setQuotaHeaders(c, out.Quota)
	ok(c, http.StatusCreated, SmartLinkResponse{
		Code:      out.Link.Code,
		URL:       out.URL,
		Loop:      out.Link.Loop,
		ExpiresAt: out.Link.ExpiresAt,
		Quota:     out.Quota,
	})
}

// InviteLimit godoc
// @ID          inviteLimit
// @Summary     Daily invite quota
// @Description Returns how many invites the caller may still send today (UTC).
// @Tags        SmartLinks
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object}  ratelimit.Status
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Router      /invites/limit [get]
func (h *Handlers) InviteLimit(c *gin.Context) {
	st := h.quota.Check(c.Request.Context(), middleware.UserID(c), h.now())
	setQuotaHeaders(c, st)
	ok(c, http.StatusOK, st)
}

// ResolveSmartLink godoc
// @ID          resolveSmartLink
// @Summary     Follow a smart link
// @Description Redirects to the link's destination and stores a signed attribution cookie. Unknown, expired or tampered links redirect to "/" without attribution.
// @Tags        SmartLinks
//
// @Param       code          path   string  true   "Link code"
// @Param       utm_source    query  string  false  "UTM source"
// @Param       utm_medium    query  string  false  "UTM medium"
// @Param       utm_campaign  query  string  false  "UTM campaign"
//
// @Success     302  {string}  string  "Found"
// @Header      302  {string}  Location  "Destination route"
// @Router      /l/{code} [get]
func (h *Handlers) ResolveSmartLink(c *gin.Context) {
	res := h.links.Resolve(c.Request.Context(), c.Param("code"), c.Request.URL.RawQuery)
	if res.Attribution != nil {
		if err := middleware.SetAttribution(c, h.cookies, *res.Attribution, h.cookieOpt); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("attribution cookie not set")
		}
	}
	c.Redirect(http.StatusFound, res.Route)
}

func setQuotaHeaders(c *gin.Context, st ratelimit.Status) {
	if st.Limit <= 0 {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.FormatInt(st.Limit, 10))
	c.Header("X-RateLimit-Remaining", strconv.FormatInt(st.Remaining, 10))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(st.ResetAt.Unix(), 10))
}
