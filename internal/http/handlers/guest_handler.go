// Guest and sign-in HTTP handlers.
//
// A visitor may finish a challenge before having an account. The completion
// is stored against a client-generated guest session id together with any
// attribution cookie; after sign-in the client calls /auth/complete, which
// reports invite.joined and converts those completions for the new user.
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/growth-loop-backend/internal/analytics"
	"github.com/tbourn/growth-loop-backend/internal/attribution"
	"github.com/tbourn/growth-loop-backend/internal/domain"
	"github.com/tbourn/growth-loop-backend/internal/http/middleware"
	"github.com/tbourn/growth-loop-backend/internal/repo"
	"github.com/tbourn/growth-loop-backend/internal/services"
)

// GuestCompletionRequest is the JSON payload for an anonymous completion.
type GuestCompletionRequest struct {
	GuestSessionID string `json:"guestSessionId" binding:"required" example:"g_5b1c7f0e2a9d"`
	ChallengeID    string `json:"challengeId" binding:"required" example:"challenge-42"`
	Score          int    `json:"score" example:"80"`
}

// CompleteSignInRequest is the JSON payload sent after authentication.
type CompleteSignInRequest struct {
	// GuestSessionID names completions to convert. Optional.
	GuestSessionID string `json:"guestSessionId,omitempty" example:"g_5b1c7f0e2a9d"`
}

// CompleteSignInResponse reports what sign-in completion did.
type CompleteSignInResponse struct {
	Attributed bool                      `json:"attributed"`
	InviterID  string                    `json:"inviterId,omitempty"`
	Conversion services.ConversionReport `json:"conversion"`
}

// RecordGuestCompletion godoc
// @ID          recordGuestCompletion
// @Summary     Record a guest completion
// @Description Stores a challenge finished before sign-in. Attribution from the signed cookie is captured on the record.
// @Tags        Guest
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.GuestCompletionRequest  true  "Completion"
//
// @Success     201  {object}  domain.GuestCompletion
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /guest/completions [post]
func (h *Handlers) RecordGuestCompletion(c *gin.Context) {
	var req GuestCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	var attrib *attribution.Record
	if rec, found := middleware.ReadAttribution(c, h.cookies); found {
		attrib = &rec
	}

	gc, err := h.conversions.RecordGuestCompletion(c.Request.Context(), services.GuestCompletionInput{
		GuestSessionID: req.GuestSessionID,
		ChallengeID:    req.ChallengeID,
		Score:          req.Score,
		Attribution:    attrib,
	})
	switch {
	case err == nil:
	case errors.Is(err, services.ErrInvalidGuestSession), errors.Is(err, services.ErrInvalidCompletion):
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not record completion", err)
		return
	}
	ok(c, http.StatusCreated, gc)
}

// CompleteSignIn godoc
// @ID          completeSignIn
// @Summary     Finish sign-in
// @Description Emits invite.joined for a valid attribution cookie, clears it, and converts the guest session's pending completions.
// @Tags        Guest
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.CompleteSignInRequest  false  "Guest session to convert"
//
// @Success     200  {object}  handlers.CompleteSignInResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid guest session"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/complete [post]
func (h *Handlers) CompleteSignIn(c *gin.Context) {
	var req CompleteSignInRequest
	// An empty body is allowed.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	uid := middleware.UserID(c)

	var resp CompleteSignInResponse
	var attrib *attribution.Record
	if rec, found := middleware.ReadAttribution(c, h.cookies); found {
		attrib = &rec
		resp.Attributed = true
		resp.InviterID = rec.InviterID
		h.events.Emit(analytics.Event{
			Name:       analytics.EventInviteJoined,
			UserID:     uid,
			Properties: rec.Fields(),
			At:         h.now().UTC(),
		})
	}
	middleware.ClearAttribution(c, h.cookieOpt)

	if req.GuestSessionID != "" {
		report, err := h.conversions.Convert(c.Request.Context(), req.GuestSessionID, uid, attrib)
		switch {
		case err == nil:
			resp.Conversion = report
		case errors.Is(err, services.ErrInvalidGuestSession), errors.Is(err, services.ErrInvalidUser):
			fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		case errors.Is(err, domain.ErrUnknownPersona):
			fail(c, http.StatusUnprocessableEntity, ErrCodeConversionFailed, err.Error())
			return
		default:
			fail(c, http.StatusInternalServerError, ErrCodeConversionFailed, "could not convert guest session", err)
			return
		}
	}
	ok(c, http.StatusOK, resp)
}

// ListReferralsResponse lists referrals credited to the caller.
type ListReferralsResponse struct {
	Referrals []domain.Referral `json:"referrals"`
}

// ListReferrals godoc
// @ID          listReferrals
// @Summary     List my referrals
// @Description Returns referrals credited to the caller as inviter, newest first.
// @Tags        Guest
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object}  handlers.ListReferralsResponse
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /referrals [get]
func (h *Handlers) ListReferrals(c *gin.Context) {
	refs, err := repo.ListReferralsByInviter(c.Request.Context(), h.db, middleware.UserID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list referrals", err)
		return
	}
	if refs == nil {
		refs = []domain.Referral{}
	}
	ok(c, http.StatusOK, ListReferralsResponse{Referrals: refs})
}
