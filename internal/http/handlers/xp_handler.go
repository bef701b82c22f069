// XP HTTP handlers.
//
// This file exposes:
//   - POST /xp/track    (append an XP event; honours Idempotency-Key)
//   - GET  /xp/balance  (derived totals, optionally per persona)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/growth-loop-backend/internal/domain"
	"github.com/tbourn/growth-loop-backend/internal/http/middleware"
	"github.com/tbourn/growth-loop-backend/internal/repo"
	"github.com/tbourn/growth-loop-backend/internal/services"
)

// ScopeXPTrack is the idempotency scope of POST /xp/track.
const ScopeXPTrack = "xp.track"

//
// DTOs
//

// TrackXPRequest is the JSON payload for recording XP.
type TrackXPRequest struct {
	EventType   string         `json:"eventType" binding:"required" example:"challenge.completed"`
	PersonaType string         `json:"personaType,omitempty" example:"student"`
	ReferenceID *string        `json:"referenceId,omitempty" example:"challenge-42"`
	RawXP       *int64         `json:"rawXp,omitempty" example:"10"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TrackXPResponse carries the resulting totals ({xp, level, progress,
// nextNeeded} at the top level) alongside the stored event.
type TrackXPResponse struct {
	Event *domain.XpEvent `json:"event"`
	services.Totals
}

// XPBalanceResponse is the derived XP view for the caller.
type XPBalanceResponse struct {
	UserID      string `json:"userId" example:"user123"`
	PersonaType string `json:"personaType,omitempty" example:"student"`
	services.Totals
}

//
// Handlers
//

// TrackXP godoc
// @ID          trackXP
// @Summary     Record an XP event
// @Description Appends one XP event for the caller. With an Idempotency-Key, a retry returns the original event (200, Idempotency-Replayed: true) instead of recording again.
// @Tags        XP
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string  false "Optional idempotency key"  example(6e0d3c1e-7a0e-4f0b-a8c2-1d3d2b9d9a11)
// @Param       body             body    handlers.TrackXPRequest  true  "XP event"
//
// @Success     201  {object}  handlers.TrackXPResponse
// @Success     200  {object}  handlers.TrackXPResponse  "Idempotent replay"
// @Header      200  {string}  Idempotency-Replayed  "true when served from a stored result"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /xp/track [post]
func (h *Handlers) TrackXP(c *gin.Context) {
	ctx := c.Request.Context()
	uid := middleware.UserID(c)

	key, hasKey := middleware.GetIdempotencyKey(c)
	if hasKey && middleware.IsReplay(c) {
		if rec, err := repo.GetIdempotency(ctx, h.db, uid, middleware.IdempotencyScope(c), key, h.now().UTC()); err == nil && rec != nil {
			ev, err := repo.GetXpEvent(ctx, h.db, rec.ReferenceID)
			if err != nil {
				fail(c, http.StatusInternalServerError, ErrCodeTrackFailed, "could not load stored event", err)
				return
			}
			totals, err := h.xp.Totals(ctx, uid, &ev.PersonaType)
			if err != nil {
				fail(c, http.StatusInternalServerError, ErrCodeTrackFailed, "could not load totals", err)
				return
			}
			c.Header(middleware.HeaderIdempotencyReplayed, "true")
			ok(c, http.StatusOK, TrackXPResponse{Event: ev, Totals: totals})
			return
		}
	}

	var req TrackXPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	ev, err := h.xp.Record(ctx, services.XpInput{
		UserID:      uid,
		PersonaType: req.PersonaType,
		EventType:   req.EventType,
		ReferenceID: req.ReferenceID,
		Metadata:    req.Metadata,
		RawXP:       req.RawXP,
	})
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUnknownXpEventType),
		errors.Is(err, domain.ErrUnknownPersona),
		errors.Is(err, services.ErrInvalidXP),
		errors.Is(err, services.ErrInvalidUser):
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	default:
		fail(c, http.StatusInternalServerError, ErrCodeTrackFailed, "could not record xp", err)
		return
	}

	// Best-effort: a lost record only means a retry records again.
	if hasKey {
		if _, err := repo.CreateIdempotency(ctx, h.db, uid, ScopeXPTrack, key, ev.ID, http.StatusCreated, h.idemTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not stored")
		}
	}

	totals, err := h.xp.Totals(ctx, uid, &ev.PersonaType)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeTrackFailed, "could not load totals", err)
		return
	}
	ok(c, http.StatusCreated, TrackXPResponse{Event: ev, Totals: totals})
}

// XPBalance godoc
// @ID          xpBalance
// @Summary     XP totals
// @Description Returns the caller's XP, level and progress derived from the event log.
// @Tags        XP
// @Produce     json
// @Security    BearerAuth
//
// @Param       persona  query  string  false  "Limit to one persona"  Enums(student, parent, tutor)
//
// @Success     200  {object}  handlers.XPBalanceResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown persona"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /xp/balance [get]
func (h *Handlers) XPBalance(c *gin.Context) {
	uid := middleware.UserID(c)

	var persona *domain.PersonaType
	if raw := c.Query("persona"); raw != "" {
		p, err := domain.ParsePersona(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		persona = &p
	}

	totals, err := h.xp.Totals(c.Request.Context(), uid, persona)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not load totals", err)
		return
	}
	resp := XPBalanceResponse{UserID: uid, Totals: totals}
	if persona != nil {
		resp.PersonaType = string(*persona)
	}
	ok(c, http.StatusOK, resp)
}
