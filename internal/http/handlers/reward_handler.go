// Reward HTTP handlers.
//
// This file exposes:
//   - POST /rewards/grant   (idempotent by dedupeKey)
//   - GET  /rewards/ledger  (limit/offset, ETag support)
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/growth-loop-backend/internal/domain"
	"github.com/tbourn/growth-loop-backend/internal/http/middleware"
	"github.com/tbourn/growth-loop-backend/internal/repo"
	"github.com/tbourn/growth-loop-backend/internal/services"
)

//
// DTOs
//

// GrantRewardRequest is the JSON payload for a reward grant. UserID may be
// omitted; when present it must name the caller.
type GrantRewardRequest struct {
	UserID     string         `json:"userId" example:"user123"`
	RewardType string         `json:"rewardType" binding:"required" example:"ai_minutes"`
	Amount     *int64         `json:"amount,omitempty" example:"15"`
	Loop       string         `json:"loop,omitempty" example:"buddy_challenge"`
	DedupeKey  string         `json:"dedupeKey" binding:"required" example:"fvm:user123:challenge-42"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// GrantDeniedResponse is returned with 403 when a grant is denied.
type GrantDeniedResponse struct {
	Reason string                `json:"reason" example:"velocity limit"`
	Reward *services.GrantResult `json:"reward"`
}

// GrantReplayResponse is returned with 200 when the dedupe key was already
// granted.
type GrantReplayResponse struct {
	Message string                `json:"message" example:"already granted"`
	Reward  *services.GrantResult `json:"reward"`
}

// ListLedgerResponse wraps one window of ledger entries with its
// limit/offset/total/hasMore metadata.
type ListLedgerResponse struct {
	Entries        []domain.LedgerEntry `json:"entries"`
	TotalCostCents int64                `json:"totalCostCents" example:"120"` // whole filter, not just this window
	Pagination
}

//
// Handlers
//

// GrantReward godoc
// @ID          grantReward
// @Summary     Grant a reward
// @Description Settles one reward for the caller. The dedupeKey makes the call idempotent: a repeat returns the stored outcome without a second ledger entry.
// @Tags        Rewards
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.GrantRewardRequest  true  "Grant payload"
//
// @Success     201  {object}  services.GrantResult
// @Success     200  {object}  handlers.GrantReplayResponse  "Already granted"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     403  {object}  handlers.GrantDeniedResponse  "Denied"
// @Failure     409  {object}  handlers.ErrorResponse  "Dedupe key used by another user"
// @Failure     422  {object}  handlers.ErrorResponse  "No policy or reward type mismatch"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /rewards/grant [post]
func (h *Handlers) GrantReward(c *gin.Context) {
	var req GrantRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	uid := middleware.UserID(c)
	if body := strings.TrimSpace(req.UserID); body != "" && body != uid {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "cannot grant rewards to another user")
		return
	}

	res, err := h.rewards.Grant(c.Request.Context(), services.GrantRequest{
		UserID:     uid,
		RewardType: req.RewardType,
		Amount:     req.Amount,
		Loop:       req.Loop,
		DedupeKey:  req.DedupeKey,
		Metadata:   req.Metadata,
	})
	switch {
	case err == nil:
	case errors.Is(err, services.ErrInvalidUser),
		errors.Is(err, services.ErrInvalidDedupeKey),
		errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, domain.ErrUnknownRewardType),
		errors.Is(err, domain.ErrUnknownLoop):
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	case errors.Is(err, services.ErrPolicyNotFound):
		fail(c, http.StatusUnprocessableEntity, ErrCodePolicyNotFound, err.Error())
		return
	case errors.Is(err, services.ErrRewardTypeMismatch):
		fail(c, http.StatusUnprocessableEntity, ErrCodeRewardMismatch, err.Error())
		return
	case errors.Is(err, services.ErrDedupeKeyConflict):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
		return
	default:
		fail(c, http.StatusInternalServerError, ErrCodeGrantFailed, "could not settle reward", err)
		return
	}

	if res.Replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
	}
	switch {
	case !res.Granted():
		ok(c, http.StatusForbidden, GrantDeniedResponse{Reason: res.DeniedReason, Reward: res})
	case res.Replayed:
		ok(c, http.StatusOK, GrantReplayResponse{Message: "already granted", Reward: res})
	default:
		ok(c, http.StatusCreated, res)
	}
}

// ListLedger godoc
// @ID          listLedger
// @Summary     List ledger entries (paginated)
// @Description Returns the caller's cost ledger, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Rewards
// @Produce     json
// @Security    BearerAuth
//
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       type           query   string  false "Entry type filter"           Enums(reward_grant, reward_denied)
// @Param       limit          query   int     false "Max entries"                  minimum(1) maximum(100) default(20)
// @Param       offset         query   int     false "Entries to skip"              minimum(0) default(0)
//
// @Success     200  {object} handlers.ListLedgerResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /rewards/ledger [get]
func (h *Handlers) ListLedger(c *gin.Context) {
	ctx := c.Request.Context()
	win := clampWindow(c)

	f := repo.LedgerFilter{UserID: middleware.UserID(c)}
	if raw := c.Query("type"); raw != "" {
		t, valid := domain.ParseLedgerEntryType(raw)
		if !valid {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "type must be reward_grant or reward_denied")
			return
		}
		f.Type = t
	}

	// ETag pre-check (best effort).
	count, maxTS, err := repo.LedgerStats(ctx, h.db, f)
	if err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"ledger:%s:%s:%d:%d:%d:%d"`, f.UserID, f.Type, win.Limit, win.Offset, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	total, err := repo.CountLedger(ctx, h.db, f)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list ledger", err)
		return
	}
	items, err := repo.ListLedgerPage(ctx, h.db, f, win.Offset, win.Limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list ledger", err)
		return
	}
	if items == nil {
		items = []domain.LedgerEntry{}
	}
	spent, err := repo.SumLedgerCost(ctx, h.db, f)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list ledger", err)
		return
	}

	ok(c, http.StatusOK, ListLedgerResponse{
		Entries:        items,
		TotalCostCents: spent,
		Pagination:     paginationOf(win, total),
	})
}
