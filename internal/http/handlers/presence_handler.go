// Presence HTTP handlers.
//
// Presence is best effort: a failing store reads as zero and pings are
// always acknowledged, so these endpoints never surface store errors.
package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/growth-loop-backend/internal/http/middleware"
	"github.com/tbourn/growth-loop-backend/internal/observability"
	"github.com/tbourn/growth-loop-backend/internal/presence"
)

const maxPresenceSubjects = 50

// PresenceCountResponse is the count for one subject.
type PresenceCountResponse struct {
	Subject string `json:"subject" example:"deck:algebra-1"`
	Count   int64  `json:"count" example:"12"`
	Healthy bool   `json:"healthy"`
}

// PresenceCountsResponse carries counts for many subjects.
type PresenceCountsResponse struct {
	Counts  map[string]int64 `json:"counts"`
	Healthy bool             `json:"healthy"`
}

// PingPresence godoc
// @ID          pingPresence
// @Summary     Mark presence
// @Description Marks the caller (or the anonymous client) as present on a subject. Always returns 200.
// @Tags        Presence
// @Produce     json
//
// @Param       subject  path  string  true  "Subject"  example(deck:algebra-1)
//
// @Success     200  {object}  map[string]bool
// @Router      /presence/{subject}/ping [post]
func (h *Handlers) PingPresence(c *gin.Context) {
	subject := c.Param("subject")
	if presence.ValidSubject(subject) {
		member := middleware.UserID(c)
		if member == "" {
			member = "anon:" + c.ClientIP()
		}
		h.presence.Ping(c.Request.Context(), subject, member)
	}
	ok(c, http.StatusOK, gin.H{"ok": true})
}

// PresenceCount godoc
// @ID          presenceCount
// @Summary     Count present users
// @Tags        Presence
// @Produce     json
//
// @Param       subject  path  string  true  "Subject"  example(deck:algebra-1)
//
// @Success     200  {object}  handlers.PresenceCountResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid subject"
// @Router      /presence/{subject} [get]
func (h *Handlers) PresenceCount(c *gin.Context) {
	subject := c.Param("subject")
	if !presence.ValidSubject(subject) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid subject")
		return
	}
	ok(c, http.StatusOK, PresenceCountResponse{
		Subject: subject,
		Count:   h.presence.Count(c.Request.Context(), subject),
		Healthy: h.presence.Healthy(),
	})
}

// PresenceCounts godoc
// @ID          presenceCounts
// @Summary     Count present users for many subjects
// @Tags        Presence
// @Produce     json
//
// @Param       subjects  query  string  true  "Comma-separated subjects (max 50)"  example(deck:a,deck:b)
//
// @Success     200  {object}  handlers.PresenceCountsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid subjects"
// @Router      /presence [get]
func (h *Handlers) PresenceCounts(c *gin.Context) {
	var subjects []string
	for _, s := range strings.Split(c.Query("subjects"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			subjects = append(subjects, s)
		}
	}
	if len(subjects) == 0 || len(subjects) > maxPresenceSubjects {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "subjects must list 1-50 subjects")
		return
	}
	for _, s := range subjects {
		if !presence.ValidSubject(s) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid subject: "+s)
			return
		}
	}
	ok(c, http.StatusOK, PresenceCountsResponse{
		Counts:  h.presence.Counts(c.Request.Context(), subjects),
		Healthy: h.presence.Healthy(),
	})
}

// PresenceStream godoc
// @ID          presenceStream
// @Summary     Stream presence changes
// @Description Server-sent events: "count" and "health" events carry a presence.Message; comment frames keep the connection alive.
// @Tags        Presence
// @Produce     text/event-stream
//
// @Param       subject  path  string  true  "Subject"  example(deck:algebra-1)
//
// @Success     200  {object}  presence.Message
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid subject"
// @Router      /presence/{subject}/stream [get]
func (h *Handlers) PresenceStream(c *gin.Context) {
	subject := c.Param("subject")
	if !presence.ValidSubject(subject) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid subject")
		return
	}

	// The server write timeout would otherwise cut the stream.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	observability.PresenceStreams.Inc()
	defer observability.PresenceStreams.Dec()

	ctx := c.Request.Context()
	err := h.presence.Watch(ctx, subject, func(m presence.Message) error {
		if m.Type == presence.MessageKeepAlive {
			if _, err := io.WriteString(c.Writer, ": keep-alive\n\n"); err != nil {
				return err
			}
		} else {
			c.SSEvent(string(m.Type), m)
		}
		c.Writer.Flush()
		return ctx.Err()
	})
	if err != nil && ctx.Err() == nil {
		middleware.LoggerFrom(c).Debug().Err(err).Str("subject", subject).Msg("presence stream closed")
	}
}
