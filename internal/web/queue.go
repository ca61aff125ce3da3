package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/queue"
)

const defaultQueueLimit = 20

type submitRequest struct {
	Prompt string `json:"prompt" binding:"required"`
	// Target selects a session by slot, id or prefix; empty means the
	// chat's active session for Channel.
	Target  string `json:"target"`
	Channel string `json:"channel"`
}

// POST /api/chats/:chat/prompts
func (s *Server) submitPrompt(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		badRequest(c, fmt.Errorf("prompt is required"))
		return
	}
	ctx := c.Request.Context()
	chatID := c.Param("chat")

	var (
		sess *models.Session
		err  error
	)
	if strings.TrimSpace(req.Target) != "" {
		sess, err = s.sessions.EnsureForTarget(ctx, chatID, req.Target)
	} else {
		ch := models.ChannelWeb
		if req.Channel != "" {
			if ch, err = models.ParseChannel(req.Channel); err != nil {
				badRequest(c, err)
				return
			}
		}
		sess, err = s.sessions.GetOrCreateActive(ctx, chatID, ch)
	}
	if err != nil {
		respondErr(c, err)
		return
	}

	job, err := s.pool.Submit(ctx, sess, req.Prompt)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": newQueuedView(job)})
}

// GET /api/chats/:chat/queue?limit=
func (s *Server) listQueue(c *gin.Context) {
	limit := defaultQueueLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = n
	}
	jobs, err := s.queue.List(c.Request.Context(), c.Param("chat"), limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	out := make([]queuedView, 0, len(jobs))
	for i := range jobs {
		out = append(out, newQueuedView(&jobs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"jobs": out})
}

// GET /api/queue/:id
func (s *Server) getQueued(c *gin.Context) {
	job, err := s.queue.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": newQueuedView(job)})
}

// GET /api/queue/:id/events
//
// Streams the job's current state followed by its live events until the
// terminal status. The subscription is taken before the store is read so
// a transition between the two cannot be missed.
func (s *Server) streamQueued(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	sub := s.hub.Subscribe(id)
	defer sub.Close()

	job, err := s.queue.Get(ctx, id)
	if err != nil {
		respondErr(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	writeSSE(c.Writer, queue.EventStatus, newEventView(queue.Event{Kind: queue.EventStatus, JobID: id, Job: job}))
	c.Writer.Flush()
	if job.Terminal() {
		return
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": ping\n\n")
			c.Writer.Flush()
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			writeSSE(c.Writer, ev.Kind, newEventView(ev))
			c.Writer.Flush()
			if ev.Terminal() {
				return
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData)
}
