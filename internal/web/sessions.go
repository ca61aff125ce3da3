package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/session"
)

const defaultHistoryLimit = 20

// channelParam reads ?channel=, defaulting to the web channel.
func channelParam(c *gin.Context) (models.Channel, error) {
	raw := strings.TrimSpace(c.Query("channel"))
	if raw == "" {
		return models.ChannelWeb, nil
	}
	return models.ParseChannel(raw)
}

// GET /api/chats/:chat/sessions
func (s *Server) listSessions(c *gin.Context) {
	chatID := c.Param("chat")
	list, err := s.sessions.List(c.Request.Context(), chatID)
	if err != nil {
		respondErr(c, err)
		return
	}
	activeID := ""
	if active, err := s.sessions.Active(c.Request.Context(), chatID, models.ChannelWeb); err == nil && active != nil {
		activeID = active.ID
	}
	out := make([]sessionView, 0, len(list))
	for i := range list {
		v := newSessionView(&list[i])
		v.Active = list[i].ID == activeID
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// POST /api/chats/:chat/sessions?channel=
func (s *Server) createSession(c *gin.Context) {
	ch, err := channelParam(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	sess, err := s.sessions.CreateAndActivate(c.Request.Context(), c.Param("chat"), ch)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": newSessionView(sess)})
}

// GET /api/chats/:chat/active?channel=
func (s *Server) getActive(c *gin.Context) {
	ch, err := channelParam(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	sess, err := s.sessions.GetOrCreateActive(c.Request.Context(), c.Param("chat"), ch)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": newSessionView(sess)})
}

type setActiveRequest struct {
	Target string `json:"target" binding:"required"`
}

// PUT /api/chats/:chat/active?channel=
func (s *Server) setActive(c *gin.Context) {
	ch, err := channelParam(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := s.sessions.SetActive(c.Request.Context(), c.Param("chat"), req.Target, ch)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": newSessionView(sess)})
}

// GET /api/sessions/:id/history?limit=&chat=
func (s *Server) sessionHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, fmt.Errorf("limit must be a positive integer"))
			return
		}
		limit = n
	}
	ctx := c.Request.Context()
	id, err := s.sessions.ResolveID(ctx, c.Param("id"), c.Query("chat"))
	if err != nil {
		respondErr(c, err)
		return
	}
	runs, err := s.sessions.ListHistory(ctx, id, limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	out := make([]runView, 0, len(runs))
	for i := range runs {
		out = append(out, newRunView(&runs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"session_id": id, "runs": out})
}

// GET /api/chats/:chat/bindings
func (s *Server) exportBindings(c *gin.Context) {
	b, err := s.sessions.ExportBindings(c.Request.Context(), c.Param("chat"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bindings": b})
}

// POST /api/bindings
func (s *Server) importBindings(c *gin.Context) {
	var body struct {
		Bindings session.Bindings `json:"bindings" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	res, err := s.sessions.ImportBindings(c.Request.Context(), body.Bindings)
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"applied": res.Applied, "skipped": res.Skipped})
}
