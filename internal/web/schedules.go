package web

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/scheduler"
)

type scheduleRequest struct {
	Target   string `json:"target" binding:"required"`
	Prompt   string `json:"prompt" binding:"required"`
	Cron     string `json:"cron"`
	At       string `json:"at"` // RFC 3339; makes the job run once
	Timezone string `json:"timezone"`
}

// GET /api/chats/:chat/schedules
func (s *Server) listSchedules(c *gin.Context) {
	jobs, err := s.schedules.List(c.Request.Context(), c.Param("chat"))
	if err != nil {
		respondErr(c, err)
		return
	}
	out := make([]scheduleView, 0, len(jobs))
	for i := range jobs {
		out = append(out, newScheduleView(&jobs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"schedules": out})
}

// POST /api/chats/:chat/schedules
func (s *Server) createSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	spec := scheduler.JobSpec{
		ChatID:   c.Param("chat"),
		Target:   req.Target,
		Cron:     req.Cron,
		Prompt:   req.Prompt,
		Timezone: req.Timezone,
	}
	ctx := c.Request.Context()

	var (
		job *models.ScheduledJob
		err error
	)
	switch {
	case strings.TrimSpace(req.At) != "" && strings.TrimSpace(req.Cron) != "":
		badRequest(c, fmt.Errorf("cron and at are mutually exclusive"))
		return
	case strings.TrimSpace(req.At) != "":
		at, perr := time.Parse(time.RFC3339, strings.TrimSpace(req.At))
		if perr != nil {
			badRequest(c, fmt.Errorf("at: %w", perr))
			return
		}
		job, err = s.schedules.AddOnce(ctx, spec, at)
	case strings.TrimSpace(req.Cron) != "":
		job, err = s.schedules.Add(ctx, spec)
	default:
		badRequest(c, fmt.Errorf("one of cron or at is required"))
		return
	}
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"schedule": newScheduleView(job)})
}

// GET /api/schedules/:id
func (s *Server) getSchedule(c *gin.Context) {
	job, err := s.schedules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule": newScheduleView(job)})
}

// POST /api/schedules/:id/enable
func (s *Server) enableSchedule(c *gin.Context) {
	job, err := s.schedules.Enable(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule": newScheduleView(job)})
}

// POST /api/schedules/:id/disable
func (s *Server) disableSchedule(c *gin.Context) {
	job, err := s.schedules.Disable(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule": newScheduleView(job)})
}

// DELETE /api/schedules/:id
func (s *Server) removeSchedule(c *gin.Context) {
	if err := s.schedules.Remove(c.Request.Context(), c.Param("id")); err != nil {
		respondErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
