package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/inkwell/services"
	"github.com/cppla/inkwell/utils"
)

// StatsController provides the admin dashboard and the health probe.
type StatsController struct {
	svc *services.Services
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(svc *services.Services) *StatsController {
	return &StatsController{svc: svc}
}

// Dashboard returns aggregate counters for administrators.
func (s *StatsController) Dashboard(ctx *gin.Context) {
	d, err := s.svc.Stats.Dashboard(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	utils.Success(ctx, d)
}

// Health reports whether the database answers.
func (s *StatsController) Health(ctx *gin.Context) {
	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := s.svc.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(pingCtx)
	}
	if err != nil {
		utils.Respond(ctx, http.StatusServiceUnavailable, false, "database unavailable", gin.H{"status": "degraded"}, nil)
		return
	}
	utils.Success(ctx, gin.H{"status": "ok"})
}
