package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	cronrunner "buybox/internal/cron"
	"buybox/internal/models"
	"buybox/internal/repository"
	"buybox/internal/service"
	"buybox/internal/worker"
)

type WorkerHandler struct {
	Scheduler *worker.Scheduler
	Query     *service.BuyBoxQueryService
	Settings  *service.SystemSettingsService
	Cron      *cronrunner.Runner
	Logger    *zap.Logger
	// BaseCtx outlives requests; asynchronous runs hang off it.
	BaseCtx context.Context
}

func (h *WorkerHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/worker")
	g.GET("/stats", h.stats)
	g.GET("/logs", h.logs)
	g.POST("/run/:pass", h.run)
	g.POST("/collect", h.collect)

	s := r.Group("/api/v1/settings")
	s.GET("/switches", h.switches)
	s.PUT("/switches/:key", h.putSwitch)
}

// @Summary Scheduler state and last pass summaries
// @Tags worker
// @Success 200 {object} apiResponse
// @Router /api/v1/worker/stats [get]
func (h *WorkerHandler) stats(c *gin.Context) {
	if h.Scheduler == nil {
		Error(c, http.StatusInternalServerError, "scheduler unavailable", nil)
		return
	}
	out := gin.H{"scheduler": h.Scheduler.Stats()}
	if h.Cron != nil {
		out["next_runs"] = h.Cron.Next()
	}
	if h.Query != nil {
		collection, err := h.Query.Stats(c.Request.Context(), 24*time.Hour)
		if err != nil {
			serviceError(c, err)
			return
		}
		out["collection"] = collection
	}
	Ok(c, out, nil)
}

// @Summary Recent sync log rows
// @Tags worker
// @Param type query string false "pass type"
// @Success 200 {object} apiResponse
// @Router /api/v1/worker/logs [get]
func (h *WorkerHandler) logs(c *gin.Context) {
	if h.Query == nil {
		Error(c, http.StatusInternalServerError, "query service unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	items, err := h.Query.SyncLogs(c.Request.Context(), repository.ListSyncLogsParams{
		SyncType: strQueryPtr(c, "type"),
		Limit:    limit,
	})
	if err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, items, paginationMeta(limit, 0, len(items)))
}

// @Summary Trigger a pass
// @Description pass is regular, intensive, cleanup or brand_owner. With ?wait=true the summary is returned, otherwise the pass starts in the background.
// @Tags worker
// @Param pass path string true "pass"
// @Param wait query bool false "block until done"
// @Success 200 {object} apiResponse
// @Success 202 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/v1/worker/run/{pass} [post]
func (h *WorkerHandler) run(c *gin.Context) {
	if h.Scheduler == nil {
		Error(c, http.StatusInternalServerError, "scheduler unavailable", nil)
		return
	}
	pass := strings.ToLower(strings.TrimSpace(c.Param("pass")))
	fn := h.passFunc(pass)
	if fn == nil {
		Error(c, http.StatusBadRequest, "unknown pass", map[string]any{"pass": pass})
		return
	}
	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		sum, err := fn(c.Request.Context())
		if err != nil {
			serviceError(c, err)
			return
		}
		Ok(c, sum, nil)
		return
	}
	if (pass == "regular" || pass == "intensive") && h.Scheduler.State() != worker.StateIdle {
		serviceError(c, worker.ErrPassInProgress)
		return
	}
	base := h.BaseCtx
	if base == nil {
		base = context.Background()
	}
	go func() {
		if _, err := fn(base); err != nil && h.Logger != nil {
			h.Logger.Warn("manual pass failed", zap.String("pass", pass), zap.Error(err))
		}
	}()
	c.JSON(http.StatusAccepted, apiResponse{Code: 0, Message: "accepted", Data: gin.H{"pass": pass}})
}

// collect is the manual trigger for a regular pass.
func (h *WorkerHandler) collect(c *gin.Context) {
	c.Params = append(c.Params, gin.Param{Key: "pass", Value: "regular"})
	h.run(c)
}

func (h *WorkerHandler) passFunc(pass string) func(context.Context) (worker.PassSummary, error) {
	switch pass {
	case "regular", models.SyncTypeRegular:
		return h.Scheduler.RunRegularPass
	case "intensive", models.SyncTypeIntensive:
		return h.Scheduler.RunIntensivePass
	case "cleanup", models.SyncTypeCleanup:
		return h.Scheduler.RunCleanupPass
	case "brand_owner", models.SyncTypeBrandOwner:
		return h.Scheduler.RunBrandOwnerPass
	default:
		return nil
	}
}

// @Summary Feature switches gating the scheduled passes
// @Tags settings
// @Success 200 {object} apiResponse
// @Router /api/v1/settings/switches [get]
func (h *WorkerHandler) switches(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings unavailable", nil)
		return
	}
	Ok(c, h.Settings.Switches(c.Request.Context()), nil)
}

type switchRequest struct {
	Enabled *bool `json:"enabled"`
}

// @Summary Enable or disable a scheduled pass
// @Tags settings
// @Accept json
// @Param key path string true "switch key"
// @Param body body switchRequest true "state"
// @Success 200 {object} apiResponse
// @Router /api/v1/settings/switches/{key} [put]
func (h *WorkerHandler) putSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings unavailable", nil)
		return
	}
	var req switchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		Error(c, http.StatusBadRequest, "enabled required", nil)
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	if err := h.Settings.SetEnabled(c.Request.Context(), key, *req.Enabled); err != nil {
		serviceError(c, err)
		return
	}
	Ok(c, gin.H{"key": key, "enabled": *req.Enabled}, nil)
}
