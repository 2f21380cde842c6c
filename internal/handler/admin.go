package handler

import (
	"context"
	"net/http"
	"time"

	"movies-sync-service/internal/model"
	"movies-sync-service/internal/repository"
	"movies-sync-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// adminTimeout bounds the Redis work of one admin request
const adminTimeout = 5 * time.Second

// AdminHandler handles admin-related endpoints
type AdminHandler struct {
	tmdb    *service.TMDBService
	catalog *service.CachedCatalog
	cache   *repository.Cache
	metrics *repository.Metrics
	screens *ScreenHandler
	backend string
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(
	tmdb *service.TMDBService,
	catalog *service.CachedCatalog,
	cache *repository.Cache,
	metrics *repository.Metrics,
	screens *ScreenHandler,
	backend string,
) *AdminHandler {
	return &AdminHandler{
		tmdb:    tmdb,
		catalog: catalog,
		cache:   cache,
		metrics: metrics,
		screens: screens,
		backend: backend,
	}
}

// GetStatus returns service status
// GET /api/v1/status
func (h *AdminHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"tmdb_enabled":      h.tmdb.IsConfigured(),
		"tmdb_keys":         h.tmdb.KeyCount(),
		"watchlist_backend": h.backend,
		"screens":           h.screens.Counts(),
		"cache":             h.catalog.Stats(),
	})
}

// GetAnalytics returns API analytics
// GET /api/v1/analytics
func (h *AdminHandler) GetAnalytics(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), adminTimeout)
	defer cancel()

	stats, err := h.metrics.GetOverallStats(ctx)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	respondData(c, http.StatusOK, stats)
}

// GetEndpointStats returns stats for a specific endpoint
// GET /api/v1/analytics/endpoint?path=/api/v1/browse/:sid
func (h *AdminHandler) GetEndpointStats(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		respondError(c, http.StatusBadRequest, "path parameter required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), adminTimeout)
	defer cancel()

	stats, err := h.metrics.GetAPIStats(ctx, path)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	respondData(c, http.StatusOK, stats)
}

// ResetAnalytics resets all analytics data
// DELETE /api/v1/analytics
func (h *AdminHandler) ResetAnalytics(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), adminTimeout)
	defer cancel()

	deleted, err := h.metrics.ResetMetrics(ctx)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "所有统计数据已重置",
		"deleted": deleted,
	})
}

// PurgeCache deletes cached catalog responses, all of them unless a
// pattern such as "detail:*" is given
// DELETE /api/v1/cache?pattern=
func (h *AdminHandler) PurgeCache(c *gin.Context) {
	pattern := c.DefaultQuery("pattern", "*")

	ctx, cancel := context.WithTimeout(c.Request.Context(), adminTimeout)
	defer cancel()

	deleted, err := h.cache.Purge(ctx, pattern)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("pattern", pattern).Int64("deleted", deleted).Msg("🗑️ Catalog cache purged")
	c.JSON(http.StatusOK, model.APIResponse{
		Code:    http.StatusOK,
		Data:    gin.H{"deleted": deleted, "pattern": pattern},
		Message: "缓存已清除",
	})
}
