package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"movies-sync-service/internal/engine"
	"movies-sync-service/internal/middleware"
	"movies-sync-service/internal/model"
	"movies-sync-service/internal/screen"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// mutationTimeout bounds one watchlist write issued by a request
const mutationTimeout = 10 * time.Second

// ScreenHandler mounts, drives and unmounts browse and detail screens
type ScreenHandler struct {
	// base outlives requests; screens stay mounted until unmounted or idle
	base context.Context

	browse    *screen.Registry[*engine.BrowseEngine]
	detail    *screen.Registry[*engine.DetailEngine]
	browseCfg engine.BrowseConfig
	detailCfg engine.DetailConfig
	images    ImageResolver
}

// NewScreenHandler creates a new ScreenHandler
func NewScreenHandler(
	base context.Context,
	browse *screen.Registry[*engine.BrowseEngine],
	detail *screen.Registry[*engine.DetailEngine],
	browseCfg engine.BrowseConfig,
	detailCfg engine.DetailConfig,
	images ImageResolver,
) *ScreenHandler {
	return &ScreenHandler{
		base:      base,
		browse:    browse,
		detail:    detail,
		browseCfg: browseCfg,
		detailCfg: detailCfg,
		images:    images,
	}
}

// Register adds the screen routes to rg
func (h *ScreenHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/browse", h.OpenBrowse)
	rg.GET("/browse/:sid", h.GetBrowse)
	rg.POST("/browse/:sid/query", h.BrowseQuery)
	rg.POST("/browse/:sid/watchlist/:id", h.BrowseToggle)
	rg.GET("/browse/:sid/ws", h.BrowseStream)
	rg.DELETE("/browse/:sid", h.CloseBrowse)

	rg.POST("/detail", h.OpenDetail)
	rg.GET("/detail/:sid", h.GetDetail)
	rg.POST("/detail/:sid/watchlist", h.DetailToggle)
	rg.GET("/detail/:sid/ws", h.DetailStream)
	rg.DELETE("/detail/:sid", h.CloseDetail)
}

// Counts returns how many screens of each kind are mounted
func (h *ScreenHandler) Counts() gin.H {
	return gin.H{
		"browse": h.browse.Len(),
		"detail": h.detail.Len(),
	}
}

type screenResponse struct {
	ScreenID string      `json:"screen_id"`
	State    interface{} `json:"state"`
}

type queryRequest struct {
	Query *string `json:"query" binding:"required"`
}

type openDetailRequest struct {
	MovieID int `json:"movie_id" binding:"required,gt=0"`
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, model.APIResponse{
		Code:  status,
		Error: msg,
	})
}

func respondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, model.APIResponse{
		Code: status,
		Data: data,
	})
}

// mutationError maps a watchlist toggle error onto a response
func mutationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrMovieNotHeld):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrDetailNotLoaded):
		respondError(c, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrEngineClosed):
		respondError(c, http.StatusGone, err.Error())
	case errors.Is(err, engine.ErrMutationFailed):
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, engine.ReasonMutationFailed)
	default:
		_ = c.Error(err)
		respondError(c, http.StatusInternalServerError, err.Error())
	}
}

// ================== 浏览页 ==================

// OpenBrowse mounts a browse screen
// POST /api/v1/browse
func (h *ScreenHandler) OpenBrowse(c *gin.Context) {
	eng, err := engine.OpenBrowse(h.base, h.browseCfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open browse screen")
		respondError(c, http.StatusServiceUnavailable, "failed to open browse screen")
		return
	}
	sid := h.browse.Add(eng)
	respondData(c, http.StatusCreated, screenResponse{
		ScreenID: sid,
		State:    newBrowseView(h.images, eng.State()),
	})
}

func (h *ScreenHandler) browseScreen(c *gin.Context) (*engine.BrowseEngine, bool) {
	eng, err := h.browse.Get(c.Param("sid"))
	if err != nil {
		respondError(c, http.StatusNotFound, err.Error())
		return nil, false
	}
	return eng, true
}

// GetBrowse returns the current browse state
// GET /api/v1/browse/:sid
func (h *ScreenHandler) GetBrowse(c *gin.Context) {
	eng, ok := h.browseScreen(c)
	if !ok {
		return
	}
	c.Set(middleware.CacheHitKey, true) // 直接读取内存中的屏幕状态
	respondData(c, http.StatusOK, screenResponse{
		ScreenID: c.Param("sid"),
		State:    newBrowseView(h.images, eng.State()),
	})
}

// BrowseQuery feeds the search box text into the screen
// POST /api/v1/browse/:sid/query
func (h *ScreenHandler) BrowseQuery(c *gin.Context) {
	eng, ok := h.browseScreen(c)
	if !ok {
		return
	}
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "query field required")
		return
	}
	eng.Search(*req.Query)
	c.JSON(http.StatusAccepted, model.APIResponse{
		Code:    http.StatusAccepted,
		Message: "query accepted",
	})
}

// BrowseToggle adds or removes one of the movies the screen shows. The new
// flag arrives through the screen state once the store confirms it.
// POST /api/v1/browse/:sid/watchlist/:id
func (h *ScreenHandler) BrowseToggle(c *gin.Context) {
	eng, ok := h.browseScreen(c)
	if !ok {
		return
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "invalid movie id")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), mutationTimeout)
	defer cancel()
	if err := eng.ToggleWatchlist(ctx, id); err != nil {
		mutationError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, model.APIResponse{
		Code:    http.StatusAccepted,
		Message: "watchlist updated",
	})
}

// CloseBrowse unmounts a browse screen
// DELETE /api/v1/browse/:sid
func (h *ScreenHandler) CloseBrowse(c *gin.Context) {
	if err := h.browse.Remove(c.Param("sid")); err != nil {
		respondError(c, http.StatusNotFound, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}

// ================== 详情页 ==================

// OpenDetail mounts a detail screen for one movie
// POST /api/v1/detail
func (h *ScreenHandler) OpenDetail(c *gin.Context) {
	var req openDetailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "movie_id must be a positive integer")
		return
	}
	eng := engine.OpenDetail(h.base, req.MovieID, h.detailCfg)
	sid := h.detail.Add(eng)
	respondData(c, http.StatusCreated, screenResponse{
		ScreenID: sid,
		State:    newDetailView(h.images, eng.State()),
	})
}

func (h *ScreenHandler) detailScreen(c *gin.Context) (*engine.DetailEngine, bool) {
	eng, err := h.detail.Get(c.Param("sid"))
	if err != nil {
		respondError(c, http.StatusNotFound, err.Error())
		return nil, false
	}
	return eng, true
}

// GetDetail returns the current detail state
// GET /api/v1/detail/:sid
func (h *ScreenHandler) GetDetail(c *gin.Context) {
	eng, ok := h.detailScreen(c)
	if !ok {
		return
	}
	c.Set(middleware.CacheHitKey, true)
	respondData(c, http.StatusOK, screenResponse{
		ScreenID: c.Param("sid"),
		State:    newDetailView(h.images, eng.State()),
	})
}

// DetailToggle flips the watchlist membership of the screen's movie
// POST /api/v1/detail/:sid/watchlist
func (h *ScreenHandler) DetailToggle(c *gin.Context) {
	eng, ok := h.detailScreen(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), mutationTimeout)
	defer cancel()
	if err := eng.ToggleWatchlist(ctx); err != nil {
		mutationError(c, err)
		return
	}
	respondData(c, http.StatusOK, screenResponse{
		ScreenID: c.Param("sid"),
		State:    newDetailView(h.images, eng.State()),
	})
}

// CloseDetail unmounts a detail screen
// DELETE /api/v1/detail/:sid
func (h *ScreenHandler) CloseDetail(c *gin.Context) {
	if err := h.detail.Remove(c.Param("sid")); err != nil {
		respondError(c, http.StatusNotFound, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}
