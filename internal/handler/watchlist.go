package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"movies-sync-service/internal/engine"
	"movies-sync-service/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// MemberLister lists the saved movies, oldest first. Satisfied by
// *repository.RedisWatchlist and *repository.PostgresWatchlist.
type MemberLister interface {
	Members(ctx context.Context) ([]model.MovieRecord, error)
}

// WatchlistEntry is one saved movie as sent to clients
type WatchlistEntry struct {
	MovieView
	AddedAt time.Time `json:"added_at"`
}

// WatchlistHandler exposes the saved movies
type WatchlistHandler struct {
	store       MemberLister
	coordinator *engine.Coordinator
	images      ImageResolver
}

// NewWatchlistHandler creates a new WatchlistHandler
func NewWatchlistHandler(store MemberLister, coordinator *engine.Coordinator, images ImageResolver) *WatchlistHandler {
	return &WatchlistHandler{
		store:       store,
		coordinator: coordinator,
		images:      images,
	}
}

// GetWatchlist returns every saved movie
// GET /api/v1/watchlist
func (h *WatchlistHandler) GetWatchlist(c *gin.Context) {
	records, err := h.store.Members(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list watchlist")
		respondError(c, http.StatusInternalServerError, engine.ReasonWatchlistRead)
		return
	}

	entries := make([]WatchlistEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, WatchlistEntry{
			MovieView: movieView(h.images, rec.Summary()),
			AddedAt:   rec.AddedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"code":  http.StatusOK,
		"data":  entries,
		"total": len(entries),
	})
}

// RemoveFromWatchlist deletes one saved movie. Mounted browse screens pick
// the change up from the membership feed.
// DELETE /api/v1/watchlist/:id
func (h *WatchlistHandler) RemoveFromWatchlist(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "invalid movie id")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), mutationTimeout)
	defer cancel()
	if err := h.coordinator.Remove(ctx, id); err != nil {
		if errors.Is(err, engine.ErrMutationFailed) {
			_ = c.Error(err)
			respondError(c, http.StatusInternalServerError, engine.ReasonMutationFailed)
			return
		}
		respondError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}
