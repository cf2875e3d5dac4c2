package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/Matanbitton/cheap-crawler/internal/interfaces"
	"github.com/Matanbitton/cheap-crawler/internal/models"
	"github.com/Matanbitton/cheap-crawler/internal/services/scraper"
)

// ScrapeHandler serves the synchronous scrape endpoint
type ScrapeHandler struct {
	scraperService interfaces.ScraperService
	logger         arbor.ILogger
}

// NewScrapeHandler creates a new scrape handler
func NewScrapeHandler(scraperService interfaces.ScraperService, logger arbor.ILogger) *ScrapeHandler {
	return &ScrapeHandler{
		scraperService: scraperService,
		logger:         logger,
	}
}

// ScrapeHandler handles POST /scrape. The call blocks until the crawl
// finishes and returns the aggregated result.
func (h *ScrapeHandler) ScrapeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debug().Err(err).Msg("Failed to decode scrape request")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	start := time.Now()
	result, err := h.scraperService.Scrape(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, scraper.ErrInvalidRequest):
			WriteError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, scraper.ErrQueueFull):
			WriteError(w, http.StatusServiceUnavailable, "Scrape queue is full, retry later")
		default:
			h.logger.Error().
				Err(err).
				Str("url", req.URL).
				Dur("duration", time.Since(start)).
				Msg("Scrape request failed")
			WriteJSON(w, http.StatusInternalServerError, map[string]string{
				"error":   "scrape failed",
				"message": err.Error(),
			})
		}
		return
	}

	h.logger.Info().
		Str("url", req.URL).
		Int("pages", result.PagesScraped).
		Int("characters", result.CharacterCount).
		Dur("duration", time.Since(start)).
		Msg("Scrape request served")

	WriteJSON(w, http.StatusOK, result)
}
