package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/rewind/pkg/capture"
	"github.com/papercomputeco/rewind/pkg/recall"
	"github.com/papercomputeco/rewind/pkg/storage"
	"github.com/papercomputeco/rewind/pkg/turn"
)

// captureRequest is the POST /capture body.
type captureRequest struct {
	SessionKey string         `json:"session_key"`
	TurnType   string         `json:"turn_type"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
}

// handleHealth serves GET /health and GET /status: liveness plus storage
// stats.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	stats, err := s.driver.Stats(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.JSON(fiber.Map{
		"status":      "ok",
		"uptime":      int64(time.Since(s.startedAt).Seconds()),
		"total_turns": stats.TotalTurns,
		"storage":     stats.Tier,
		"persistent":  s.driver.Persistent(),
	})
}

// handleCapture serves POST /capture: ingest one turn.
func (s *Server) handleCapture(c *fiber.Ctx) error {
	var req captureRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	result, err := s.capture.Capture(c.Context(), capture.Request{
		SessionKey: req.SessionKey,
		TurnType:   req.TurnType,
		Content:    req.Content,
		Metadata:   req.Metadata,
	})
	if err != nil {
		var validation *capture.ValidationError
		if errors.As(err, &validation) {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: validation.Error()})
		}
		s.logger.Error("capture failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.JSON(fiber.Map{
		"ok":        true,
		"timestamp": result.Timestamp,
		"storage":   s.tier(c.Context()),
	})
}

// handleContext serves GET /context: the token-budgeted recent window for a
// session. Query parameters: session_key (required), limit, and since (a
// unix-milliseconds cutoff overriding the default one-hour window).
func (s *Server) handleContext(c *fiber.Ctx) error {
	sessionKey := c.Query("session_key")
	if sessionKey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "session_key parameter is required"})
	}

	opts := recall.Options{Limit: s.config.DefaultTurns}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "limit must be a positive integer"})
		}
		opts.Limit = limit
	}

	if sinceStr := c.Query("since"); sinceStr != "" {
		ms, err := strconv.ParseInt(sinceStr, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "since must be a unix milliseconds timestamp"})
		}
		opts.Since = time.UnixMilli(ms)
	}

	window, err := s.recall.Window(c.Context(), sessionKey, opts)
	if err != nil {
		s.logger.Error("context retrieval failed", "session_key", sessionKey, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.JSON(fiber.Map{
		"session_key": window.SessionKey,
		"turns":       window.Turns,
		"count":       window.Count(),
		"storage":     s.tier(c.Context()),
	})
}

// handleSessions serves GET /sessions.
func (s *Server) handleSessions(c *fiber.Ctx) error {
	sessions, err := s.driver.ListSessions(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}
	if sessions == nil {
		sessions = []string{}
	}

	return c.JSON(fiber.Map{"sessions": sessions})
}

// handleStats serves GET /stats.
func (s *Server) handleStats(c *fiber.Ctx) error {
	stats, err := s.driver.Stats(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.JSON(fiber.Map{
		"total_turns":    stats.TotalTurns,
		"total_sessions": stats.TotalSessions,
		"storage":        stats.Tier,
		"persistent":     s.driver.Persistent(),
	})
}

// handleSearch serves GET /search: full-text search over turn content.
// Available only when the active tier implements storage.Searcher (the
// cloud tier).
func (s *Server) handleSearch(c *fiber.Ctx) error {
	searcher, ok := s.driver.(storage.Searcher)
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error: "search requires the postgres storage tier",
		})
	}

	query := c.Query("q")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "q parameter is required"})
	}

	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "limit must be a positive integer"})
		}
		limit = parsed
	}

	results, err := searcher.Search(c.Context(), query, c.Query("session_key"), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}
	if results == nil {
		results = []*turn.Turn{}
	}

	return c.JSON(fiber.Map{
		"results": results,
		"count":   len(results),
		"query":   query,
	})
}

// handleCleanup serves POST /cleanup: age-based bulk pruning across all
// sessions.
func (s *Server) handleCleanup(c *fiber.Ctx) error {
	days := 30
	if daysStr := c.Query("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "days must be a positive integer"})
		}
		days = parsed
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	deleted, err := s.driver.DeleteOlderThan(c.Context(), cutoff)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.JSON(fiber.Map{
		"deleted": deleted,
		"cutoff":  cutoff,
	})
}
