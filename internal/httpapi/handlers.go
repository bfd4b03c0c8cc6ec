package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"horse.fit/driftwatch/internal/db"
	"horse.fit/driftwatch/internal/globaltime"
	"horse.fit/driftwatch/internal/ingest"
	"horse.fit/driftwatch/internal/novelty"
	payloadschema "horse.fit/driftwatch/schema"
)

// maxSubmissionBytes bounds the submission request body.
const maxSubmissionBytes = 4 * 1024 * 1024

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.pool.Ping(c.Request().Context()); err != nil {
		s.logger.Error().Err(err).Msg("health check database ping failed")
		return internalError(c, "Database unreachable")
	}
	return success(c, map[string]any{
		"service": "driftwatch",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleSubmission(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxSubmissionBytes+1))
	if err != nil {
		return failValidation(c, map[string]string{"body": "could not read request body"})
	}
	if len(body) > maxSubmissionBytes {
		return fail(c, http.StatusRequestEntityTooLarge, "Payload too large", nil)
	}

	payload, err := payloadschema.ValidateSubmissionPayload(json.RawMessage(body))
	if err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}

	outcome, err := s.ingestor.Submit(c.Request().Context(), ingest.Submission{
		CompanyID:  payload.CompanyID,
		SourceType: novelty.SourceType(payload.SourceType),
		Source:     payload.Source,
		Title:      payload.Title,
		Body:       payload.BodyText,
		MessageID:  payload.MessageID,
		Prefilled:  payload.Prefilled,
		Metadata:   payload.SourceMetadata,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("source", payload.Source).Msg("submission processing failed")
		return internalError(c, "Failed to process submission")
	}

	if !outcome.Stored {
		return success(c, map[string]any{
			"stored":        false,
			"reason":        outcome.Reason,
			"duplicate_ref": outcome.DuplicateRef,
		})
	}
	return successWithStatus(c, http.StatusCreated, map[string]any{
		"stored":    true,
		"unit_id":   outcome.UnitID,
		"unit_uuid": outcome.UnitUUID,
	})
}

type registerResourceRequest struct {
	CompanyID string `json:"company_id"`
	Source    string `json:"source"`
	URL       string `json:"url"`
	Kind      string `json:"kind"`
}

func (s *Server) handleRegisterResource(c echo.Context) error {
	var req registerResourceRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": "invalid JSON body"})
	}

	fieldErrors := map[string]string{}
	if strings.TrimSpace(req.CompanyID) == "" {
		fieldErrors["company_id"] = "is required"
	}
	if strings.TrimSpace(req.URL) == "" {
		fieldErrors["url"] = "is required"
	}
	switch req.Kind {
	case "", "article", "index":
	default:
		fieldErrors["kind"] = "must be article or index"
	}
	if len(fieldErrors) > 0 {
		return failValidation(c, fieldErrors)
	}

	row, err := s.pool.UpsertResource(c.Request().Context(), db.UpsertResourceParams{
		CompanyID: strings.TrimSpace(req.CompanyID),
		Source:    strings.TrimSpace(req.Source),
		URL:       strings.TrimSpace(req.URL),
		Kind:      req.Kind,
	}, globaltime.UTC())
	if err != nil {
		s.logger.Error().Err(err).Str("url", req.URL).Msg("register resource failed")
		return internalError(c, "Failed to register resource")
	}

	return successWithStatus(c, http.StatusCreated, resourceView(row))
}

func (s *Server) handleResources(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultListLimit, 1, maxListLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	rows, err := s.pool.ListActiveResources(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list resources failed")
		return internalError(c, "Failed to load resources")
	}

	items := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		items = append(items, resourceView(row))
	}
	return success(c, map[string]any{"items": items})
}

func (s *Server) handleResourceStats(c echo.Context) error {
	resourceID, err := strconv.ParseInt(c.Param("resource_id"), 10, 64)
	if err != nil || resourceID <= 0 {
		return failValidation(c, map[string]string{"resource_id": "must be a positive integer"})
	}

	stats, err := s.pool.GetResourceCheckStats(c.Request().Context(), resourceID)
	if err != nil {
		s.logger.Error().Err(err).Int64("resource_id", resourceID).Msg("resource stats failed")
		return internalError(c, "Failed to load resource stats")
	}
	if stats.TotalChecks == 0 {
		return failNotFound(c, "No checks recorded for resource")
	}
	return success(c, stats)
}

func (s *Server) handleUnits(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultListLimit, 1, maxListLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}
	from, err := parseTimeFilter(c.QueryParam("from"), false)
	if err != nil {
		return failValidation(c, map[string]string{"from": err.Error()})
	}
	to, err := parseTimeFilter(c.QueryParam("to"), true)
	if err != nil {
		return failValidation(c, map[string]string{"to": err.Error()})
	}

	now := globaltime.UTC()
	fromTime := now.AddDate(0, 0, -30)
	toTime := now.Add(time.Second)
	if from != nil {
		fromTime = *from
	}
	if to != nil {
		toTime = *to
	}

	items, err := s.pool.ListUnits(c.Request().Context(), db.UnitListOptions{
		CompanyID:  strings.TrimSpace(c.QueryParam("company_id")),
		SourceType: strings.TrimSpace(c.QueryParam("source_type")),
		From:       fromTime,
		To:         toTime,
		Limit:      limit,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("list units failed")
		return internalError(c, "Failed to load units")
	}
	return success(c, map[string]any{"items": items})
}

func (s *Server) handleStats(c echo.Context) error {
	now := globaltime.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	stats, err := s.pool.QueryStoreStats(c.Request().Context(), dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func resourceView(row db.ResourceRow) map[string]any {
	return map[string]any{
		"resource_id":          row.ResourceID,
		"resource_uuid":        row.ResourceUUID,
		"company_id":           row.CompanyID,
		"source":               row.Source,
		"url":                  row.URL,
		"kind":                 row.Kind,
		"status":               row.Status,
		"consecutive_failures": row.ConsecutiveFailures,
		"last_checked_at":      row.LastCheckedAt,
		"last_changed_at":      row.LastChangedAt,
	}
}
