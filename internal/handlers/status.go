// Package handlers provides the HTTP surface over pipeline state. All
// responses are JSON; the server only observes, it never drives the
// pipeline.
package handlers

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"kiru/internal/claim"
	"kiru/internal/ledger"
	"kiru/internal/storage"
)

// StatusHandler はパイプライン状態APIのハンドラー
type StatusHandler struct {
	ledger  *ledger.Ledger
	locks   *claim.Registry
	staging string
}

// NewStatusHandler は新しいStatusHandlerを作成
func NewStatusHandler(l *ledger.Ledger, locks *claim.Registry, staging string) *StatusHandler {
	return &StatusHandler{ledger: l, locks: locks, staging: staging}
}

// Status returns ledger, staging, and lock counts.
// GET /api/status
func (h *StatusHandler) Status(c echo.Context) error {
	processed, failed := h.ledger.Counts()

	held, err := h.locks.Held()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	staged := 0
	if entries, err := os.ReadDir(h.staging); err == nil {
		for _, e := range entries {
			if e.IsDir() || strings.HasSuffix(e.Name(), ".part") {
				continue
			}
			staged++
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"processed": processed,
		"failed":    failed,
		"staged":    staged,
		"claimed":   len(held),
		"claims":    held,
	})
}

// RecordHandler はマージ済みインデックスAPIのハンドラー
type RecordHandler struct {
	repo *storage.RecordRepository
}

// NewRecordHandler は新しいRecordHandlerを作成
func NewRecordHandler(repo *storage.RecordRepository) *RecordHandler {
	return &RecordHandler{repo: repo}
}

// List returns merged records in (source_id, sub_index) order.
// GET /api/records?source=<id>&limit=<n>
func (h *RecordHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	if source := c.QueryParam("source"); source != "" {
		records, err := h.repo.ListBySource(ctx, source)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, records)
	}

	limit := 500
	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}

	records, err := h.repo.List(ctx, limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, records)
}

// Count returns the merged record total.
// GET /api/records/count
func (h *RecordHandler) Count(c echo.Context) error {
	n, err := h.repo.Count(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]int{"count": n})
}
