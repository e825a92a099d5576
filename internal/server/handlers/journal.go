package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ghostpni/ghostpni/internal/core"
	"github.com/ghostpni/ghostpni/internal/core/store"
	apperrors "github.com/ghostpni/ghostpni/internal/errors"
)

// JournalReader reads the dispatch journal.
type JournalReader interface {
	ListDispatches(ctx context.Context, q store.JournalQuery) ([]core.DispatchRecord, error)
	SummarizeDispatches(ctx context.Context, q store.JournalQuery) (*store.JournalSummary, error)
}

// JournalHandler serves journal queries.
type JournalHandler struct {
	reader JournalReader
	now    func() time.Time
}

// NewJournalHandler binds the handlers to a journal reader.
func NewJournalHandler(reader JournalReader) *JournalHandler {
	return &JournalHandler{reader: reader, now: time.Now}
}

// JournalListResponse wraps journal rows.
type JournalListResponse struct {
	Count   int                   `json:"count"`
	Records []core.DispatchRecord `json:"records"`
}

// List returns recent journal rows, newest first. Query parameters: kind,
// source, result, since (duration or RFC 3339) and limit.
func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	query, err := h.parseQuery(r.URL.Query())
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Invalid journal query"))
		return
	}

	records, err := h.reader.ListDispatches(r.Context(), query)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "Unable to read dispatch journal"))
		return
	}
	if records == nil {
		records = []core.DispatchRecord{}
	}
	writeJSON(w, http.StatusOK, JournalListResponse{Count: len(records), Records: records})
}

// Stats aggregates journal rows by kind and result.
func (h *JournalHandler) Stats(w http.ResponseWriter, r *http.Request) {
	query, err := h.parseQuery(r.URL.Query())
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "Invalid journal query"))
		return
	}

	summary, err := h.reader.SummarizeDispatches(r.Context(), query)
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "Unable to summarize dispatch journal"))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *JournalHandler) parseQuery(values url.Values) (store.JournalQuery, error) {
	query := store.JournalQuery{
		Kind:   strings.TrimSpace(values.Get("kind")),
		Source: strings.TrimSpace(values.Get("source")),
		Result: strings.TrimSpace(values.Get("result")),
	}

	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return query, fmt.Errorf("limit: %w", err)
		}
		query.Limit = limit
	}

	if raw := strings.TrimSpace(values.Get("since")); raw != "" {
		since, err := ParseSince(raw, h.now())
		if err != nil {
			return query, err
		}
		query.Since = since
	}

	return query, query.Validate()
}

// ParseSince accepts a look-back duration ("90m") or an RFC 3339 timestamp.
func ParseSince(raw string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(raw); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("since must not be negative")
		}
		return now.Add(-d), nil
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("since must be a duration or RFC 3339 time: %q", raw)
	}
	return at, nil
}
