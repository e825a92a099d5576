package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ghostpni/ghostpni/internal/core"
)

const defaultJournalLimit = 100

// JournalQuery filters dispatch journal rows.
type JournalQuery struct {
	Kind   string
	Source string
	Result string
	Since  time.Time
	Before time.Time
	Limit  int
}

// JournalBucket aggregates journal rows by kind and result.
type JournalBucket struct {
	Kind          core.DispatchKind `json:"kind"`
	Result        string            `json:"result"`
	Count         int64             `json:"count"`
	AvgAttempts   float64           `json:"avg_attempts"`
	AvgDurationMS float64           `json:"avg_duration_ms"`
}

// JournalSummary is the output of SummarizeDispatches.
type JournalSummary struct {
	Total   int64           `json:"total"`
	Oldest  *time.Time      `json:"oldest,omitempty"`
	Newest  *time.Time      `json:"newest,omitempty"`
	Buckets []JournalBucket `json:"buckets"`
}

var validKinds = map[string]struct{}{
	string(core.KindDecoy):       {},
	string(core.KindReal):        {},
	string(core.KindPassthrough): {},
}

func (q JournalQuery) Validate() error {
	if kind := strings.TrimSpace(q.Kind); kind != "" {
		if _, ok := validKinds[kind]; !ok {
			return fmt.Errorf("unknown dispatch kind %q", kind)
		}
	}
	if q.Limit < 0 {
		return errors.New("limit must be non-negative")
	}
	if !q.Since.IsZero() && !q.Before.IsZero() && !q.Since.Before(q.Before) {
		return errors.New("since must be before before")
	}
	return nil
}

func (q JournalQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var (
		clauses []string
		args    []any
	)
	if kind := strings.TrimSpace(q.Kind); kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, kind)
	}
	if source := strings.TrimSpace(q.Source); source != "" {
		clauses = append(clauses, "source = ?")
		args = append(args, source)
	}
	if result := strings.TrimSpace(q.Result); result != "" {
		clauses = append(clauses, "result = ?")
		args = append(args, result)
	}
	if !q.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	if !q.Before.IsZero() {
		clauses = append(clauses, "created_at < ?")
		args = append(args, q.Before.UnixMilli())
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args, nil
}

// RecordDispatch appends one outcome to the journal.
func (s *Store) RecordDispatch(ctx context.Context, record core.DispatchRecord) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(record.ID) == "" {
		return errors.New("dispatch id is required")
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO dispatch_journal (id, kind, source, endpoint, attempts, result, failure_kind, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		string(record.Kind),
		string(record.Source),
		nullString(record.Endpoint),
		record.Attempts,
		record.Result,
		nullString(string(record.FailureKind)),
		record.Duration.Milliseconds(),
		createdAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record dispatch: %w", err)
	}
	return nil
}

// ListDispatches returns matching rows, newest first.
func (s *Store) ListDispatches(ctx context.Context, q JournalQuery) ([]core.DispatchRecord, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit == 0 {
		limit = defaultJournalLimit
	}
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, kind, source, endpoint, attempts, result, failure_kind, duration_ms, created_at
		FROM dispatch_journal
		%s
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list dispatches: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	records := []core.DispatchRecord{}
	for rows.Next() {
		var (
			id          string
			kind        string
			source      string
			endpoint    sql.NullString
			attempts    int
			result      string
			failureKind sql.NullString
			durationMS  int64
			createdAt   int64
		)
		if err := rows.Scan(&id, &kind, &source, &endpoint, &attempts, &result, &failureKind, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan dispatches: %w", err)
		}
		records = append(records, core.DispatchRecord{
			ID:          id,
			Kind:        core.DispatchKind(kind),
			Source:      core.Source(source),
			Endpoint:    endpoint.String,
			Attempts:    attempts,
			Result:      result,
			FailureKind: core.FailureKind(failureKind.String),
			Duration:    time.Duration(durationMS) * time.Millisecond,
			CreatedAt:   time.UnixMilli(createdAt).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list dispatches: %w", err)
	}
	return records, nil
}

// CountDispatches counts matching rows.
func (s *Store) CountDispatches(ctx context.Context, q JournalQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	var count int64
	if err := s.DB.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM dispatch_journal %s`, where), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count dispatches: %w", err)
	}
	return count, nil
}

// SummarizeDispatches aggregates rows by kind and result.
func (s *Store) SummarizeDispatches(ctx context.Context, q JournalQuery) (*JournalSummary, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	summary := &JournalSummary{Buckets: []JournalBucket{}}

	var oldest, newest sql.NullInt64
	if err := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*), MIN(created_at), MAX(created_at) FROM dispatch_journal %s
	`, where), args...).Scan(&summary.Total, &oldest, &newest); err != nil {
		return nil, fmt.Errorf("summarize dispatches: %w", err)
	}
	if oldest.Valid {
		value := time.UnixMilli(oldest.Int64).UTC()
		summary.Oldest = &value
	}
	if newest.Valid {
		value := time.UnixMilli(newest.Int64).UTC()
		summary.Newest = &value
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT kind, result, COUNT(*), AVG(attempts), AVG(duration_ms)
		FROM dispatch_journal
		%s
		GROUP BY kind, result
		ORDER BY kind, result
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("summarize dispatches: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	for rows.Next() {
		var (
			bucket JournalBucket
			kind   string
		)
		if err := rows.Scan(&kind, &bucket.Result, &bucket.Count, &bucket.AvgAttempts, &bucket.AvgDurationMS); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		bucket.Kind = core.DispatchKind(kind)
		summary.Buckets = append(summary.Buckets, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("summarize dispatches: %w", err)
	}
	return summary, nil
}

// PruneDispatches deletes rows created before the cutoff.
func (s *Store) PruneDispatches(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if before.IsZero() {
		return 0, errors.New("prune cutoff is required")
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM dispatch_journal WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune dispatches: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune dispatches: %w", err)
	}
	return affected, nil
}

func nullString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
