package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/stewardhq/steward/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. trace log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Conversations ---

func (s *LibSQLStore) UpsertConversation(ctx context.Context, row *ConversationRow) error {
	if row.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "conversation row requires an id")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, intent, user_id, turn_count, last_query, last_result, started_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   turn_count=excluded.turn_count,
		   last_query=excluded.last_query,
		   last_result=excluded.last_result,
		   updated_at=excluded.updated_at`,
		row.ID, string(row.Intent), row.UserID, row.TurnCount,
		nullStr(row.LastQuery), nullRaw(row.LastResult),
		timeOrNow(row.StartedAt), timeOrNow(row.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetConversation(ctx context.Context, id string) (*ConversationRow, error) {
	row := &ConversationRow{}
	var (
		intent             string
		lastQuery, lastRes sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, intent, user_id, turn_count, last_query, last_result, started_at, updated_at
		 FROM conversations WHERE id = ?`, id,
	).Scan(&row.ID, &intent, &row.UserID, &row.TurnCount, &lastQuery, &lastRes, &row.StartedAt, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("conversation", id)
	}
	if err != nil {
		return nil, err
	}
	row.Intent = schema.Intent(intent)
	row.LastQuery = lastQuery.String
	row.LastResult = rawOrNil(lastRes)
	return row, nil
}

func (s *LibSQLStore) ListConversations(ctx context.Context, filter ConversationFilter) ([]*ConversationRow, error) {
	query := `SELECT id, intent, user_id, turn_count, last_query, last_result, started_at, updated_at FROM conversations`
	var where []string
	var args []any
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Intent != "" {
		where = append(where, "intent = ?")
		args = append(args, string(filter.Intent))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ConversationRow
	for rows.Next() {
		row := &ConversationRow{}
		var (
			intent             string
			lastQuery, lastRes sql.NullString
		)
		if err := rows.Scan(&row.ID, &intent, &row.UserID, &row.TurnCount, &lastQuery, &lastRes, &row.StartedAt, &row.UpdatedAt); err != nil {
			return nil, err
		}
		row.Intent = schema.Intent(intent)
		row.LastQuery = lastQuery.String
		row.LastResult = rawOrNil(lastRes)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteConversation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	return err
}

func (s *LibSQLStore) DeleteExpiredConversations(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM conversations WHERE updated_at < ?`, cutoff)
	if err != nil {
		return nil, err
	}
	var expired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		expired = append(expired, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(expired) == 0 {
		return nil, nil
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE updated_at < ?`, cutoff); err != nil {
		return nil, err
	}
	return expired, nil
}

// --- Decision trace ---

func (s *LibSQLStore) AppendTraceEvent(ctx context.Context, event *TraceEvent) error {
	if event.TraceID == "" {
		return schema.NewError(schema.ErrCodeValidation, "trace event requires a trace_id")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO trace_events (trace_id, conversation_id, user_id, node, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.TraceID, nullStr(event.ConversationID), nullStr(event.UserID),
		nullStr(event.Node), event.Type, nullRaw(event.Payload), event.Timestamp, event.Sequence,
	)
	if err != nil {
		return fmt.Errorf("insert trace event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

func (s *LibSQLStore) GetTrace(ctx context.Context, traceID string, since int64) ([]*TraceEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, trace_id, conversation_id, user_id, node, event_type, payload, timestamp, sequence
		 FROM trace_events WHERE trace_id = ? AND sequence > ? ORDER BY sequence ASC`,
		traceID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTraceEvents(rows)
}

func (s *LibSQLStore) ListTraceEvents(ctx context.Context, filter TraceFilter) ([]*TraceEvent, error) {
	query := `SELECT id, trace_id, conversation_id, user_id, node, event_type, payload, timestamp, sequence FROM trace_events`
	var where []string
	var args []any
	if filter.TraceID != "" {
		where = append(where, "trace_id = ?")
		args = append(args, filter.TraceID)
	}
	if filter.ConversationID != "" {
		where = append(where, "conversation_id = ?")
		args = append(args, filter.ConversationID)
	}
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, filter.EventType)
	}
	if filter.Node != "" {
		where = append(where, "node = ?")
		args = append(args, filter.Node)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *filter.Since)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp ASC, sequence ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTraceEvents(rows)
}

func scanTraceEvents(rows *sql.Rows) ([]*TraceEvent, error) {
	var out []*TraceEvent
	for rows.Next() {
		e := &TraceEvent{}
		var convID, userID, node, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TraceID, &convID, &userID, &node, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.ConversationID = convID.String
		e.UserID = userID.String
		e.Node = node.String
		e.Payload = rawOrNil(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Scheduled briefings ---

func (s *LibSQLStore) CreateBriefing(ctx context.Context, b *Briefing) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO briefings (id, user_id, cron_expression, topics, enabled, last_run_at, next_run_at, last_run_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.CronExpression, nullRaw(b.Topics), boolToInt(b.Enabled),
		nullTime(b.LastRunAt), nullTime(b.NextRunAt), nullStr(b.LastRunStatus), timeOrNow(b.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetBriefing(ctx context.Context, id string) (*Briefing, error) {
	b := &Briefing{}
	var (
		topics, lastStatus sql.NullString
		lastRun, nextRun   sql.NullTime
		enabled            int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, cron_expression, topics, enabled, last_run_at, next_run_at, last_run_status, created_at
		 FROM briefings WHERE id = ?`, id,
	).Scan(&b.ID, &b.UserID, &b.CronExpression, &topics, &enabled, &lastRun, &nextRun, &lastStatus, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("briefing", id)
	}
	if err != nil {
		return nil, err
	}
	b.Topics = rawOrNil(topics)
	b.Enabled = enabled != 0
	b.LastRunStatus = lastStatus.String
	if lastRun.Valid {
		b.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		b.NextRunAt = &nextRun.Time
	}
	return b, nil
}

func (s *LibSQLStore) UpdateBriefing(ctx context.Context, id string, update BriefingUpdate) error {
	var sets []string
	var args []any
	if update.CronExpression != "" {
		sets = append(sets, "cron_expression = ?")
		args = append(args, update.CronExpression)
	}
	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolToInt(*update.Enabled))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE briefings SET %s WHERE id = ?`, strings.Join(sets, ", ")), args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "briefing", id)
}

func (s *LibSQLStore) ListBriefings(ctx context.Context, filter BriefingFilter) ([]*Briefing, error) {
	query := `SELECT id, user_id, cron_expression, topics, enabled, last_run_at, next_run_at, last_run_status, created_at FROM briefings`
	var where []string
	var args []any
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, boolToInt(*filter.Enabled))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Briefing
	for rows.Next() {
		b := &Briefing{}
		var (
			topics, lastStatus sql.NullString
			lastRun, nextRun   sql.NullTime
			enabled            int
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.CronExpression, &topics, &enabled, &lastRun, &nextRun, &lastStatus, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Topics = rawOrNil(topics)
		b.Enabled = enabled != 0
		b.LastRunStatus = lastStatus.String
		if lastRun.Valid {
			b.LastRunAt = &lastRun.Time
		}
		if nextRun.Valid {
			b.NextRunAt = &nextRun.Time
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteBriefing(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM briefings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "briefing", id)
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.StewardError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
