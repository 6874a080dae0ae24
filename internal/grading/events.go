package grading

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/blake2b"
)

// dbTimeout bounds each audit log statement.
const dbTimeout = 5 * time.Second

// Event types.
const (
	EventGradeSubmitted  = "grade_submitted"
	EventCourseCompleted = "course_completed"
)

var (
	errNoEventType = errors.New("event type is required")
	errNoSession   = errors.New("session id is required")
	errNoPool      = errors.New("audit log has no database pool")
)

// Event is one grading audit record.
type Event struct {
	SessionID string
	EventType string
	Data      map[string]any
	CreatedAt time.Time
}

// normalize checks required fields and fills in defaults.
func (e Event) normalize() (Event, error) {
	if e.EventType == "" {
		return e, errNoEventType
	}
	if e.SessionID == "" {
		return e, errNoSession
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return e, nil
}

// EventLogger records grading events. Implementations must not let a
// cancelled request drop an event that was already graded.
type EventLogger interface {
	LogEvent(ctx context.Context, event Event) error
}

// NopEventLogger discards events.
type NopEventLogger struct{}

func (NopEventLogger) LogEvent(context.Context, Event) error { return nil }

// MemoryEventLogger keeps events in process. Tests use it to inspect what
// the dispatcher recorded.
type MemoryEventLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventLogger() *MemoryEventLogger {
	return &MemoryEventLogger{}
}

func (l *MemoryEventLogger) LogEvent(_ context.Context, event Event) error {
	event, err := event.normalize()
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

// Events returns a copy of everything logged so far.
func (l *MemoryEventLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// PostgresEventLogger appends events to the grade_events table.
type PostgresEventLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresEventLogger(pool *pgxpool.Pool) *PostgresEventLogger {
	return &PostgresEventLogger{pool: pool}
}

var gradeEventsSchema = []string{
	`CREATE TABLE IF NOT EXISTS grade_events (
		id          BIGSERIAL PRIMARY KEY,
		session_id  TEXT        NOT NULL,
		event_type  TEXT        NOT NULL,
		data        JSONB       NOT NULL DEFAULT '{}'::jsonb,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS grade_events_session_idx ON grade_events (session_id, created_at)`,
}

func (l *PostgresEventLogger) ready() error {
	if l == nil || l.pool == nil {
		return errNoPool
	}
	return nil
}

// EnsureSchema creates the grade_events table and its index if missing.
func (l *PostgresEventLogger) EnsureSchema(ctx context.Context) error {
	if err := l.ready(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	for _, stmt := range gradeEventsSchema {
		if _, err := l.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure grade_events schema: %w", err)
		}
	}
	return nil
}

// LogEvent inserts one row. The insert is detached from ctx cancellation
// but still bounded by dbTimeout.
func (l *PostgresEventLogger) LogEvent(ctx context.Context, event Event) error {
	if err := l.ready(); err != nil {
		return err
	}
	event, err := event.normalize()
	if err != nil {
		return err
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encode %s data: %w", event.EventType, err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dbTimeout)
	defer cancel()

	tag, err := l.pool.Exec(ctx,
		`INSERT INTO grade_events (session_id, event_type, data, created_at) VALUES ($1, $2, $3::jsonb, $4)`,
		event.SessionID, event.EventType, string(data), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert %s for session %s: %w", event.EventType, event.SessionID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("insert %s for session %s: %d rows affected", event.EventType, event.SessionID, tag.RowsAffected())
	}

	slog.DebugContext(ctx, "grade event stored", "type", event.EventType, "session_id", event.SessionID)
	return nil
}

// CountEvents returns how many events of eventType were stored for a
// session.
func (l *PostgresEventLogger) CountEvents(ctx context.Context, sessionID, eventType string) (int, error) {
	if err := l.ready(); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var n int
	err := l.pool.QueryRow(ctx,
		`SELECT count(*) FROM grade_events WHERE session_id = $1 AND event_type = $2`,
		sessionID, eventType,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s for session %s: %w", eventType, sessionID, err)
	}
	return n, nil
}

// ScriptDigest returns a short stable fingerprint of a submitted script so
// events can correlate resubmissions without storing learner code.
func ScriptDigest(script string) string {
	sum := blake2b.Sum256([]byte(script))
	return hex.EncodeToString(sum[:16])
}
