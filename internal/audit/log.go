// Package audit emits an append-only trail of account and credential events.
// Every event lands on the JSON log stream; a configured database receives a
// best-effort mirror, and a bounded ring backs the admin activity listing.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"starpass.org/internal/ids"
	"starpass.org/internal/obs"
)

// Event types.
const (
	EventLogin    = "login"
	EventLogout   = "logout"
	EventSSOLogin = "sso_login"
	EventBan      = "ban"
	EventUnban    = "unban"
)

const defaultCapacity = 4096

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Entry is a recorded audit event.
type Entry struct {
	ID         string         `json:"id"`
	Event      string         `json:"event"`
	GUID       string         `json:"guid,omitempty"`
	AppID      string         `json:"app_id,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	RequestID  string         `json:"request_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// Query narrows List results. Zero fields match everything.
type Query struct {
	GUID  string
	Event string
	Limit int
}

// Log records audit events.
type Log struct {
	mu       sync.Mutex
	entries  []*Entry
	capacity int
	db       *sql.DB
	now      func() time.Time
}

// Option configures Log.
type Option func(*Log)

// WithDB mirrors events to the audit_logs table.
func WithDB(db *sql.DB) Option {
	return func(l *Log) { l.db = db }
}

// WithClock overrides the time source (for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Log) {
		if fn != nil {
			l.now = fn
		}
	}
}

func NewLog(opts ...Option) *Log {
	l := &Log{capacity: defaultCapacity, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends an audit entry. Failures to persist are logged and
// swallowed; audit must never fail the operation it describes.
func (l *Log) Record(ctx context.Context, event, guid, appID, actor string, fields map[string]any) {
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}
	entry := &Entry{
		ID:         ids.New(),
		Event:      event,
		GUID:       guid,
		AppID:      appID,
		Actor:      actor,
		RequestID:  requestIDFromContext(ctx),
		OccurredAt: l.now().UTC(),
	}
	if len(fields) > 0 {
		entry.Fields = make(map[string]any, len(fields))
		for k, v := range fields {
			entry.Fields[k] = v
		}
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}
	l.mu.Unlock()

	l.emit(entry)

	if l.db != nil {
		meta, _ := json.Marshal(entry.Fields)
		_, err := l.db.ExecContext(ctx,
			`insert into audit_logs(id, event, guid, app_id, actor, request_id, occurred_at, fields)
			 values($1,$2,$3,$4,$5,$6,$7,$8)`,
			entry.ID, entry.Event, entry.GUID, entry.AppID, entry.Actor,
			entry.RequestID, entry.OccurredAt, meta,
		)
		if err != nil {
			obs.Event("error", "audit insert failed", map[string]any{"error": err.Error()})
		}
	}
}

func (l *Log) emit(entry *Entry) {
	line := map[string]any{
		"ts":    entry.OccurredAt.Format(time.RFC3339Nano),
		"type":  "audit",
		"event": entry.Event,
	}
	if entry.GUID != "" {
		line["guid"] = entry.GUID
	}
	if entry.AppID != "" {
		line["app_id"] = entry.AppID
	}
	if entry.Actor != "" {
		line["actor"] = entry.Actor
	}
	if entry.RequestID != "" {
		line["request_id"] = entry.RequestID
	}
	if entry.Fields != nil {
		line["fields"] = entry.Fields
	} else {
		line["fields"] = map[string]any{}
	}
	obs.LogJSON(line)
}

// List returns matching entries, newest first.
func (l *Log) List(_ context.Context, q Query) []*Entry {
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var res []*Entry
	for i := len(l.entries) - 1; i >= 0 && len(res) < limit; i-- {
		e := l.entries[i]
		if q.GUID != "" && e.GUID != q.GUID {
			continue
		}
		if q.Event != "" && e.Event != q.Event {
			continue
		}
		cp := *e
		res = append(res, &cp)
	}
	return res
}
