// Package loginlog records login and logout attempts for admin review.
// Entries are kept in a bounded in-memory ring and, when a database is
// configured, mirrored there best-effort: a failed insert never fails the
// login that triggered it.
package loginlog

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"starpass.org/internal/ids"
	"starpass.org/internal/obs"
)

const defaultCapacity = 4096

// Entry is a single recorded attempt.
type Entry struct {
	ID        string     `json:"id"`
	GUID      string     `json:"guid,omitempty"`
	Phone     string     `json:"phone"`
	AppID     string     `json:"app_id,omitempty"`
	IP        string     `json:"ip,omitempty"`
	Channel   string     `json:"channel"`
	Success   bool       `json:"success"`
	ErrorCode string     `json:"error_code,omitempty"`
	LoginAt   time.Time  `json:"login_at"`
	LogoutAt  *time.Time `json:"logout_at,omitempty"`
}

// Event describes an attempt to record.
type Event struct {
	GUID      string
	Phone     string
	AppID     string
	IP        string
	Channel   string
	Success   bool
	ErrorCode string
	When      time.Time
}

// Query narrows List results. Zero fields match everything.
type Query struct {
	GUID  string
	Phone string
	Limit int
}

// Recorder stores attempts.
type Recorder struct {
	mu       sync.Mutex
	entries  []*Entry
	capacity int
	db       *sql.DB
	now      func() time.Time
}

// Option configures Recorder.
type Option func(*Recorder)

// WithDB mirrors entries to the login_logs table.
func WithDB(db *sql.DB) Option {
	return func(r *Recorder) { r.db = db }
}

// WithClock overrides the time source (for tests).
func WithClock(fn func() time.Time) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{capacity: defaultCapacity, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordLogin appends an attempt, successful or not.
func (r *Recorder) RecordLogin(ctx context.Context, ev Event) {
	when := ev.When
	if when.IsZero() {
		when = r.now()
	}
	entry := &Entry{
		ID:        ids.New(),
		GUID:      ev.GUID,
		Phone:     ev.Phone,
		AppID:     ev.AppID,
		IP:        ev.IP,
		Channel:   ev.Channel,
		Success:   ev.Success,
		ErrorCode: ev.ErrorCode,
		LoginAt:   when.UTC(),
	}

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	if len(r.entries) > r.capacity {
		r.entries = r.entries[len(r.entries)-r.capacity:]
	}
	r.mu.Unlock()

	if r.db != nil {
		_, err := r.db.ExecContext(ctx,
			`insert into login_logs(id, guid, phone, app_id, ip, channel, success, error_code, login_at)
			 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			entry.ID, entry.GUID, entry.Phone, entry.AppID, entry.IP,
			entry.Channel, entry.Success, entry.ErrorCode, entry.LoginAt,
		)
		if err != nil {
			obs.Event("error", "login log insert failed", map[string]any{"error": err.Error()})
		}
	}
}

// RecordLogout closes the most recent open login entry for the guid. A
// logout with no matching login is dropped silently; logout is idempotent
// upstream and may race session expiry.
func (r *Recorder) RecordLogout(ctx context.Context, guid string, when time.Time) {
	if when.IsZero() {
		when = r.now()
	}
	when = when.UTC()

	var closed *Entry
	r.mu.Lock()
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.GUID == guid && e.Success && e.LogoutAt == nil {
			t := when
			e.LogoutAt = &t
			closed = e
			break
		}
	}
	r.mu.Unlock()

	if closed != nil && r.db != nil {
		_, err := r.db.ExecContext(ctx,
			`update login_logs set logout_at=$1 where id=$2`, when, closed.ID)
		if err != nil {
			obs.Event("error", "login log update failed", map[string]any{"error": err.Error()})
		}
	}
}

// List returns matching entries, newest first.
func (r *Recorder) List(_ context.Context, q Query) []*Entry {
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var res []*Entry
	for i := len(r.entries) - 1; i >= 0 && len(res) < limit; i-- {
		e := r.entries[i]
		if q.GUID != "" && e.GUID != q.GUID {
			continue
		}
		if q.Phone != "" && e.Phone != q.Phone {
			continue
		}
		cp := *e
		res = append(res, &cp)
	}
	return res
}
