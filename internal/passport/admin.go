package passport

import (
	"context"
	"errors"
	"time"

	"starpass.org/internal/audit"
	"starpass.org/internal/loginlog"
	"starpass.org/internal/obs"
	"starpass.org/internal/users"
)

// Admin-surface failures. These map to plain HTTP statuses, not wire codes;
// the ERR_* vocabulary belongs to the client-facing passport endpoints.
var (
	ErrUnknownAccount  = errors.New("passport: unknown account")
	ErrBadStatusFilter = errors.New("passport: unknown status filter")
)

// AdminUser is the masked account view exposed to back-office listings.
type AdminUser struct {
	GUID          string    `json:"guid"`
	Phone         string    `json:"phone"`
	UserType      string    `json:"user_type"`
	Status        string    `json:"status"`
	AccountSource string    `json:"account_source"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Activity bundles recent login attempts and audit events for one query.
type Activity struct {
	Logins []*loginlog.Entry `json:"logins"`
	Audit  []*audit.Entry    `json:"audit"`
}

// AdminService carries the back-office account operations.
type AdminService struct {
	users    users.Store
	sessions *SessionStore
	logins   *loginlog.Recorder
	audit    *audit.Log
	roles    *RoleMapping
}

func NewAdminService(
	store users.Store,
	sessions *SessionStore,
	logins *loginlog.Recorder,
	auditLog *audit.Log,
	roles *RoleMapping,
) *AdminService {
	return &AdminService{
		users:    store,
		sessions: sessions,
		logins:   logins,
		audit:    auditLog,
		roles:    roles,
	}
}

// ListUsers returns accounts, optionally narrowed to one status label
// (ACTIVE, BANNED, DELETED). Phones come back masked.
func (s *AdminService) ListUsers(ctx context.Context, statusLabel string, limit, offset int) ([]*AdminUser, error) {
	filter := users.ListFilter{Limit: limit, Offset: offset}
	switch statusLabel {
	case "":
	case "ACTIVE":
		st := users.StatusActive
		filter.Status = &st
	case "BANNED":
		st := users.StatusBanned
		filter.Status = &st
	case "DELETED":
		st := users.StatusDeleted
		filter.Status = &st
	default:
		return nil, ErrBadStatusFilter
	}

	list, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, s.storeFailure("list users", err)
	}
	out := make([]*AdminUser, 0, len(list))
	for _, u := range list {
		out = append(out, &AdminUser{
			GUID:          u.GUID,
			Phone:         MaskPhone(u.Phone),
			UserType:      s.roles.UserTypeLabel(u.UserType),
			Status:        users.StatusLabel(u.Status),
			AccountSource: u.AccountSource,
			CreatedAt:     u.CreatedAt,
			UpdatedAt:     u.UpdatedAt,
		})
	}
	return out, nil
}

// BanUser flips the account to BANNED and revokes its session immediately.
// Banning an already banned account succeeds.
func (s *AdminService) BanUser(ctx context.Context, guid, actor, reason string) error {
	u, err := s.users.FindByGUID(ctx, guid)
	if errors.Is(err, users.ErrNotFound) {
		return ErrUnknownAccount
	}
	if err != nil {
		return s.storeFailure("find user", err)
	}
	if u.Status != users.StatusBanned {
		u.Status = users.StatusBanned
		if err := s.users.Update(ctx, u); err != nil {
			return s.storeFailure("ban user", err)
		}
	}
	if err := s.sessions.Delete(ctx, guid); err != nil {
		return s.storeFailure("revoke session", err)
	}
	s.audit.Record(ctx, audit.EventBan, guid, "", actor, map[string]any{"reason": reason})
	return nil
}

// UnbanUser restores a banned account to ACTIVE. The user logs in again on
// their own; no session is created here.
func (s *AdminService) UnbanUser(ctx context.Context, guid, actor string) error {
	u, err := s.users.FindByGUID(ctx, guid)
	if errors.Is(err, users.ErrNotFound) {
		return ErrUnknownAccount
	}
	if err != nil {
		return s.storeFailure("find user", err)
	}
	if u.Status == users.StatusBanned {
		u.Status = users.StatusActive
		if err := s.users.Update(ctx, u); err != nil {
			return s.storeFailure("unban user", err)
		}
	}
	s.audit.Record(ctx, audit.EventUnban, guid, "", actor, nil)
	return nil
}

// ListActivity returns recent login attempts and audit events, optionally
// narrowed to one guid.
func (s *AdminService) ListActivity(ctx context.Context, guid string, limit int) *Activity {
	return &Activity{
		Logins: s.logins.List(ctx, loginlog.Query{GUID: guid, Limit: limit}),
		Audit:  s.audit.List(ctx, audit.Query{GUID: guid, Limit: limit}),
	}
}

func (s *AdminService) storeFailure(op string, err error) error {
	obs.Event("error", "admin store failure", map[string]any{
		"op":    op,
		"error": err.Error(),
	})
	return errInternal()
}
