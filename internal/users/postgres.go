package users

import (
	"context"
	"database/sql"
	"encoding/json"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const userColumns = `guid, phone, user_type, status, account_source, roles, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, u *User) error {
	roles, _ := json.Marshal(u.Roles)
	_, err := s.db.ExecContext(ctx,
		`insert into users(guid, phone, user_type, status, account_source, roles) values($1,$2,$3,$4,$5,$6)`,
		u.GUID, u.Phone, u.UserType, u.Status, u.AccountSource, roles,
	)
	return err
}

func (s *PGStore) FindByPhone(ctx context.Context, phone string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where phone=$1`, phone)
	return scanUser(row)
}

func (s *PGStore) FindByGUID(ctx context.Context, guid string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where guid=$1`, guid)
	return scanUser(row)
}

func (s *PGStore) Update(ctx context.Context, u *User) error {
	roles, _ := json.Marshal(u.Roles)
	res, err := s.db.ExecContext(ctx,
		`update users set guid=$1, user_type=$2, status=$3, account_source=$4, roles=$5, updated_at=now() where phone=$6`,
		u.GUID, u.UserType, u.Status, u.AccountSource, roles, u.Phone,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) List(ctx context.Context, filter ListFilter) ([]*User, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		rows *sql.Rows
		err  error
	)
	if filter.Status != nil {
		rows, err = s.db.QueryContext(ctx,
			`select `+userColumns+` from users where status=$1 order by created_at desc limit $2 offset $3`,
			*filter.Status, limit, offset)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`select `+userColumns+` from users order by created_at desc limit $1 offset $2`,
			limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u     User
		roles []byte
	)
	if err := row.Scan(&u.GUID, &u.Phone, &u.UserType, &u.Status, &u.AccountSource, &roles, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(roles, &u.Roles)
	return &u, nil
}
