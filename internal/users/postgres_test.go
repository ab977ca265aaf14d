package users

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestPGStoreFindByPhone(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"guid", "phone", "user_type", "status", "account_source", "roles", "created_at", "updated_at"}).
		AddRow("20260301011234567890", "13800138000", 1, StatusActive, "phone", []byte(`null`), now, now)
	mock.ExpectQuery(`select .* from users where phone=\$1`).
		WithArgs("13800138000").
		WillReturnRows(rows)

	store := NewPGStore(db)
	u, err := store.FindByPhone(context.Background(), "13800138000")
	if err != nil {
		t.Fatalf("FindByPhone: %v", err)
	}
	if u.GUID != "20260301011234567890" || u.Status != StatusActive {
		t.Fatalf("unexpected user: %+v", u)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGStoreFindByPhoneMissing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`select .* from users where phone=\$1`).
		WithArgs("13800138001").
		WillReturnRows(sqlmock.NewRows([]string{"guid", "phone", "user_type", "status", "account_source", "roles", "created_at", "updated_at"}))

	store := NewPGStore(db)
	if _, err := store.FindByPhone(context.Background(), "13800138001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGStoreUpdateRotatesGUID(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`update users set guid=\$1`).
		WithArgs("20260302011234567891", 1, StatusActive, "phone", []byte(`null`), "13800138000").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPGStore(db)
	err = store.Update(context.Background(), &User{
		GUID:          "20260302011234567891",
		Phone:         "13800138000",
		UserType:      1,
		Status:        StatusActive,
		AccountSource: "phone",
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGStoreUpdateMissing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`update users set guid=\$1`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPGStore(db)
	err = store.Update(context.Background(), &User{Phone: "13800138009"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGStoreListFiltersStatus(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	banned := StatusBanned
	rows := sqlmock.NewRows([]string{"guid", "phone", "user_type", "status", "account_source", "roles", "created_at", "updated_at"}).
		AddRow("20260301011234567890", "13800138000", 1, StatusBanned, "phone", []byte(`null`), now, now)
	mock.ExpectQuery(`select .* from users where status=\$1`).
		WithArgs(banned, 50, 0).
		WillReturnRows(rows)

	store := NewPGStore(db)
	list, err := store.List(context.Background(), ListFilter{Status: &banned})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Status != StatusBanned {
		t.Fatalf("unexpected list: %+v", list)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	u := &User{GUID: "20260301011234567890", Phone: "13800138000", UserType: 1, Status: StatusActive, AccountSource: "phone"}
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.FindByGUID(ctx, u.GUID)
	if err != nil {
		t.Fatalf("FindByGUID: %v", err)
	}
	if got.Phone != u.Phone {
		t.Fatalf("phone mismatch: %q", got.Phone)
	}

	got.GUID = "20260302011234567891"
	got.Status = StatusDeleted
	if err := store.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// The old guid no longer resolves, the phone still does.
	if _, err := store.FindByGUID(ctx, u.GUID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for rotated guid, got %v", err)
	}
	byPhone, err := store.FindByPhone(ctx, u.Phone)
	if err != nil {
		t.Fatalf("FindByPhone: %v", err)
	}
	if byPhone.GUID != "20260302011234567891" || byPhone.Status != StatusDeleted {
		t.Fatalf("unexpected user after update: %+v", byPhone)
	}
}
