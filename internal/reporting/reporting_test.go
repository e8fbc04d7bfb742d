package reporting

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "postgres")), mock
}

func TestRevenueByDayScansRows(t *testing.T) {
	store, mock := newMockStore(t)

	from := time.Date(2026, 8, 18, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT to_char").
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"day", "orders", "revenue"}).
			AddRow("2026-08-23", int64(5), 1250000.0).
			AddRow("2026-08-24", int64(2), 410000.0))

	got, err := store.RevenueByDay(context.Background(), from, to)
	if err != nil {
		t.Fatalf("RevenueByDay: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}
	if got[0].Day != "2026-08-23" || got[0].Orders != 5 || got[0].Revenue != 1250000 {
		t.Errorf("first row = %+v", got[0])
	}
	if got[1].Day != "2026-08-24" || got[1].Orders != 2 || got[1].Revenue != 410000 {
		t.Errorf("second row = %+v", got[1])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRevenueByDayEmptyWindow(t *testing.T) {
	store, mock := newMockStore(t)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	mock.ExpectQuery("SELECT to_char").
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"day", "orders", "revenue"}))

	got, err := store.RevenueByDay(context.Background(), from, to)
	if err != nil {
		t.Fatalf("RevenueByDay: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("rows = %+v, want none", got)
	}
}

func TestRevenueByDayPropagatesErrors(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT to_char").WillReturnError(sql.ErrConnDone)

	_, err := store.RevenueByDay(context.Background(), time.Now().Add(-24*time.Hour), time.Now())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "revenue by day") {
		t.Errorf("err = %v", err)
	}
}
