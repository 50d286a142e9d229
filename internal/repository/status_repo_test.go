package repository_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"sous_vide/internal/models"
	"sous_vide/internal/repository"
)

type argFunc func(v driver.Value) bool

func (f argFunc) Match(v driver.Value) bool { return f(v) }

func newStatusRepo(t *testing.T) (*repository.StatusSQLite, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return repository.NewStatusSQLite(db), mock
}

func TestStatusSQLite_Save_StampsZeroTimeInUTC(t *testing.T) {
	repo, mock := newStatusRepo(t)

	st := models.DeviceStatus{CurrentTemp: "134.9", SetTemp: "135.5", Unit: "f", State: "running", LinkOpen: true}

	recentUTC := argFunc(func(v driver.Value) bool {
		tm, ok := v.(time.Time)
		if !ok || tm.Location() != time.UTC {
			return false
		}
		return time.Since(tm) < 5*time.Second
	})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO device_status")).
		WithArgs(1, "134.9", "135.5", "f", "running", true, recentUTC).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Save(context.Background(), st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStatusSQLite_Save_ConvertsGivenTimeToUTC(t *testing.T) {
	repo, mock := newStatusRepo(t)

	ny, _ := time.LoadLocation("America/New_York")
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, ny)
	st := models.UnknownStatus(at)

	exact := argFunc(func(v driver.Value) bool {
		tm, ok := v.(time.Time)
		return ok && tm.Equal(at) && tm.Location() == time.UTC
	})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO device_status")).
		WithArgs(1, models.Unknown, models.Unknown, models.Unknown, models.Unknown, false, exact).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Save(context.Background(), st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStatusSQLite_Save_ExecError(t *testing.T) {
	repo, mock := newStatusRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO device_status")).WillReturnError(errors.New("db down"))

	if err := repo.Save(context.Background(), models.DeviceStatus{}); err == nil {
		t.Fatalf("Save() expected error, got nil")
	}
}

func TestStatusSQLite_Load_NoRows(t *testing.T) {
	repo, mock := newStatusRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT current_temp, set_temp, unit, state, link_open, updated_at")).
		WithArgs(1).
		WillReturnError(sql.ErrNoRows)

	got, ok, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if ok || got != (models.DeviceStatus{}) {
		t.Fatalf("Load() expected nothing stored, got ok=%v %+v", ok, got)
	}
}

func TestStatusSQLite_Load_HappyPath(t *testing.T) {
	repo, mock := newStatusRepo(t)

	ny, _ := time.LoadLocation("America/New_York")
	stored := time.Date(2024, 6, 1, 8, 0, 0, 0, ny)
	rows := sqlmock.NewRows([]string{"current_temp", "set_temp", "unit", "state", "link_open", "updated_at"}).
		AddRow("134.9", "135.5", "f", "running", true, stored)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT current_temp, set_temp, unit, state, link_open, updated_at")).
		WithArgs(1).
		WillReturnRows(rows)

	got, ok, err := repo.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("Load() = ok %v, err %v", ok, err)
	}
	if got.CurrentTemp != "134.9" || got.SetTemp != "135.5" || got.Unit != "f" || got.State != "running" || !got.LinkOpen {
		t.Fatalf("Load() unexpected fields: %+v", got)
	}
	if got.UpdatedAt.Location() != time.UTC || !got.UpdatedAt.Equal(stored) {
		t.Fatalf("Load() UpdatedAt=%v", got.UpdatedAt)
	}
}

func TestStatusSQLite_Load_QueryError(t *testing.T) {
	repo, mock := newStatusRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT current_temp")).
		WithArgs(1).
		WillReturnError(errors.New("locked"))

	if _, _, err := repo.Load(context.Background()); err == nil {
		t.Fatalf("Load() expected error")
	}
}
