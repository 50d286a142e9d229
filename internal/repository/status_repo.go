package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sous_vide/internal/models"
)

type StatusSQLite struct {
	db *sql.DB
}

func NewStatusSQLite(db *sql.DB) *StatusSQLite {
	return &StatusSQLite{db: db}
}

const (
	deviceStatusRowID = 1

	upsertStatusSQL = `
		INSERT INTO device_status (id, current_temp, set_temp, unit, state, link_open, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			current_temp=excluded.current_temp,
			set_temp=excluded.set_temp,
			unit=excluded.unit,
			state=excluded.state,
			link_open=excluded.link_open,
			updated_at=excluded.updated_at
	`

	selectStatusSQL = `
		SELECT current_temp, set_temp, unit, state, link_open, updated_at
		FROM device_status WHERE id=?
	`
)

// Save upserts the single device_status row. A zero UpdatedAt is stamped with now.
func (r *StatusSQLite) Save(ctx context.Context, st models.DeviceStatus) error {
	ts := st.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := r.db.ExecContext(ctx, upsertStatusSQL,
		deviceStatusRowID,
		st.CurrentTemp,
		st.SetTemp,
		st.Unit,
		st.State,
		st.LinkOpen,
		ts.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save device status: %w", err)
	}
	return nil
}

// Load returns the stored status. ok is false when nothing was saved yet.
func (r *StatusSQLite) Load(ctx context.Context) (models.DeviceStatus, bool, error) {
	var st models.DeviceStatus
	err := r.db.QueryRowContext(ctx, selectStatusSQL, deviceStatusRowID).Scan(
		&st.CurrentTemp,
		&st.SetTemp,
		&st.Unit,
		&st.State,
		&st.LinkOpen,
		&st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DeviceStatus{}, false, nil
		}
		return models.DeviceStatus{}, false, fmt.Errorf("load device status: %w", err)
	}
	st.UpdatedAt = st.UpdatedAt.UTC()
	return st, true, nil
}
