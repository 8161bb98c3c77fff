package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dealwatch/internal/engine"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertAlertSQL = `INSERT INTO alerts (
        product_key,
        name,
        url,
        currency,
        drops,
        historical_low
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    RETURNING id, product_key, name, url, currency, drops, historical_low, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        product_key,
        name,
        url,
        currency,
        drops,
        historical_low,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, alert engine.Alert) (AlertRow, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRow, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store persists dispatched alerts for auditing.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and
// returns a release func. It keeps two watcher processes from running
// cycles against the same watch set at once.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// unlock is best effort; the session close releases it anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// InsertAlert persists one dispatched alert.
func (s *Store) InsertAlert(ctx context.Context, alert engine.Alert) (AlertRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRow{}, err
	}

	drops, err := json.Marshal(alert.Drops)
	if err != nil {
		return AlertRow{}, fmt.Errorf("encode drops: %w", err)
	}

	row := pool.QueryRow(ctx, insertAlertSQL,
		alert.Key,
		alert.Name,
		alert.URL,
		alert.Currency,
		drops,
		alert.HistoricalLow,
	)

	rec, err := scanAlertRow(row)
	if err != nil {
		return AlertRow{}, fmt.Errorf("insert alert: %w", err)
	}
	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRow, 0, limit)
	for rows.Next() {
		rec, scanErr := scanAlertRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlertRow(row rowScanner) (AlertRow, error) {
	var rec AlertRow
	var drops []byte
	if err := row.Scan(
		&rec.ID,
		&rec.ProductKey,
		&rec.Name,
		&rec.URL,
		&rec.Currency,
		&drops,
		&rec.HistoricalLow,
		&rec.CreatedAt,
	); err != nil {
		return AlertRow{}, err
	}
	rec.Drops = json.RawMessage(drops)
	return rec, nil
}

var _ AlertStore = (*Store)(nil)
var _ AdvisoryLocker = (*Store)(nil)
