// Package store persists the pharmacy dataset to SQLite so the service can
// boot from the last good snapshot when the upstream feed is down.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/farmaturno/farmacias-api/interfaces"
	"github.com/farmaturno/farmacias-api/logging"
	"github.com/farmaturno/farmacias-api/minsalparser/entities"

	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3" // Register dialect
	_ "modernc.org/sqlite"                             // Register driver
)

// insertBatchSize keeps each INSERT under SQLite's bind-variable limit.
const insertBatchSize = 500

const savedAtKey = "saved_at"

var pharmacyColumns = []any{
	"local_id", "nombre", "direccion", "comuna", "localidad", "region",
	"telefono", "lat", "lng", "hora_apertura", "hora_cierre",
	"dia_funcionamiento", "fecha_actualizacion", "es_turno", "es_cadena",
}

// Compile-time check to ensure SQLiteStore implements SnapshotStore interface
var _ interfaces.SnapshotStore = (*SQLiteStore)(nil)

// SQLiteStore keeps exactly one dataset snapshot: each save wipes the
// previous one inside the same transaction.
type SQLiteStore struct {
	db      *sql.DB
	builder *goqu.Database
}

// NewSQLiteStore opens or creates the snapshot database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping snapshot db: %w", err)
	}

	// WAL plus a single connection avoids SQLITE_BUSY while a save and a
	// load overlap.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		db:      db,
		builder: goqu.New("sqlite3", db),
	}
	if err := store.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Warn("Failed to close snapshot db after migration error", "error", closeErr)
		}
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS pharmacies (
			local_id TEXT PRIMARY KEY,
			nombre TEXT NOT NULL,
			direccion TEXT,
			comuna TEXT,
			localidad TEXT,
			region TEXT,
			telefono TEXT,
			lat REAL,
			lng REAL,
			hora_apertura TEXT,
			hora_cierre TEXT,
			dia_funcionamiento TEXT,
			fecha_actualizacion TEXT,
			es_turno BOOLEAN DEFAULT 0,
			es_cadena BOOLEAN DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pharmacies_comuna ON pharmacies(comuna);`,
		`CREATE INDEX IF NOT EXISTS idx_pharmacies_turno ON pharmacies(es_turno);`,
		`CREATE TABLE IF NOT EXISTS snapshot_meta (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}
	return nil
}

// SaveSnapshot replaces the stored snapshot with pharmacies and stamps it
// with the current time.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, pharmacies []entities.Pharmacy) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			logging.Warn("Failed to roll back snapshot transaction", "error", err)
		}
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM pharmacies"); err != nil {
		return fmt.Errorf("failed to clear previous snapshot: %w", err)
	}

	for start := 0; start < len(pharmacies); start += insertBatchSize {
		end := min(start+insertBatchSize, len(pharmacies))

		records := make([]goqu.Record, 0, end-start)
		for _, p := range pharmacies[start:end] {
			records = append(records, goqu.Record{
				"local_id":            p.LocalID,
				"nombre":              p.Nombre,
				"direccion":           p.Direccion,
				"comuna":              p.Comuna,
				"localidad":           p.Localidad,
				"region":              p.Region,
				"telefono":            p.Telefono,
				"lat":                 p.Lat,
				"lng":                 p.Lng,
				"hora_apertura":       p.HoraApertura,
				"hora_cierre":         p.HoraCierre,
				"dia_funcionamiento":  p.DiaFuncionamiento,
				"fecha_actualizacion": p.FechaActualizacion,
				"es_turno":            p.EsTurno,
				"es_cadena":           p.EsCadena,
			})
		}

		query, args, err := s.builder.Insert("pharmacies").Rows(records).ToSQL()
		if err != nil {
			return fmt.Errorf("failed to build insert query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert snapshot batch: %w", err)
		}
	}

	savedAt := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO snapshot_meta(key, value) VALUES(?, ?)",
		savedAtKey, savedAt); err != nil {
		return fmt.Errorf("failed to record snapshot time: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	logging.Info("Snapshot persisted", "pharmacies", len(pharmacies))
	return nil
}

// LoadSnapshot returns the stored snapshot and when it was saved. An empty
// store is an error: a dataset of zero pharmacies is never worth serving.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context) ([]entities.Pharmacy, time.Time, error) {
	query, args, err := s.builder.Select(pharmacyColumns...).
		From("pharmacies").
		Order(goqu.I("comuna").Asc(), goqu.I("nombre").Asc()).
		ToSQL()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to build snapshot query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Warn("Failed to close snapshot rows", "error", err)
		}
	}()

	var pharmacies []entities.Pharmacy
	for rows.Next() {
		var p entities.Pharmacy
		err := rows.Scan(
			&p.LocalID, &p.Nombre, &p.Direccion, &p.Comuna, &p.Localidad,
			&p.Region, &p.Telefono, &p.Lat, &p.Lng, &p.HoraApertura,
			&p.HoraCierre, &p.DiaFuncionamiento, &p.FechaActualizacion,
			&p.EsTurno, &p.EsCadena,
		)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		pharmacies = append(pharmacies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("error iterating snapshot rows: %w", err)
	}

	if len(pharmacies) == 0 {
		return nil, time.Time{}, fmt.Errorf("no snapshot available")
	}

	savedAt, err := s.savedAt(ctx)
	if err != nil {
		return nil, time.Time{}, err
	}

	return pharmacies, savedAt, nil
}

// savedAt reads the snapshot timestamp. A missing or garbled value
// degrades to the zero time: the data is still worth loading and the
// health check will flag it as stale.
func (s *SQLiteStore) savedAt(ctx context.Context) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM snapshot_meta WHERE key = ?", savedAtKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read snapshot time: %w", err)
	}

	savedAt, err := time.Parse(time.RFC3339, value)
	if err != nil {
		logging.Warn("Snapshot time is unparsable", "value", value, "error", err)
		return time.Time{}, nil
	}
	return savedAt, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
