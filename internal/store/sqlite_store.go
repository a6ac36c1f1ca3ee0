package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	. "github.com/roelfdiedericks/garage/internal/logging"
	. "github.com/roelfdiedericks/garage/internal/metrics"
	"github.com/roelfdiedericks/garage/internal/paths"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	config StoreConfig
}

// Schema version for migrations
const currentSchemaVersion = 2

// NewSQLiteStore opens (creating if needed) the database and migrates it.
func NewSQLiteStore(cfg StoreConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		cfg.Path = paths.DefaultDatabasePath()
	}
	if cfg.Path != ":memory:" {
		if err := paths.EnsureParentDir(cfg.Path); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	timeout := cfg.BusyTimeout
	if timeout == 0 {
		timeout = 5000
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on", cfg.Path, timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps CSV imports from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, config: cfg}
	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	L_debug("sqlite: store opened", "path", cfg.Path)
	return store, nil
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate() error {
	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil {
		// Table doesn't exist, start from scratch
		version = 0
	}

	if version >= currentSchemaVersion {
		L_debug("sqlite: schema up to date", "version", version)
		return nil
	}

	L_info("sqlite: migrating schema", "from", version, "to", currentSchemaVersion)

	migrations := []func(*sql.DB) error{
		migrateV1,
		migrateV2,
	}

	for i := version; i < len(migrations); i++ {
		if err := migrations[i](s.db); err != nil {
			return fmt.Errorf("migration v%d failed: %w", i+1, err)
		}
		L_debug("sqlite: applied migration", "version", i+1)
	}

	return nil
}

// migrateV1 creates the vehicle tables
func migrateV1(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	);
	INSERT INTO schema_version (version, applied_at) VALUES (1, ?);

	CREATE TABLE IF NOT EXISTS cars (
		id INTEGER PRIMARY KEY,
		make TEXT NOT NULL,
		year INTEGER NOT NULL,
		last_service_date TEXT NOT NULL,
		mileage INTEGER NOT NULL,
		issues TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS trucks (
		id INTEGER PRIMARY KEY,
		make TEXT NOT NULL,
		capacity_tons INTEGER NOT NULL,
		mileage INTEGER NOT NULL,
		issues TEXT NOT NULL DEFAULT '{}'
	);
	`
	_, err := db.Exec(schema, time.Now().Unix())
	return err
}

// migrateV2 adds the interference time-series table
func migrateV2(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS time_series (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		hex TEXT NOT NULL,
		good_aircraft INTEGER NOT NULL,
		bad_aircraft INTEGER NOT NULL,
		total INTEGER NOT NULL,
		interference_ratio REAL NOT NULL,
		lat REAL NOT NULL,
		lon REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_time_series_hex ON time_series(hex);
	CREATE INDEX IF NOT EXISTS idx_time_series_ratio ON time_series(interference_ratio DESC);

	INSERT INTO schema_version (version, applied_at) VALUES (2, ?);
	`
	_, err := db.Exec(schema, time.Now().Unix())
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	L_debug("sqlite: closing store")
	return s.db.Close()
}

// GetCar retrieves a car by id
func (s *SQLiteStore) GetCar(ctx context.Context, id int64) (*Car, error) {
	var car Car
	var issuesJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, make, year, last_service_date, mileage, issues
		FROM cars WHERE id = ?
	`, id).Scan(&car.ID, &car.Make, &car.Year, &car.LastServiceDate, &car.Mileage, &issuesJSON)

	if errors.Is(err, sql.ErrNoRows) {
		MetricOutcome("store", "get_car", "not_found")
		return nil, fmt.Errorf("car %d: %w", id, ErrNotFound)
	}
	if err != nil {
		MetricFailWithReason("store", "get_car", "query")
		return nil, fmt.Errorf("query failed: %w", err)
	}
	if err := json.Unmarshal([]byte(issuesJSON), &car.Issues); err != nil {
		L_warn("sqlite: failed to unmarshal car issues", "car", id, "error", err)
	}

	MetricOutcome("store", "get_car", "found")
	return &car, nil
}

// GetTruck retrieves a truck by id
func (s *SQLiteStore) GetTruck(ctx context.Context, id int64) (*Truck, error) {
	var truck Truck
	var issuesJSON string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, make, capacity_tons, mileage, issues
		FROM trucks WHERE id = ?
	`, id).Scan(&truck.ID, &truck.Make, &truck.CapacityTons, &truck.Mileage, &issuesJSON)

	if errors.Is(err, sql.ErrNoRows) {
		MetricOutcome("store", "get_truck", "not_found")
		return nil, fmt.Errorf("truck %d: %w", id, ErrNotFound)
	}
	if err != nil {
		MetricFailWithReason("store", "get_truck", "query")
		return nil, fmt.Errorf("query failed: %w", err)
	}
	if err := json.Unmarshal([]byte(issuesJSON), &truck.Issues); err != nil {
		L_warn("sqlite: failed to unmarshal truck issues", "truck", id, "error", err)
	}

	MetricOutcome("store", "get_truck", "found")
	return &truck, nil
}

// WorstInterference returns up to limit rows ordered by interference ratio, highest first.
func (s *SQLiteStore) WorstInterference(ctx context.Context, limit int) ([]TimeSeries, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hex, good_aircraft, bad_aircraft, total, interference_ratio, lat, lon
		FROM time_series
		ORDER BY interference_ratio DESC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var result []TimeSeries
	for rows.Next() {
		var ts TimeSeries
		if err := rows.Scan(&ts.ID, &ts.Hex, &ts.GoodAircraft, &ts.BadAircraft, &ts.Total, &ts.InterferenceRatio, &ts.Lat, &ts.Lon); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		result = append(result, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows failed: %w", err)
	}

	L_debug("sqlite: worst interference", "limit", limit, "rows", len(result))
	return result, nil
}

// Seed upserts SeedCars and SeedTrucks.
func (s *SQLiteStore) Seed(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin failed: %w", err)
	}
	defer tx.Rollback()

	for _, car := range SeedCars {
		if err := upsertCar(ctx, tx, car); err != nil {
			return err
		}
	}
	for _, truck := range SeedTrucks {
		if err := upsertTruck(ctx, tx, truck); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	L_info("sqlite: seeded", "cars", len(SeedCars), "trucks", len(SeedTrucks))
	return nil
}

func upsertCar(ctx context.Context, tx *sql.Tx, car Car) error {
	issues, err := json.Marshal(car.Issues)
	if err != nil {
		return fmt.Errorf("marshal car %d issues: %w", car.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cars (id, make, year, last_service_date, mileage, issues)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			make = excluded.make,
			year = excluded.year,
			last_service_date = excluded.last_service_date,
			mileage = excluded.mileage,
			issues = excluded.issues
	`, car.ID, car.Make, car.Year, car.LastServiceDate, car.Mileage, string(issues))
	if err != nil {
		return fmt.Errorf("upsert car %d: %w", car.ID, err)
	}
	return nil
}

func upsertTruck(ctx context.Context, tx *sql.Tx, truck Truck) error {
	issues, err := json.Marshal(truck.Issues)
	if err != nil {
		return fmt.Errorf("marshal truck %d issues: %w", truck.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO trucks (id, make, capacity_tons, mileage, issues)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			make = excluded.make,
			capacity_tons = excluded.capacity_tons,
			mileage = excluded.mileage,
			issues = excluded.issues
	`, truck.ID, truck.Make, truck.CapacityTons, truck.Mileage, string(issues))
	if err != nil {
		return fmt.Errorf("upsert truck %d: %w", truck.ID, err)
	}
	return nil
}
