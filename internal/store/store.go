// Package store persists the vehicles and interference time-series the
// agents' tools read from.
package store

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the data access used by tools and the CLI.
type Store interface {
	GetCar(ctx context.Context, id int64) (*Car, error)
	GetTruck(ctx context.Context, id int64) (*Truck, error)
	WorstInterference(ctx context.Context, limit int) ([]TimeSeries, error)

	// Seed upserts the demo cars and trucks.
	Seed(ctx context.Context) error

	// LoadTimeSeriesCSV imports a headered CSV, returning the number of rows.
	LoadTimeSeriesCSV(ctx context.Context, r io.Reader) (int, error)

	Close() error
}

// StoreConfig configures a SQLite store
type StoreConfig struct {
	Path        string // database file
	BusyTimeout int    // milliseconds, default 5000
}
