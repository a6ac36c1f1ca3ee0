package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(StoreConfig{Path: filepath.Join(t.TempDir(), "storage", "test.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSeedAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Seed(ctx); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	// Seeding twice is an upsert
	if err := s.Seed(ctx); err != nil {
		t.Fatalf("second Seed failed: %v", err)
	}

	car, err := s.GetCar(ctx, 2)
	if err != nil {
		t.Fatalf("GetCar failed: %v", err)
	}
	if car.Make != "Saab" || car.Year != 2020 || car.Mileage != 30000 || car.LastServiceDate != "2023-08-20" {
		t.Errorf("unexpected car: %+v", car)
	}
	if car.Issues["engine"] != "big oil leak" {
		t.Errorf("issues = %v", car.Issues)
	}

	truck, err := s.GetTruck(ctx, 1)
	if err != nil {
		t.Fatalf("GetTruck failed: %v", err)
	}
	if truck.Make != "Scania" || truck.CapacityTons != 20 || truck.Issues["brakes"] != "worn" {
		t.Errorf("unexpected truck: %+v", truck)
	}
}

func TestLookupNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetCar(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCar: expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetTruck(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTruck: expected ErrNotFound, got %v", err)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(StoreConfig{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Seed(context.Background()); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = NewSQLiteStore(StoreConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()
	if _, err := s.GetCar(context.Background(), 1); err != nil {
		t.Errorf("data lost on reopen: %v", err)
	}
}

const sampleCSV = `hex,good_aircraft,bad_aircraft,total,interference_ratio,lat,lon
a1b2c3,90,10,100,0.1,59.33,18.06
d4e5f6,20,80,100,0.8,57.70,11.97
0a0b0c,50,50,100,0.5,55.60,13.00
`

func TestLoadTimeSeriesAndWorst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.LoadTimeSeriesCSV(ctx, strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("LoadTimeSeriesCSV failed: %v", err)
	}
	if n != 3 {
		t.Errorf("loaded %d rows, want 3", n)
	}

	rows, err := s.WorstInterference(ctx, 2)
	if err != nil {
		t.Fatalf("WorstInterference failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Hex != "d4e5f6" || rows[1].Hex != "0a0b0c" {
		t.Errorf("wrong order: %s, %s", rows[0].Hex, rows[1].Hex)
	}
	if rows[0].BadAircraft != 80 || rows[0].Lat != 57.70 {
		t.Errorf("row not scanned fully: %+v", rows[0])
	}

	if _, err := s.WorstInterference(ctx, 0); err == nil {
		t.Error("expected error for zero limit")
	}
}

func TestLoadTimeSeriesColumnOrder(t *testing.T) {
	s := newTestStore(t)
	csv := "lat,lon,hex,total,good_aircraft,bad_aircraft,interference_ratio\n1.5,2.5,abc,10,9,1,0.1\n"
	if _, err := s.LoadTimeSeriesCSV(context.Background(), strings.NewReader(csv)); err != nil {
		t.Fatalf("LoadTimeSeriesCSV failed: %v", err)
	}
	rows, err := s.WorstInterference(context.Background(), 10)
	if err != nil || len(rows) != 1 {
		t.Fatalf("rows=%v err=%v", rows, err)
	}
	if rows[0].Hex != "abc" || rows[0].Lat != 1.5 || rows[0].GoodAircraft != 9 {
		t.Errorf("columns mismatched: %+v", rows[0])
	}
}

func TestLoadTimeSeriesRejectsBadRowsAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bad := sampleCSV + "ffffff,1,1,2,1.5,0,0\n"
	_, err := s.LoadTimeSeriesCSV(ctx, strings.NewReader(bad))
	var csvErr *CSVError
	if !errors.As(err, &csvErr) {
		t.Fatalf("expected *CSVError, got %v", err)
	}
	if csvErr.Line != 5 || csvErr.Column != "interference_ratio" {
		t.Errorf("error location = line %d column %q", csvErr.Line, csvErr.Column)
	}

	rows, err := s.WorstInterference(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("partial import left %d rows", len(rows))
	}

	if _, err := s.LoadTimeSeriesCSV(ctx, strings.NewReader("hex,total\nabc,1\n")); !errors.As(err, &csvErr) {
		t.Errorf("missing columns: expected *CSVError, got %v", err)
	}
	if _, err := s.LoadTimeSeriesCSV(ctx, strings.NewReader("")); !errors.As(err, &csvErr) {
		t.Errorf("empty file: expected *CSVError, got %v", err)
	}
}
