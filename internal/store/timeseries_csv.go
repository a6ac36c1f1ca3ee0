package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	. "github.com/roelfdiedericks/garage/internal/logging"
	. "github.com/roelfdiedericks/garage/internal/metrics"
)

// timeSeriesColumns are required in the CSV header, in any order.
var timeSeriesColumns = []string{"hex", "good_aircraft", "bad_aircraft", "total", "interference_ratio", "lat", "lon"}

// CSVError points at the offending CSV line.
type CSVError struct {
	Line   int
	Column string
	Err    error
}

func (e *CSVError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("csv line %d, column %s: %v", e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("csv line %d: %v", e.Line, e.Err)
}

func (e *CSVError) Unwrap() error {
	return e.Err
}

// LoadTimeSeriesCSV imports every row in one transaction; nothing is written
// if any row is malformed.
func (s *SQLiteStore) LoadTimeSeriesCSV(ctx context.Context, r io.Reader) (int, error) {
	start := time.Now()

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return 0, &CSVError{Line: 1, Err: errors.New("empty file")}
	}
	if err != nil {
		return 0, &CSVError{Line: 1, Err: err}
	}
	index, err := columnIndex(header)
	if err != nil {
		return 0, &CSVError{Line: 1, Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin failed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO time_series (hex, good_aircraft, bad_aircraft, total, interference_ratio, lat, lon)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare failed: %w", err)
	}
	defer stmt.Close()

	count := 0
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return 0, &CSVError{Line: line, Err: err}
		}

		ts, err := parseTimeSeries(record, index, line)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, ts.Hex, ts.GoodAircraft, ts.BadAircraft, ts.Total, ts.InterferenceRatio, ts.Lat, ts.Lon); err != nil {
			return 0, fmt.Errorf("insert line %d: %w", line, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit failed: %w", err)
	}

	MetricSince("store", "load_timeseries", start)
	MetricAdd("store", "timeseries_rows", int64(count))
	L_elapsed(start, "sqlite: time series loaded", "rows", count)
	return count, nil
}

func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var missing []string
	for _, col := range timeSeriesColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return index, nil
}

func parseTimeSeries(record []string, index map[string]int, line int) (TimeSeries, error) {
	var ts TimeSeries
	field := func(col string) string {
		return strings.TrimSpace(record[index[col]])
	}
	atoi := func(col string) (int, error) {
		v, err := strconv.Atoi(field(col))
		if err != nil {
			return 0, &CSVError{Line: line, Column: col, Err: err}
		}
		return v, nil
	}
	atof := func(col string) (float64, error) {
		v, err := strconv.ParseFloat(field(col), 64)
		if err != nil {
			return 0, &CSVError{Line: line, Column: col, Err: err}
		}
		return v, nil
	}

	var err error
	ts.Hex = field("hex")
	if ts.Hex == "" {
		return ts, &CSVError{Line: line, Column: "hex", Err: errors.New("empty")}
	}
	if ts.GoodAircraft, err = atoi("good_aircraft"); err != nil {
		return ts, err
	}
	if ts.BadAircraft, err = atoi("bad_aircraft"); err != nil {
		return ts, err
	}
	if ts.Total, err = atoi("total"); err != nil {
		return ts, err
	}
	if ts.InterferenceRatio, err = atof("interference_ratio"); err != nil {
		return ts, err
	}
	if ts.InterferenceRatio < 0 || ts.InterferenceRatio > 1 {
		return ts, &CSVError{Line: line, Column: "interference_ratio", Err: fmt.Errorf("%v outside [0, 1]", ts.InterferenceRatio)}
	}
	if ts.Lat, err = atof("lat"); err != nil {
		return ts, err
	}
	if ts.Lon, err = atof("lon"); err != nil {
		return ts, err
	}
	return ts, nil
}
