package store

import (
	"context"
	"io"
	"os"
	"sort"
	"time"

	"github.com/gocarina/gocsv"

	"backtester/internal/errors"
	"backtester/internal/models"
)

// csvBar is the CSV row layout for bar imports. PrevClose and Suspended
// are optional; a missing prev_close is derived from the prior row.
type csvBar struct {
	Date      string  `csv:"date"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    int64   `csv:"volume"`
	PrevClose float64 `csv:"prev_close,omitempty"`
	Suspended bool    `csv:"suspended,omitempty"`
}

type csvBenchmark struct {
	Date  string  `csv:"date"`
	Close float64 `csv:"close"`
}

// ReadBarsCSV parses daily bars from CSV. Rows are sorted by date and
// prev_close is backfilled from the prior close where absent.
func ReadBarsCSV(r io.Reader, symbol string) ([]models.Bar, error) {
	var rows []*csvBar
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, errors.NewDataError(symbol, "parsing CSV", err)
	}
	if len(rows) == 0 {
		return nil, errors.NewDataError(symbol, "no rows in CSV", errors.ErrNoData)
	}

	bars := make([]models.Bar, 0, len(rows))
	for _, row := range rows {
		date, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			return nil, errors.NewDataError(symbol, "invalid date "+row.Date, err)
		}
		bars = append(bars, models.Bar{
			Date:      date,
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			Volume:    row.Volume,
			PrevClose: row.PrevClose,
			Suspended: row.Suspended,
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })

	for i := range bars {
		if bars[i].PrevClose == 0 && i > 0 {
			bars[i].PrevClose = bars[i-1].Close
		}
	}
	if bars[0].PrevClose == 0 {
		bars[0].PrevClose = bars[0].Open
	}
	return bars, nil
}

// ImportBarsCSV reads a CSV file and stores its bars for the symbol.
func ImportBarsCSV(ctx context.Context, path, symbol string, ds DataStore) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.NewDataError(symbol, "opening CSV", err)
	}
	defer f.Close()

	bars, err := ReadBarsCSV(f, symbol)
	if err != nil {
		return 0, err
	}
	if err := ds.SaveBars(ctx, symbol, bars); err != nil {
		return 0, err
	}
	return len(bars), nil
}

// ReadBenchmarkCSV parses benchmark closes from CSV, sorted by date.
func ReadBenchmarkCSV(r io.Reader, symbol string) ([]models.BenchmarkPoint, error) {
	var rows []*csvBenchmark
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, errors.NewDataError(symbol, "parsing CSV", err)
	}
	if len(rows) == 0 {
		return nil, errors.NewDataError(symbol, "no rows in CSV", errors.ErrNoData)
	}

	points := make([]models.BenchmarkPoint, 0, len(rows))
	for _, row := range rows {
		date, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			return nil, errors.NewDataError(symbol, "invalid date "+row.Date, err)
		}
		points = append(points, models.BenchmarkPoint{Date: date, Close: row.Close})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}
