package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"backtester/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func day(d int) time.Time {
	return time.Date(2023, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestSaveAndGetBars(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bars := []models.Bar{
		{Date: day(3), Open: 10, High: 10.5, Low: 9.8, Close: 10.2, Volume: 1000, PrevClose: 10},
		{Date: day(4), Open: 10.2, High: 10.8, Low: 10.1, Close: 10.6, Volume: 1200, PrevClose: 10.2},
		{Date: day(5), Open: 10.6, High: 10.6, Low: 10.6, Close: 10.6, Volume: 0, PrevClose: 10.6, Suspended: true},
	}
	if err := s.SaveBars(ctx, "600000", bars); err != nil {
		t.Fatalf("SaveBars() error = %v", err)
	}

	got, err := s.GetBars(ctx, "600000", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetBars() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(bars) = %d, want 3", len(got))
	}
	if got[0].Close != 10.2 || got[0].PrevClose != 10 {
		t.Errorf("bars[0] = %+v", got[0])
	}
	if !got[2].Suspended {
		t.Error("bars[2] should be suspended")
	}

	// Upsert should not duplicate
	if err := s.SaveBars(ctx, "600000", bars[:1]); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetBars(ctx, "600000", time.Time{}, time.Time{})
	if len(got) != 3 {
		t.Errorf("after upsert len = %d, want 3", len(got))
	}
}

func TestGetBarsDateRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var bars []models.Bar
	for d := 2; d <= 6; d++ {
		bars = append(bars, models.Bar{Date: day(d), Open: 10, High: 10, Low: 10, Close: 10, PrevClose: 10})
	}
	if err := s.SaveBars(ctx, "000001", bars); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetBars(ctx, "000001", day(3), day(5))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if !got[0].Date.Equal(day(3)) || !got[2].Date.Equal(day(5)) {
		t.Errorf("range = %v .. %v", got[0].Date, got[2].Date)
	}
}

func TestBarsFreshnessAndSymbols(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ts, err := s.GetBarsFreshness(ctx, "600000")
	if err != nil {
		t.Fatal(err)
	}
	if !ts.IsZero() {
		t.Errorf("freshness of empty store = %v, want zero", ts)
	}

	s.SaveBars(ctx, "600000", []models.Bar{{Date: day(3), Close: 10, Open: 10, High: 10, Low: 10, PrevClose: 10}})
	s.SaveBars(ctx, "300750", []models.Bar{{Date: day(4), Close: 20, Open: 20, High: 20, Low: 20, PrevClose: 20}})

	ts, err = s.GetBarsFreshness(ctx, "600000")
	if err != nil {
		t.Fatal(err)
	}
	if !ts.Equal(day(3)) {
		t.Errorf("freshness = %v, want %v", ts, day(3))
	}

	symbols, err := s.ListSymbols(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(symbols) != 2 || symbols[0] != "300750" || symbols[1] != "600000" {
		t.Errorf("symbols = %v", symbols)
	}
}

func TestBenchmarkRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	points := []models.BenchmarkPoint{
		{Date: day(3), Close: 3200.5},
		{Date: day(4), Close: 3210.1},
	}
	if err := s.SaveBenchmark(ctx, "000300", points); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetBenchmark(ctx, "000300", time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Close != 3210.1 {
		t.Errorf("benchmark = %+v", got)
	}
}

func TestReadBarsCSV(t *testing.T) {
	csv := `date,open,high,low,close,volume
2023-01-04,10.20,10.80,10.10,10.60,1200
2023-01-03,10.00,10.50,9.80,10.20,1000
`
	bars, err := ReadBarsCSV(strings.NewReader(csv), "600000")
	if err != nil {
		t.Fatalf("ReadBarsCSV() error = %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("len = %d, want 2", len(bars))
	}
	// Sorted by date despite file order
	if !bars[0].Date.Equal(day(3)) {
		t.Errorf("bars[0].Date = %v, want %v", bars[0].Date, day(3))
	}
	// prev_close backfilled: first row from open, second from prior close
	if bars[0].PrevClose != 10.00 {
		t.Errorf("bars[0].PrevClose = %v, want 10.00", bars[0].PrevClose)
	}
	if bars[1].PrevClose != 10.20 {
		t.Errorf("bars[1].PrevClose = %v, want 10.20", bars[1].PrevClose)
	}
}

func TestReadBarsCSVErrors(t *testing.T) {
	if _, err := ReadBarsCSV(strings.NewReader("date,open,high,low,close,volume\n"), "x"); err == nil {
		t.Error("empty CSV should fail")
	}
	bad := "date,open,high,low,close,volume\n2023/01/03,10,10,10,10,100\n"
	if _, err := ReadBarsCSV(strings.NewReader(bad), "x"); err == nil {
		t.Error("bad date should fail")
	}
}

func TestReadBenchmarkCSV(t *testing.T) {
	csv := `date,close
2023-01-03,3200.5
2023-01-04,3210.1
`
	points, err := ReadBenchmarkCSV(strings.NewReader(csv), "000300")
	if err != nil {
		t.Fatalf("ReadBenchmarkCSV() error = %v", err)
	}
	if len(points) != 2 || points[0].Close != 3200.5 {
		t.Errorf("points = %+v", points)
	}
}
