package cli

import (
	"math"
	"testing"
	"time"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{0, "¥0.00"},
		{999.5, "¥999.50"},
		{1000, "¥1,000.00"},
		{100000, "¥100,000.00"},
		{1234567.89, "¥1,234,567.89"},
		{-5432.1, "-¥5,432.10"},
	}
	for _, tt := range tests {
		if got := FormatMoney(tt.amount); got != tt.want {
			t.Errorf("FormatMoney(%v) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	if got := FormatPercent(0.1234); got != "+12.34%" {
		t.Errorf("FormatPercent(0.1234) = %q", got)
	}
	if got := FormatPercent(-0.05); got != "-5.00%" {
		t.Errorf("FormatPercent(-0.05) = %q", got)
	}
	if got := FormatPercent(0); got != "0.00%" {
		t.Errorf("FormatPercent(0) = %q", got)
	}
}

func TestFormatRatio(t *testing.T) {
	if got := FormatRatio(1.2345); got != "1.23" {
		t.Errorf("FormatRatio(1.2345) = %q", got)
	}
	if got := FormatRatio(math.Inf(1)); got != "inf" {
		t.Errorf("FormatRatio(+Inf) = %q", got)
	}
	if got := FormatRatio(math.NaN()); got != "-" {
		t.Errorf("FormatRatio(NaN) = %q", got)
	}
}

func TestFormatCompact(t *testing.T) {
	if got := FormatCompact(123456789); got != "1.23亿" {
		t.Errorf("FormatCompact(123456789) = %q", got)
	}
	if got := FormatCompact(54321); got != "5.43万" {
		t.Errorf("FormatCompact(54321) = %q", got)
	}
	if got := FormatCompact(999); got != "999.00" {
		t.Errorf("FormatCompact(999) = %q", got)
	}
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2023, 5, 9, 0, 0, 0, 0, time.UTC)
	if got := FormatDate(d); got != "2023-05-09" {
		t.Errorf("FormatDate = %q", got)
	}
	if got := FormatDate(time.Time{}); got != "-" {
		t.Errorf("FormatDate(zero) = %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(250 * time.Millisecond); got != "250ms" {
		t.Errorf("FormatDuration(250ms) = %q", got)
	}
	if got := FormatDuration(1500 * time.Millisecond); got != "1.5s" {
		t.Errorf("FormatDuration(1.5s) = %q", got)
	}
	if got := FormatDuration(90 * time.Second); got != "1m30s" {
		t.Errorf("FormatDuration(90s) = %q", got)
	}
}

func TestFormatParams(t *testing.T) {
	params := map[string]float64{"fast_period": 5, "slow_period": 20, "threshold": 0.5}
	got := FormatParams(params, []string{"fast_period", "slow_period", "threshold"})
	want := "fast_period=5 slow_period=20 threshold=0.5"
	if got != want {
		t.Errorf("FormatParams = %q, want %q", got, want)
	}

	// Missing keys are skipped
	got = FormatParams(params, []string{"fast_period", "missing"})
	if got != "fast_period=5" {
		t.Errorf("FormatParams with missing key = %q", got)
	}
}

func TestParseSetFlags(t *testing.T) {
	params, err := parseSetFlags([]string{"fast_period=5", "threshold=0.25"})
	if err != nil {
		t.Fatalf("parseSetFlags() error = %v", err)
	}
	if params["fast_period"] != 5 || params["threshold"] != 0.25 {
		t.Errorf("params = %v", params)
	}

	if _, err := parseSetFlags([]string{"no-equals"}); err == nil {
		t.Error("missing = should fail")
	}
	if _, err := parseSetFlags([]string{"x=abc"}); err == nil {
		t.Error("non-numeric value should fail")
	}
}
