package cronexpr_test

import (
	"testing"
	"time"

	"github.com/madcok-co/asynctask/internal/cronexpr"
)

func TestParse_EveryMinute(t *testing.T) {
	expr, err := cronexpr.Parse("* * * * *")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !expr.Matches(time.Date(2026, 1, 1, 3, 17, 0, 0, time.UTC)) {
		t.Error("'* * * * *' should match every minute")
	}
}

func TestParse_StepMinutes(t *testing.T) {
	expr, err := cronexpr.Parse("*/15 * * * *")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !expr.Matches(time.Date(2026, 1, 1, 3, 30, 0, 0, time.UTC)) {
		t.Error("minute 30 should match */15")
	}
	if expr.Matches(time.Date(2026, 1, 1, 3, 31, 0, 0, time.UTC)) {
		t.Error("minute 31 should not match */15")
	}
}

func TestParse_SpecificHourList(t *testing.T) {
	expr, err := cronexpr.Parse("0 9,17 * * *")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !expr.Matches(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)) {
		t.Error("09:00 should match")
	}
	if !expr.Matches(time.Date(2026, 1, 1, 17, 0, 0, 0, time.UTC)) {
		t.Error("17:00 should match")
	}
	if expr.Matches(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)) {
		t.Error("12:00 should not match")
	}
}

func TestParse_RejectsWrongFieldCount(t *testing.T) {
	if _, err := cronexpr.Parse("* * * *"); err == nil {
		t.Fatal("expected error for 4-field expression")
	}
}

func TestNext_FindsFutureMatch(t *testing.T) {
	expr, err := cronexpr.Parse("30 4 * * *")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := expr.Next(after)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if next.Hour() != 4 || next.Minute() != 30 {
		t.Errorf("Next() = %v, want 04:30", next)
	}
	if !next.After(after) {
		t.Errorf("Next() = %v, want strictly after %v", next, after)
	}
}
