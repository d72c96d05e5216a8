package scheduler

import (
	"testing"
	"time"
)

func TestParseCron(t *testing.T) {
	for _, expr := range []string{"0 * * * *", "*/5 * * * *", "@hourly", "@daily"} {
		c, err := ParseCron(expr)
		if err != nil {
			t.Errorf("%q: %v", expr, err)
			continue
		}
		if c.String() != expr {
			t.Errorf("String: got %q, want %q", c.String(), expr)
		}
	}
	if _, err := ParseCron("not a cron"); err == nil {
		t.Error("expected error for invalid expression")
	}
	// seconds field is not accepted
	if _, err := ParseCron("0 0 * * * *"); err == nil {
		t.Error("expected error for six fields")
	}
}

func TestCronExpr_Next(t *testing.T) {
	c, _ := ParseCron("0 12 * * *")
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	want := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := c.Next(base); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestCronExpr_Matches(t *testing.T) {
	c, _ := ParseCron("30 14 * * *")
	if !c.Matches(time.Date(2026, 6, 15, 14, 30, 45, 0, time.UTC)) {
		t.Error("14:30:45 should match")
	}
	if c.Matches(time.Date(2026, 6, 15, 14, 31, 0, 0, time.UTC)) {
		t.Error("14:31 should not match")
	}

	hourly, _ := ParseCron("0 * * * *")
	if !hourly.Matches(time.Date(2026, 6, 15, 3, 0, 10, 0, time.UTC)) {
		t.Error("top of the hour should match")
	}
}
