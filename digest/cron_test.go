package digest

import (
	"testing"
	"time"
)

func TestCronSchedule_Next_EveryMinute(t *testing.T) {
	s, err := parseCronSchedule("* * * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	after := time.Date(2026, 2, 3, 9, 0, 30, 0, time.UTC)
	next, err := s.next(after)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if want := time.Date(2026, 2, 3, 9, 1, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("want %s, got %s", want.Format(time.RFC3339), next.Format(time.RFC3339))
	}
}

func TestCronSchedule_Next_DailyAt0900(t *testing.T) {
	s, err := parseCronSchedule("0 9 * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	after := time.Date(2026, 2, 3, 8, 59, 59, 0, time.UTC)
	next, err := s.next(after)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if want := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("want %s, got %s", want.Format(time.RFC3339), next.Format(time.RFC3339))
	}
}

func TestCronSchedule_Next_KeepsLocation(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	s, err := parseCronSchedule("0 9 * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	after := time.Date(2026, 2, 3, 10, 0, 0, 0, jst)
	next, err := s.next(after)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	// Past 09:00 local, so the slot rolls to 09:00 the next local day.
	if want := time.Date(2026, 2, 4, 9, 0, 0, 0, jst); !next.Equal(want) {
		t.Fatalf("want %s, got %s", want.Format(time.RFC3339), next.Format(time.RFC3339))
	}
}

func TestCronSchedule_Next_EveryFifteenMinutes(t *testing.T) {
	s, err := parseCronSchedule("*/15 * * * *")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	after := time.Date(2026, 2, 3, 9, 16, 0, 0, time.UTC)
	next, err := s.next(after)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if want := time.Date(2026, 2, 3, 9, 30, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("want %s, got %s", want.Format(time.RFC3339), next.Format(time.RFC3339))
	}
}

func TestParseCronSchedule_Invalid(t *testing.T) {
	for _, expr := range []string{"0 9 * *", "61 * * * *", "* * * * x", ""} {
		if _, err := parseCronSchedule(expr); err == nil {
			t.Fatalf("expected error for %q", expr)
		}
	}
}
