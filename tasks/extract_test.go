package tasks

import (
	"testing"
	"time"
)

var tokyo = time.FixedZone("JST", 9*60*60)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestExtractor(now time.Time) *Extractor {
	return NewExtractor(tokyo, fixedNow(now), nil)
}

func TestExtract_TodoKeyword(t *testing.T) {
	e := newTestExtractor(time.Date(2024, 5, 1, 10, 0, 0, 0, tokyo))
	got, ok := e.Extract("TODO: buy milk")
	if !ok {
		t.Fatalf("expected a task")
	}
	if got.Title != "buy milk" {
		t.Fatalf("title = %q, want %q", got.Title, "buy milk")
	}
	if got.DueAt != nil {
		t.Fatalf("expected no due date, got %v", got.DueAt)
	}
}

func TestExtract_JapaneseMarkerWithTomorrow(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, tokyo)
	e := newTestExtractor(now)
	got, ok := e.Extract("タスク: 資料作成 明日まで")
	if !ok {
		t.Fatalf("expected a task")
	}
	if got.Title != "資料作成" {
		t.Fatalf("title = %q, want %q", got.Title, "資料作成")
	}
	want := time.Date(2024, 5, 2, 23, 59, 59, int(999*time.Millisecond), tokyo)
	if got.DueAt == nil || !got.DueAt.Equal(want) {
		t.Fatalf("due = %v, want %v", got.DueAt, want)
	}
}

func TestExtract_YarukotoMarker(t *testing.T) {
	e := newTestExtractor(time.Date(2024, 5, 1, 10, 0, 0, 0, tokyo))
	got, ok := e.Extract("やること: 部屋の掃除")
	if !ok || got.Title != "部屋の掃除" {
		t.Fatalf("got %+v ok=%v", got, ok)
	}
}

func TestExtract_NoKeyword(t *testing.T) {
	e := newTestExtractor(time.Date(2024, 5, 1, 10, 0, 0, 0, tokyo))
	if _, ok := e.Extract("just a normal message"); ok {
		t.Fatalf("expected no task for plain text")
	}
}

func TestExtract_EmptyRemainder(t *testing.T) {
	e := newTestExtractor(time.Date(2024, 5, 1, 10, 0, 0, 0, tokyo))
	if _, ok := e.Extract("TODO:   "); ok {
		t.Fatalf("expected no task for empty remainder")
	}
}

func TestExtract_DateOnlyTitleKeepsCandidate(t *testing.T) {
	e := newTestExtractor(time.Date(2024, 5, 1, 10, 0, 0, 0, tokyo))
	got, ok := e.Extract("todo: tomorrow")
	if !ok {
		t.Fatalf("expected a task")
	}
	// Stripping the date phrase would empty the title, so the candidate is
	// kept as-is.
	if got.Title != "tomorrow" {
		t.Fatalf("title = %q, want %q", got.Title, "tomorrow")
	}
	if got.DueAt == nil {
		t.Fatalf("expected due date")
	}
}

func TestExtract_EnglishByParticleStripped(t *testing.T) {
	e := newTestExtractor(time.Date(2024, 5, 1, 10, 0, 0, 0, tokyo))
	got, ok := e.Extract("todo: submit report by 6/15")
	if !ok {
		t.Fatalf("expected a task")
	}
	if got.Title != "submit report" {
		t.Fatalf("title = %q, want %q", got.Title, "submit report")
	}
	want := time.Date(2024, 6, 15, 23, 59, 59, int(999*time.Millisecond), tokyo)
	if got.DueAt == nil || !got.DueAt.Equal(want) {
		t.Fatalf("due = %v, want %v", got.DueAt, want)
	}
}

func TestParseDueDate_Today(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, tokyo)
	due, phrase := ParseDueDate("今日やる", now)
	if phrase != "今日" {
		t.Fatalf("phrase = %q", phrase)
	}
	want := time.Date(2024, 5, 1, 23, 59, 59, int(999*time.Millisecond), tokyo)
	if due == nil || !due.Equal(want) {
		t.Fatalf("due = %v, want %v", due, want)
	}
}

func TestParseDueDate_NumericRollsToNextYear(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, tokyo)
	due, phrase := ParseDueDate("2/1まで", now)
	if phrase != "2/1" {
		t.Fatalf("phrase = %q", phrase)
	}
	want := time.Date(2025, 2, 1, 23, 59, 59, int(999*time.Millisecond), tokyo)
	if due == nil || !due.Equal(want) {
		t.Fatalf("due = %v, want %v", due, want)
	}
}

func TestParseDueDate_NumericDashSameYear(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, tokyo)
	due, _ := ParseDueDate("12-24", now)
	want := time.Date(2024, 12, 24, 23, 59, 59, int(999*time.Millisecond), tokyo)
	if due == nil || !due.Equal(want) {
		t.Fatalf("due = %v, want %v", due, want)
	}
}

func TestParseDueDate_InvalidCalendarDate(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, tokyo)
	if due, _ := ParseDueDate("2/31", now); due != nil {
		t.Fatalf("expected nil due for 2/31, got %v", due)
	}
}

func TestParseDueDate_Idempotent(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, tokyo)
	a, _ := ParseDueDate("明日まで", now)
	b, _ := ParseDueDate("明日まで", now)
	if a == nil || b == nil || !a.Equal(*b) {
		t.Fatalf("expected identical results for fixed now: %v vs %v", a, b)
	}
}

func TestParseDueDate_NoMatch(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, tokyo)
	if due, phrase := ParseDueDate("買い物に行く", now); due != nil || phrase != "" {
		t.Fatalf("expected no match, got %v %q", due, phrase)
	}
}
