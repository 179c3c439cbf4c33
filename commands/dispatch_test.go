package commands

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/lyrebirdhq/linescribe/db/models"
)

type fakeTaskReader struct {
	total     int64
	completed int64
	pending   []models.Task
	countErr  error
	listErr   error
}

func (f *fakeTaskReader) CountTasks(_ context.Context, _ string, status string) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	if status == models.TaskStatusCompleted {
		return f.completed, nil
	}
	return f.total, nil
}

func (f *fakeTaskReader) ListTasks(_ context.Context, _ string, _, _ string, limit int) ([]models.Task, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if limit > 0 && len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func testIdentity() *models.Identity {
	return &models.Identity{ID: "id-1", LineID: "U123", Kind: models.IdentityKindUser, Timezone: "Asia/Tokyo"}
}

func newTestDispatcher(t *testing.T, reader TaskReader) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(reader, nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return d
}

func TestDispatch_NonCommandText(t *testing.T) {
	d := newTestDispatcher(t, &fakeTaskReader{})
	if _, ok := d.Dispatch(context.Background(), "hello there", testIdentity()); ok {
		t.Fatalf("plain text must not dispatch")
	}
}

func TestDispatch_Help(t *testing.T) {
	d := newTestDispatcher(t, &fakeTaskReader{})
	reply, ok := d.Dispatch(context.Background(), "/help", testIdentity())
	if !ok {
		t.Fatalf("expected a reply")
	}
	if !strings.Contains(reply, "/stats") || !strings.Contains(reply, "/tasks") {
		t.Fatalf("help reply missing commands: %q", reply)
	}
}

func TestDispatch_StatsCompletionRate(t *testing.T) {
	d := newTestDispatcher(t, &fakeTaskReader{total: 10, completed: 3})
	reply, ok := d.Dispatch(context.Background(), "/stats", testIdentity())
	if !ok {
		t.Fatalf("expected a reply")
	}
	if !strings.Contains(reply, "完了率: 30.0%") {
		t.Fatalf("stats reply missing completion rate: %q", reply)
	}
	if !strings.Contains(reply, "合計: 10") || !strings.Contains(reply, "未完了: 7") {
		t.Fatalf("stats reply missing counts: %q", reply)
	}
}

func TestDispatch_StatsZeroTasks(t *testing.T) {
	d := newTestDispatcher(t, &fakeTaskReader{})
	reply, _ := d.Dispatch(context.Background(), "/stats", testIdentity())
	if !strings.Contains(reply, "完了率: 0.0%") {
		t.Fatalf("expected 0.0%% rate for zero tasks: %q", reply)
	}
}

func TestDispatch_TasksEmpty(t *testing.T) {
	d := newTestDispatcher(t, &fakeTaskReader{})
	reply, _ := d.Dispatch(context.Background(), "/tasks", testIdentity())
	if reply != noTasksReply {
		t.Fatalf("reply = %q, want %q", reply, noTasksReply)
	}
}

func TestDispatch_TasksListWithDueSuffix(t *testing.T) {
	due := time.Date(2024, 5, 2, 14, 59, 59, 0, time.UTC)
	d := newTestDispatcher(t, &fakeTaskReader{pending: []models.Task{
		{Title: "資料作成", DueAt: &due},
		{Title: "buy milk"},
	}})
	reply, _ := d.Dispatch(context.Background(), "/tasks", testIdentity())
	if !strings.Contains(reply, "1. 資料作成") {
		t.Fatalf("missing first task: %q", reply)
	}
	// 2024-05-02T14:59:59Z is 23:59 in Asia/Tokyo.
	if !strings.Contains(reply, "（期限: 5/2 23:59）") {
		t.Fatalf("missing localized due suffix: %q", reply)
	}
	if !strings.Contains(reply, "2. buy milk") {
		t.Fatalf("missing second task: %q", reply)
	}
}

func TestDispatch_TasksLimitedToTen(t *testing.T) {
	pending := make([]models.Task, 0, 12)
	for i := 0; i < 12; i++ {
		pending = append(pending, models.Task{Title: "t"})
	}
	d := newTestDispatcher(t, &fakeTaskReader{pending: pending})
	reply, _ := d.Dispatch(context.Background(), "/tasks", testIdentity())
	if strings.Contains(reply, "11.") {
		t.Fatalf("expected at most 10 tasks listed: %q", reply)
	}
}

func TestDispatch_Settings(t *testing.T) {
	d := newTestDispatcher(t, &fakeTaskReader{})
	reply, _ := d.Dispatch(context.Background(), "/settings", testIdentity())
	if !strings.Contains(reply, "Asia/Tokyo") {
		t.Fatalf("settings reply missing timezone: %q", reply)
	}
}

func TestDispatch_UnknownCommand(t *testing.T) {
	d := newTestDispatcher(t, &fakeTaskReader{})
	reply, ok := d.Dispatch(context.Background(), "/frobnicate now", testIdentity())
	if !ok {
		t.Fatalf("expected a reply")
	}
	if !strings.Contains(reply, "/frobnicate") || !strings.Contains(reply, "/help") {
		t.Fatalf("unknown command reply should echo token and point at help: %q", reply)
	}
}

func TestDispatch_TokenIsCaseInsensitive(t *testing.T) {
	d := newTestDispatcher(t, &fakeTaskReader{total: 4, completed: 1})
	reply, ok := d.Dispatch(context.Background(), "/STATS", testIdentity())
	if !ok || !strings.Contains(reply, "完了率: 25.0%") {
		t.Fatalf("expected case-insensitive command, got %q ok=%v", reply, ok)
	}
}

func TestCompletionRate(t *testing.T) {
	if got := CompletionRate(0, 0); got != 0 {
		t.Fatalf("rate(0,0) = %v, want 0", got)
	}
	if got := CompletionRate(10, 3); got != 30 {
		t.Fatalf("rate(10,3) = %v, want 30", got)
	}
	if got := CompletionRate(3, 3); got != 100 {
		t.Fatalf("rate(3,3) = %v, want 100", got)
	}
}
