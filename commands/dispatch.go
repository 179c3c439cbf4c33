package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lyrebirdhq/linescribe/conversation"
	"github.com/lyrebirdhq/linescribe/db/models"
)

const (
	// Prefix marks command text.
	Prefix = "/"

	// Maximum tasks shown by /tasks.
	taskListLimit = 10

	helpReply = "📋 コマンド一覧\n" +
		"/help - このヘルプを表示\n" +
		"/stats - タスクの統計を表示\n" +
		"/tasks - 未完了タスクを一覧表示\n" +
		"/settings - 現在の設定を表示\n\n" +
		"メッセージに「TODO:」「やること:」「タスク:」を付けると自動でタスクとして記録します。"

	noTasksReply = "未完了のタスクはありません。"
)

// TaskReader is the slice of the store the dispatcher queries.
type TaskReader interface {
	CountTasks(ctx context.Context, identityID, status string) (int64, error)
	ListTasks(ctx context.Context, identityID, status, order string, limit int) ([]models.Task, error)
}

// Dispatcher routes slash-commands to their handlers.
type Dispatcher struct {
	tasks TaskReader
	log   *slog.Logger
}

func NewDispatcher(tasks TaskReader, log *slog.Logger) (*Dispatcher, error) {
	if tasks == nil {
		return nil, fmt.Errorf("nil task reader")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{tasks: tasks, log: log}, nil
}

// Dispatch handles command text and returns the reply. The boolean is false
// when text does not start with the command prefix; the caller decides what
// to do with non-command text.
func (d *Dispatcher) Dispatch(ctx context.Context, text string, identity *models.Identity) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, Prefix) {
		return "", false
	}
	fields := strings.Fields(strings.TrimPrefix(trimmed, Prefix))
	token := ""
	if len(fields) > 0 {
		token = strings.ToLower(fields[0])
	}

	switch token {
	case "help":
		return helpReply, true
	case "stats":
		return d.statsReply(ctx, identity), true
	case "tasks":
		return d.tasksReply(ctx, identity), true
	case "settings":
		return d.settingsReply(identity), true
	default:
		return fmt.Sprintf("未知のコマンドです: /%s\n/help でコマンド一覧を確認できます。", token), true
	}
}

func (d *Dispatcher) statsReply(ctx context.Context, identity *models.Identity) string {
	total, err := d.tasks.CountTasks(ctx, identity.ID, "")
	if err != nil {
		d.log.Warn("stats_query_failed", "identity_id", identity.ID, "error", err.Error())
		return "統計の取得に失敗しました。しばらくしてからもう一度お試しください。"
	}
	completed, err := d.tasks.CountTasks(ctx, identity.ID, models.TaskStatusCompleted)
	if err != nil {
		d.log.Warn("stats_query_failed", "identity_id", identity.ID, "error", err.Error())
		return "統計の取得に失敗しました。しばらくしてからもう一度お試しください。"
	}
	pending := total - completed
	rate := CompletionRate(total, completed)
	return fmt.Sprintf("📊 タスク統計\n合計: %d\n完了: %d\n未完了: %d\n完了率: %.1f%%",
		total, completed, pending, rate)
}

func (d *Dispatcher) tasksReply(ctx context.Context, identity *models.Identity) string {
	pending, err := d.tasks.ListTasks(ctx, identity.ID, models.TaskStatusPending, conversation.TaskOrderNewest, taskListLimit)
	if err != nil {
		d.log.Warn("tasks_query_failed", "identity_id", identity.ID, "error", err.Error())
		return "タスクの取得に失敗しました。しばらくしてからもう一度お試しください。"
	}
	if len(pending) == 0 {
		return noTasksReply
	}

	loc := identityLocation(identity)
	var b strings.Builder
	b.WriteString("📝 未完了タスク\n")
	for i, task := range pending {
		fmt.Fprintf(&b, "%d. %s", i+1, task.Title)
		if task.DueAt != nil {
			fmt.Fprintf(&b, "（期限: %s）", task.DueAt.In(loc).Format("1/2 15:04"))
		}
		if i < len(pending)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (d *Dispatcher) settingsReply(identity *models.Identity) string {
	tz := identity.Timezone
	if tz == "" {
		tz = models.DefaultTimezone
	}
	return fmt.Sprintf("⚙️ 設定\nタイムゾーン: %s\n設定の変更は現在サポートされていません。", tz)
}

// CompletionRate is completed/total*100, or 0 when there are no tasks.
func CompletionRate(total, completed int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}

func identityLocation(identity *models.Identity) *time.Location {
	tz := identity.Timezone
	if tz == "" {
		tz = models.DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}
