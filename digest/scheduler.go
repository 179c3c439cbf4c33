package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lyrebirdhq/linescribe/conversation"
	"github.com/lyrebirdhq/linescribe/db/models"
	"github.com/lyrebirdhq/linescribe/line"
)

const (
	// ModeTasks lists pending tasks per identity and skips identities with
	// none.
	ModeTasks = "tasks"
	// ModeGreeting pushes a fixed greeting to every identity.
	ModeGreeting = "greeting"

	// Pending tasks shown in one digest.
	digestTaskLimit = 5

	greetingOnlyText = "【おはようございます！☀️】\n今日も一日頑張りましょう！"
)

// IdentityLister enumerates known identities.
type IdentityLister interface {
	ListIdentities(ctx context.Context, kind string) ([]models.Identity, error)
}

// TaskLister fetches tasks for digest composition.
type TaskLister interface {
	ListTasks(ctx context.Context, identityID, status, order string, limit int) ([]models.Task, error)
}

// MessageWriter persists outbound pushes.
type MessageWriter interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
}

// Pusher delivers a message outside the reply window.
type Pusher interface {
	Push(ctx context.Context, to string, msgs []line.Message) error
}

// Store is the persistence surface the scheduler needs.
type Store interface {
	IdentityLister
	TaskLister
	MessageWriter
}

// Config controls the digest scheduler.
type Config struct {
	Enabled bool

	// tasks|greeting, see ModeTasks/ModeGreeting.
	Mode string

	// Five-field cron expressions evaluated in Location.
	DigestCron   string
	ReminderCron string

	Location *time.Location

	// Tick is the slot-check interval.
	Tick time.Duration

	// PushTimeout bounds each outbound push call.
	PushTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		Mode:         ModeTasks,
		DigestCron:   "0 9 * * *",
		ReminderCron: "*/15 * * * *",
		Location:     time.Local,
		Tick:         30 * time.Second,
		PushTimeout:  10 * time.Second,
	}
}

// Scheduler periodically composes digest messages and pushes them through
// the platform. Each identity's push is independent: one failure never stops
// the rest of the loop.
type Scheduler struct {
	store  Store
	pusher Pusher
	cfg    Config
	log    *slog.Logger

	digestExpr   *cronSchedule
	reminderExpr *cronSchedule

	wg sync.WaitGroup
}

func New(store Store, pusher Pusher, cfg Config, log *slog.Logger) (*Scheduler, error) {
	if store == nil {
		return nil, fmt.Errorf("nil store")
	}
	if pusher == nil {
		return nil, fmt.Errorf("nil pusher")
	}
	if log == nil {
		log = slog.Default()
	}
	mode := strings.TrimSpace(cfg.Mode)
	if mode == "" {
		mode = ModeTasks
	}
	if mode != ModeTasks && mode != ModeGreeting {
		return nil, fmt.Errorf("unknown digest mode: %s", mode)
	}
	cfg.Mode = mode
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 30 * time.Second
	}
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.DigestCron) == "" {
		cfg.DigestCron = "0 9 * * *"
	}
	if strings.TrimSpace(cfg.ReminderCron) == "" {
		cfg.ReminderCron = "*/15 * * * *"
	}

	digestExpr, err := parseCronSchedule(cfg.DigestCron)
	if err != nil {
		return nil, fmt.Errorf("digest cron: %w", err)
	}
	reminderExpr, err := parseCronSchedule(cfg.ReminderCron)
	if err != nil {
		return nil, fmt.Errorf("reminder cron: %w", err)
	}

	return &Scheduler{
		store:        store,
		pusher:       pusher,
		cfg:          cfg,
		log:          log,
		digestExpr:   digestExpr,
		reminderExpr: reminderExpr,
	}, nil
}

// Start launches the slot loop. It returns immediately; Wait blocks until the
// loop exits after ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now().In(s.cfg.Location)
	nextDigest, err := s.digestExpr.next(now)
	if err != nil {
		return fmt.Errorf("digest slot: %w", err)
	}
	nextReminder, err := s.reminderExpr.next(now)
	if err != nil {
		return fmt.Errorf("reminder slot: %w", err)
	}

	s.log.Info("digest_scheduler_start",
		"mode", s.cfg.Mode,
		"next_digest", nextDigest.Format(time.RFC3339),
		"tick_ms", s.cfg.Tick.Milliseconds())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx, nextDigest, nextReminder)
	}()
	return nil
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, nextDigest, nextReminder time.Time) {
	t := time.NewTicker(s.cfg.Tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("digest_scheduler_stop", "reason", ctx.Err().Error())
			return
		case <-t.C:
			now := time.Now().In(s.cfg.Location)
			if !now.Before(nextDigest) {
				s.RunDigest(ctx)
				next, err := s.digestExpr.next(now)
				if err != nil {
					s.log.Warn("digest_slot_error", "error", err.Error())
					next = now.Add(24 * time.Hour)
				}
				nextDigest = next
			}
			if !now.Before(nextReminder) {
				s.runReminders(ctx)
				next, err := s.reminderExpr.next(now)
				if err != nil {
					s.log.Warn("reminder_slot_error", "error", err.Error())
					next = now.Add(15 * time.Minute)
				}
				nextReminder = next
			}
		}
	}
}

// RunDigest pushes one digest round to every known user identity. Delivery
// failures are logged per identity and do not stop the loop; successful
// pushes are persisted as outbound messages.
func (s *Scheduler) RunDigest(ctx context.Context) {
	s.log.Info("digest_run_start", "mode", s.cfg.Mode)

	identities, err := s.store.ListIdentities(ctx, models.IdentityKindUser)
	if err != nil {
		s.log.Warn("digest_list_identities_failed", "error", err.Error())
		return
	}

	sent := 0
	for _, identity := range identities {
		text, ok := s.Compose(ctx, identity)
		if !ok {
			continue
		}
		if s.pushAndPersist(ctx, identity, text) {
			sent++
		}
	}
	s.log.Info("digest_run_done", "identities", len(identities), "sent", sent)
}

// Compose builds the digest text for one identity. The boolean is false when
// the identity should be skipped (task-aware mode with no pending tasks).
func (s *Scheduler) Compose(ctx context.Context, identity models.Identity) (string, bool) {
	if s.cfg.Mode == ModeGreeting {
		return greetingOnlyText, true
	}

	pending, err := s.store.ListTasks(ctx, identity.ID, models.TaskStatusPending, conversation.TaskOrderPriority, digestTaskLimit)
	if err != nil {
		s.log.Warn("digest_tasks_query_failed", "identity_id", identity.ID, "error", err.Error())
		return "", false
	}
	if len(pending) == 0 {
		return "", false
	}

	var b strings.Builder
	b.WriteString("【おはようございます！☀️】\n今日の未完了タスクはこちらです：\n\n")
	for i, task := range pending {
		fmt.Fprintf(&b, "%d. %s\n", i+1, task.Title)
	}
	b.WriteString("\n今日も一日頑張りましょう！")
	return b.String(), true
}

func (s *Scheduler) pushAndPersist(ctx context.Context, identity models.Identity, text string) bool {
	msgs := []line.Message{line.TextMessage(text)}

	pushCtx, cancel := context.WithTimeout(ctx, s.cfg.PushTimeout)
	defer cancel()
	if err := s.pusher.Push(pushCtx, identity.LineID, msgs); err != nil {
		s.log.Warn("digest_push_failed", "line_id", identity.LineID, "error", err.Error())
		return false
	}

	raw, _ := json.Marshal(msgs)
	out := &models.Message{
		IdentityID: identity.ID,
		Kind:       line.MessageTypeText,
		Text:       &text,
		Raw:        string(raw),
		FromUser:   false,
	}
	if err := s.store.CreateMessage(ctx, out); err != nil {
		s.log.Warn("digest_persist_failed", "identity_id", identity.ID, "error", err.Error())
	}
	return true
}

// runReminders is the lower-frequency slot reserved for due-date reminder
// logic.
func (s *Scheduler) runReminders(_ context.Context) {
	s.log.Debug("reminder_slot_fired")
}
