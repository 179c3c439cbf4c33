package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lyrebirdhq/linescribe/db/models"
	"github.com/lyrebirdhq/linescribe/line"
	"github.com/lyrebirdhq/linescribe/tasks"
)

// IdentityResolver resolves a platform id to a stored identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, lineID string, opts ResolveOptions) (*models.Identity, error)
}

// MessageStore is the slice of the store the router writes to.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	CreateTask(ctx context.Context, task *models.Task) error
}

// Replier sends reply messages back through the platform.
type Replier interface {
	Reply(ctx context.Context, replyToken string, msgs []line.Message) error
}

// TaskExtractor classifies free text and extracts a task candidate.
type TaskExtractor interface {
	Extract(text string) (tasks.Extracted, bool)
}

// CommandDispatcher produces a reply for slash-command text. The boolean is
// false when the text is not a command.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, text string, identity *models.Identity) (string, bool)
}

// RouterOptions wires the router's collaborators.
type RouterOptions struct {
	Store      MessageStore
	Resolver   IdentityResolver
	Extractor  TaskExtractor
	Dispatcher CommandDispatcher
	Replier    Replier

	// EchoEnabled makes the router echo non-command text back to the sender.
	// Off by default: plain messages are ingested silently.
	EchoEnabled bool

	// ReplyTimeout bounds each outbound reply call. Defaults to 10s.
	ReplyTimeout time.Duration

	Log *slog.Logger
}

// Router dispatches one webhook event to the resolver, persistence, task
// extraction and reply paths. Errors it returns are contained by the caller
// at per-event granularity and never abort the surrounding batch.
type Router struct {
	store       MessageStore
	resolver    IdentityResolver
	extractor   TaskExtractor
	dispatcher  CommandDispatcher
	replier     Replier
	echoEnabled bool
	replyBudget time.Duration
	log         *slog.Logger
}

func NewRouter(opts RouterOptions) (*Router, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("nil store")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("nil resolver")
	}
	if opts.ReplyTimeout <= 0 {
		opts.ReplyTimeout = 10 * time.Second
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Router{
		store:       opts.Store,
		resolver:    opts.Resolver,
		extractor:   opts.Extractor,
		dispatcher:  opts.Dispatcher,
		replier:     opts.Replier,
		echoEnabled: opts.EchoEnabled,
		replyBudget: opts.ReplyTimeout,
		log:         opts.Log,
	}, nil
}

// HandleEvent routes one event by kind. Unknown kinds are logged and ignored.
func (r *Router) HandleEvent(ctx context.Context, ev line.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	switch ev.Type {
	case line.EventTypeMessage:
		return r.handleMessage(ctx, ev)
	case line.EventTypeFollow:
		return r.handleFollow(ctx, ev)
	case line.EventTypeUnfollow:
		r.log.Info("unfollow_received", "line_id", ev.Source.UserID)
		return nil
	default:
		r.log.Info("event_ignored", "type", ev.Type)
		return nil
	}
}

func (r *Router) handleMessage(ctx context.Context, ev line.Event) error {
	lineID, kind := conversationID(ev.Source)
	if lineID == "" {
		return fmt.Errorf("event carries no source id")
	}

	identity, err := r.resolver.Resolve(ctx, lineID, ResolveOptions{Kind: kind})
	if err != nil {
		return fmt.Errorf("resolve %s: %w", lineID, err)
	}

	msg := &models.Message{
		IdentityID: identity.ID,
		Kind:       ev.Message.Type,
		Raw:        ev.RawJSON(),
		FromUser:   true,
	}
	if ev.Message.ID != "" {
		id := ev.Message.ID
		msg.LineMessageID = &id
	}
	if ev.IsText() {
		text := ev.Message.Text
		msg.Text = &text
	}
	if err := r.store.CreateMessage(ctx, msg); err != nil {
		return fmt.Errorf("persist inbound message: %w", err)
	}

	if !ev.IsText() {
		return nil
	}
	text := ev.Message.Text

	// Task extraction is best-effort and never blocks the reply path.
	r.extractTask(ctx, identity, text)

	reply, ok := r.composeReply(ctx, text, identity)
	if !ok {
		return nil
	}
	r.sendReply(ctx, identity, ev.ReplyToken, reply)
	return nil
}

func (r *Router) handleFollow(ctx context.Context, ev line.Event) error {
	lineID := strings.TrimSpace(ev.Source.UserID)
	if lineID == "" {
		return fmt.Errorf("follow event without user id")
	}
	identity, err := r.resolver.Resolve(ctx, lineID, ResolveOptions{
		Kind:         models.IdentityKindUser,
		ForceProfile: true,
	})
	if err != nil {
		return fmt.Errorf("resolve %s: %w", lineID, err)
	}

	name := identity.DisplayName
	if name == "" {
		name = PlaceholderName
	}
	welcome := fmt.Sprintf("%sさん、友だち追加ありがとうございます！\n会話履歴の保存を開始します。", name)
	r.sendReply(ctx, identity, ev.ReplyToken, welcome)
	return nil
}

func (r *Router) extractTask(ctx context.Context, identity *models.Identity, text string) {
	if r.extractor == nil {
		return
	}
	extracted, ok := r.extractor.Extract(text)
	if !ok {
		return
	}
	task := &models.Task{
		IdentityID: identity.ID,
		Title:      extracted.Title,
		DueAt:      extracted.DueAt,
		Status:     models.TaskStatusPending,
		Priority:   models.TaskPriorityDefault,
	}
	if err := r.store.CreateTask(ctx, task); err != nil {
		r.log.Warn("task_persist_failed", "identity_id", identity.ID, "error", err.Error())
	}
}

// composeReply produces zero or one reply for inbound text.
func (r *Router) composeReply(ctx context.Context, text string, identity *models.Identity) (string, bool) {
	if r.dispatcher != nil {
		if reply, ok := r.dispatcher.Dispatch(ctx, text, identity); ok {
			return reply, true
		}
	}
	if r.echoEnabled {
		return text, true
	}
	return "", false
}

// sendReply delivers the reply and persists it as an outbound message. A send
// failure is logged and not retried.
func (r *Router) sendReply(ctx context.Context, identity *models.Identity, replyToken, text string) {
	if r.replier == nil || strings.TrimSpace(replyToken) == "" || text == "" {
		return
	}
	msgs := []line.Message{line.TextMessage(text)}

	sendCtx, cancel := context.WithTimeout(ctx, r.replyBudget)
	defer cancel()
	if err := r.replier.Reply(sendCtx, replyToken, msgs); err != nil {
		r.log.Warn("reply_send_failed", "identity_id", identity.ID, "error", err.Error())
		return
	}

	raw, _ := json.Marshal(msgs)
	out := &models.Message{
		IdentityID: identity.ID,
		Kind:       line.MessageTypeText,
		Text:       &text,
		Raw:        string(raw),
		FromUser:   false,
	}
	if err := r.store.CreateMessage(ctx, out); err != nil {
		r.log.Warn("outbound_persist_failed", "identity_id", identity.ID, "error", err.Error())
	}
}

// conversationID picks the identity key for an event source. An explicit user
// id wins over group and room ids, so a person's direct and group messages
// share one history and remain valid push targets.
func conversationID(src line.Source) (string, string) {
	if id := strings.TrimSpace(src.UserID); id != "" {
		return id, models.IdentityKindUser
	}
	if id := strings.TrimSpace(src.GroupID); id != "" {
		return id, models.IdentityKindGroup
	}
	if id := strings.TrimSpace(src.RoomID); id != "" {
		return id, models.IdentityKindRoom
	}
	return "", ""
}
