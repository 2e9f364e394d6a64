package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/chatrelay/internal/addressing"
	"github.com/ashureev/chatrelay/internal/completion"
	"github.com/ashureev/chatrelay/internal/domain"
)

// Defaults applied by New when the config leaves a field empty.
const (
	DefaultQuotaExceededText = "You have exceeded the message limit for today."
	DefaultCompletionTimeout = 60 * time.Second
)

// ErrEmptyReply is returned when the completion produced nothing to send.
var ErrEmptyReply = errors.New("relay: empty reply")

// Conversations is the part of the context store the relay needs.
type Conversations interface {
	Append(ctx context.Context, key domain.ConversationKey, text string, role domain.Role) (domain.Record, error)
	Window(ctx context.Context, key domain.ConversationKey) ([]domain.Record, error)
}

// Config holds relay settings.
type Config struct {
	AllowedChats      []int64
	BotUsername       string
	SystemPrompt      string
	QuotaExceededText string
	CompletionTimeout time.Duration
	MaxMessageLength  int
}

// Deps are the collaborators of a Relay. Publisher may be nil.
type Deps struct {
	Quota      QuotaGate
	Membership Membership
	History    Conversations
	Completer  completion.Completer
	Sender     Sender
	Publisher  Publisher
	Logger     *slog.Logger
	Now        func() time.Time
}

// Relay handles inbound messages end to end.
type Relay struct {
	cfg     Config
	allowed map[int64]struct{}
	deps    Deps
	logger  *slog.Logger
}

// New creates a relay.
func New(cfg Config, deps Deps) (*Relay, error) {
	if deps.Quota == nil || deps.History == nil || deps.Completer == nil || deps.Sender == nil {
		return nil, errors.New("relay: quota, history, completer and sender are required")
	}
	if strings.TrimSpace(cfg.BotUsername) == "" {
		return nil, errors.New("relay: bot username is required")
	}
	if cfg.QuotaExceededText == "" {
		cfg.QuotaExceededText = DefaultQuotaExceededText
	}
	if cfg.CompletionTimeout <= 0 {
		cfg.CompletionTimeout = DefaultCompletionTimeout
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = DefaultMaxMessageLength
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	allowed := make(map[int64]struct{}, len(cfg.AllowedChats))
	for _, id := range cfg.AllowedChats {
		allowed[id] = struct{}{}
	}
	return &Relay{
		cfg:     cfg,
		allowed: allowed,
		deps:    deps,
		logger:  deps.Logger.With("component", "relay"),
	}, nil
}

// Handle runs msg through the pipeline and reports where it ended. It never
// panics on collaborator errors; every failure is carried in the Outcome.
func (r *Relay) Handle(ctx context.Context, msg Inbound) Outcome {
	start := r.deps.Now()
	out := r.handle(ctx, msg)
	out.ID = uuid.NewString()
	out.ChatID = msg.ChatID
	out.UserID = msg.UserID
	out.Duration = r.deps.Now().Sub(start)
	r.report(msg, out)
	return out
}

// Accepts reports whether msg passes the chat policy. Messages it rejects
// finish at the policy stage without touching any collaborator.
func (r *Relay) Accepts(msg Inbound) bool {
	_, ok := r.policy(msg)
	return ok
}

func (r *Relay) policy(msg Inbound) (Outcome, bool) {
	if _, ok := r.allowed[msg.ChatID]; !ok {
		return Outcome{Stage: StagePolicy, Reason: ReasonChatNotAllowed}, false
	}
	if msg.ChatType == ChatPrivate {
		return Outcome{Stage: StagePolicy, Reason: ReasonPrivateChat}, false
	}
	if msg.IsCommand {
		return Outcome{Stage: StagePolicy, Reason: ReasonCommand}, false
	}
	return Outcome{}, true
}

func (r *Relay) handle(ctx context.Context, msg Inbound) Outcome {
	if out, ok := r.policy(msg); !ok {
		return out
	}

	res := addressing.Resolve(addressing.Input{
		Text:        msg.Text,
		Reply:       msg.Reply,
		BotUsername: r.cfg.BotUsername,
	})
	if !res.Accepted {
		return Outcome{Stage: StageAddressing, Reason: res.Reason}
	}

	key := msg.Key()
	if out, ok := r.checkQuota(ctx, msg); !ok {
		return out
	}

	window, err := r.deps.History.Window(ctx, key)
	if err != nil {
		return Outcome{Stage: StageStore, Err: fmt.Errorf("read context window: %w", err)}
	}
	prompt := BuildPrompt(r.cfg.SystemPrompt, window, res)

	if _, err := r.deps.History.Append(ctx, key, UserTurn(res), domain.RoleUser); err != nil {
		return Outcome{Stage: StageStore, Err: fmt.Errorf("append user turn: %w", err)}
	}

	reply, err := r.complete(ctx, prompt)
	if err != nil {
		return Outcome{Stage: StageCompletion, Err: err}
	}

	chunks := SplitChunks(reply, r.cfg.MaxMessageLength)
	for i, chunk := range chunks {
		out := Outgoing{ChatID: msg.ChatID, Text: chunk}
		if i == 0 {
			out.ReplyToMessageID = msg.MessageID
		}
		if err := r.deps.Sender.Send(ctx, out); err != nil {
			return Outcome{Stage: StageSend, Chunks: i, Err: fmt.Errorf("send chunk %d/%d: %w", i+1, len(chunks), err)}
		}
	}

	if _, err := r.deps.History.Append(ctx, key, reply, domain.RoleAssistant); err != nil {
		return Outcome{Stage: StageStore, Chunks: len(chunks), Err: fmt.Errorf("append assistant turn: %w", err)}
	}
	return Outcome{Stage: StageDone, Reason: ReasonReplied, Chunks: len(chunks)}
}

// checkQuota records the attempt. Over the limit, admins pass and everyone
// else receives the limit notice.
func (r *Relay) checkQuota(ctx context.Context, msg Inbound) (Outcome, bool) {
	dec, err := r.deps.Quota.RecordAndCheck(ctx, msg.Key())
	if err != nil {
		return Outcome{Stage: StageQuota, Err: err}, false
	}
	if dec.Accepted {
		r.logger.Debug("quota recorded", "chat_id", msg.ChatID, "user_id", msg.UserID, "count", dec.Count, "remaining", dec.Remaining())
		return Outcome{}, true
	}
	if r.isAdmin(ctx, msg) {
		r.logger.Info("quota bypassed for admin", "chat_id", msg.ChatID, "user_id", msg.UserID, "count", dec.Count)
		return Outcome{}, true
	}

	notice := Outgoing{ChatID: msg.ChatID, ReplyToMessageID: msg.MessageID, Text: r.cfg.QuotaExceededText}
	if err := r.deps.Sender.Send(ctx, notice); err != nil {
		return Outcome{Stage: StageQuota, Reason: ReasonQuotaExceeded, Err: fmt.Errorf("send quota notice: %w", err)}, false
	}
	return Outcome{Stage: StageQuota, Reason: ReasonQuotaExceeded, Chunks: 1}, false
}

func (r *Relay) isAdmin(ctx context.Context, msg Inbound) bool {
	if r.deps.Membership == nil {
		return false
	}
	admin, err := r.deps.Membership.IsAdmin(ctx, msg.ChatID, msg.UserID)
	if err != nil {
		r.logger.Warn("membership lookup failed, treating as non-admin",
			"stage", StageMembership,
			"chat_id", msg.ChatID,
			"user_id", msg.UserID,
			"error", err,
		)
		return false
	}
	return admin
}

func (r *Relay) complete(ctx context.Context, prompt []completion.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.CompletionTimeout)
	defer cancel()

	reply, err := r.deps.Completer.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

func (r *Relay) report(msg Inbound, out Outcome) {
	attrs := []any{
		"outcome_id", out.ID,
		"stage", out.Stage,
		"chat_id", out.ChatID,
		"user_id", out.UserID,
		"update_id", msg.UpdateID,
		"duration_ms", out.Duration.Milliseconds(),
	}
	if out.Reason != "" {
		attrs = append(attrs, "reason", out.Reason)
	}
	if out.Chunks > 0 {
		attrs = append(attrs, "chunks", out.Chunks)
	}

	switch {
	case out.Failed():
		r.logger.Error("message handling failed", append(attrs, "error", out.Err)...)
	case out.Stage == StageDone || out.Stage == StageQuota:
		r.logger.Info("message handled", attrs...)
	default:
		r.logger.Debug("message ignored", attrs...)
	}

	if r.deps.Publisher != nil {
		r.deps.Publisher.Publish(out.Event(r.deps.Now()))
	}
}
