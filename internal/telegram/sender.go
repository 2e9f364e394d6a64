package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/ashureev/chatrelay/internal/relay"
)

// Sender delivers relay messages with Markdown formatting, falling back to
// plain text once when Telegram rejects the markup.
type Sender struct {
	client  *Client
	limiter *rate.Limiter
}

// NewSender creates a sender allowing perSecond messages per second. A
// non-positive rate disables limiting.
func NewSender(client *Client, perSecond float64) *Sender {
	limit := rate.Inf
	burst := 1
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &Sender{client: client, limiter: rate.NewLimiter(limit, burst)}
}

// Send implements relay.Sender.
func (s *Sender) Send(ctx context.Context, msg relay.Outgoing) error {
	err := s.send(ctx, msg, tgbotapi.ModeMarkdown)
	if err == nil || !isParseEntitiesError(err) {
		return err
	}
	s.client.logger.Warn("markdown rejected, resending as plain text",
		"chat_id", msg.ChatID,
		"error", err,
	)
	return s.send(ctx, msg, "")
}

func (s *Sender) send(ctx context.Context, msg relay.Outgoing, parseMode string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for send slot: %w", err)
	}
	cfg := tgbotapi.NewMessage(msg.ChatID, msg.Text)
	cfg.ReplyToMessageID = msg.ReplyToMessageID
	cfg.ParseMode = parseMode
	if _, err := s.client.api.Send(cfg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func isParseEntitiesError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "can't parse entities") || strings.Contains(msg, "can't parse entity")
}

var _ relay.Sender = (*Sender)(nil)
