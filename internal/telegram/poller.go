package telegram

import (
	"context"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ashureev/chatrelay/internal/relay"
)

// Dispatcher accepts converted messages.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg relay.Inbound) error
}

// Poller long-polls getUpdates and hands messages to a Dispatcher.
type Poller struct {
	client  *Client
	timeout time.Duration
	running atomic.Bool
	updates atomic.Int64
	onState []func(running bool)
}

// NewPoller creates a poller using the given long-poll timeout.
func NewPoller(client *Client, timeout time.Duration) *Poller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Poller{client: client, timeout: timeout}
}

// OnStateChange registers fn to be called when polling starts and stops.
// It must be called before Run.
func (p *Poller) OnStateChange(fn func(running bool)) {
	p.onState = append(p.onState, fn)
}

func (p *Poller) setRunning(running bool) {
	p.running.Store(running)
	for _, fn := range p.onState {
		fn(running)
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context, d Dispatcher) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = int(p.timeout.Seconds())
	cfg.AllowedUpdates = []string{"message"}

	updates := p.client.api.GetUpdatesChan(cfg)
	p.setRunning(true)
	defer p.setRunning(false)

	logger := p.client.logger
	logger.Info("polling for updates", "timeout", p.timeout.String())

	for {
		select {
		case <-ctx.Done():
			p.client.api.StopReceivingUpdates()
			logger.Info("polling stopped", "reason", ctx.Err(), "updates", p.updates.Load())
			return nil
		case update, ok := <-updates:
			if !ok {
				logger.Warn("update channel closed")
				return nil
			}
			p.updates.Add(1)
			msg, ok := ToInbound(update, p.client.BotID())
			if !ok {
				logger.Debug("skipping update", "update_id", update.UpdateID)
				continue
			}
			if err := d.Dispatch(ctx, msg); err != nil {
				logger.Warn("failed to dispatch update", "update_id", update.UpdateID, "error", err)
			}
		}
	}
}

// Running reports whether the poll loop is active.
func (p *Poller) Running() bool {
	return p.running.Load()
}

// Updates returns the number of updates received so far.
func (p *Poller) Updates() int64 {
	return p.updates.Load()
}
