// Package telegram adapts the Telegram Bot API to the relay pipeline.
package telegram

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Options configures the Bot API client.
type Options struct {
	Token string
	// Endpoint overrides tgbotapi.APIEndpoint, e.g. for a self-hosted Bot API server.
	Endpoint   string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client wraps a connected tgbotapi.BotAPI.
type Client struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
}

// NewClient connects to the Bot API and resolves the bot's own identity.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, fmt.Errorf("telegram bot token must be provided")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	logger = logger.With("component", "telegram")
	if err := tgbotapi.SetLogger(botLogger{logger}); err != nil {
		return nil, fmt.Errorf("set telegram logger: %w", err)
	}

	api, err := tgbotapi.NewBotAPIWithClient(opts.Token, endpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	logger.Info("telegram bot connected", "username", api.Self.UserName, "bot_id", api.Self.ID)
	return &Client{api: api, logger: logger}, nil
}

// Username returns the bot's handle without the leading "@".
func (c *Client) Username() string {
	return c.api.Self.UserName
}

// BotID returns the bot's user id.
func (c *Client) BotID() int64 {
	return c.api.Self.ID
}

// botLogger routes tgbotapi's internal logging through slog.
type botLogger struct {
	logger *slog.Logger
}

func (l botLogger) Println(v ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l botLogger) Printf(format string, v ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
