// Package config provides application configuration.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Quota backends.
const (
	QuotaBackendMemory = "memory"
	QuotaBackendSQLite = "sqlite"
)

// Defaults used when the environment leaves a key unset.
const (
	DefaultSystemPrompt      = "You are a support bot for students. Help them understand, but do not give ready-made solutions."
	DefaultQuotaExceededText = "You have exceeded the message limit for today."
)

// Config holds all application configuration.
type Config struct {
	Telegram   TelegramConfig
	OpenAI     OpenAIConfig
	History    HistoryConfig
	Quota      QuotaConfig
	Relay      RelayConfig
	Ops        OpsConfig
	Log        LogConfig
	ChatIDs    []int64
	EventsSize int
}

// TelegramConfig configures the Bot API connection. APIEndpoint is a
// tgbotapi endpoint format ("https://host/bot%s/%s"); empty means the
// public Bot API.
type TelegramConfig struct {
	Token             string
	APIEndpoint       string
	PollTimeout       time.Duration
	SendRatePerSecond float64
	AdminCacheTTL     time.Duration
}

// OpenAIConfig configures the completion endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// HistoryConfig configures the persistent context store.
type HistoryConfig struct {
	File         string
	Expiration   time.Duration
	MessageLimit int
	MaxRecords   int
}

// QuotaConfig configures the daily message limit.
type QuotaConfig struct {
	MaxPerDay     int
	Backend       string
	DBPath        string
	ResetCron     string
	ResetTimezone string
}

// RelayConfig holds reply settings.
type RelayConfig struct {
	SystemPrompt      string
	QuotaExceededText string
	MaxMessageLength  int
}

// OpsConfig configures the ops HTTP and gRPC surfaces. Empty addresses
// disable them.
type OpsConfig struct {
	Addr           string
	Token          string
	GRPCHealthAddr string
}

// LogConfig configures process logging.
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("MAX_MESSAGES_PER_DAY", 10)
	v.SetDefault("CONTEXT_EXPIRATION_MINUTES", 30)
	v.SetDefault("CONTEXT_MESSAGE_LIMIT", 10)
	v.SetDefault("HISTORY_FILE", "./data/chat_logs.json")
	v.SetDefault("HISTORY_MAX_RECORDS", 50)
	v.SetDefault("SYSTEM_PROMPT", DefaultSystemPrompt)
	v.SetDefault("QUOTA_EXCEEDED_TEXT", DefaultQuotaExceededText)
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("COMPLETION_TIMEOUT", 60*time.Second)
	v.SetDefault("MAX_MESSAGE_LENGTH", 4096)
	v.SetDefault("SEND_RATE_PER_SECOND", 25)
	v.SetDefault("POLL_TIMEOUT", 30*time.Second)
	v.SetDefault("ADMIN_CACHE_TTL", time.Duration(0))
	v.SetDefault("QUOTA_BACKEND", QuotaBackendMemory)
	v.SetDefault("QUOTA_DB_PATH", "./data/quota.db")
	v.SetDefault("EVENT_BUFFER_SIZE", 200)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_MAX_SIZE_MB", 50)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 28)
}

// NewViper returns a viper instance reading the process environment with
// defaults applied.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	return v
}

// Load reads configuration from v.
func Load(v *viper.Viper) (*Config, error) {
	chats, err := ParseChatIDs(v.GetString("ALLOWED_CHATS"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Config{
		Telegram: TelegramConfig{
			Token:             strings.TrimSpace(v.GetString("TELEGRAM_BOT_TOKEN")),
			APIEndpoint:       strings.TrimSpace(v.GetString("TELEGRAM_API_ENDPOINT")),
			PollTimeout:       v.GetDuration("POLL_TIMEOUT"),
			SendRatePerSecond: v.GetFloat64("SEND_RATE_PER_SECOND"),
			AdminCacheTTL:     v.GetDuration("ADMIN_CACHE_TTL"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  strings.TrimSpace(v.GetString("OPENAI_API_KEY")),
			BaseURL: strings.TrimSpace(v.GetString("OPENAI_BASE_URL")),
			Model:   strings.TrimSpace(v.GetString("OPENAI_MODEL")),
			Timeout: v.GetDuration("COMPLETION_TIMEOUT"),
		},
		History: LoadHistory(v),
		Quota: QuotaConfig{
			MaxPerDay:     v.GetInt("MAX_MESSAGES_PER_DAY"),
			Backend:       strings.ToLower(strings.TrimSpace(v.GetString("QUOTA_BACKEND"))),
			DBPath:        v.GetString("QUOTA_DB_PATH"),
			ResetCron:     strings.TrimSpace(v.GetString("QUOTA_RESET_CRON")),
			ResetTimezone: strings.TrimSpace(v.GetString("QUOTA_RESET_TZ")),
		},
		Relay: RelayConfig{
			SystemPrompt:      v.GetString("SYSTEM_PROMPT"),
			QuotaExceededText: v.GetString("QUOTA_EXCEEDED_TEXT"),
			MaxMessageLength:  v.GetInt("MAX_MESSAGE_LENGTH"),
		},
		Ops: OpsConfig{
			Addr:           strings.TrimSpace(v.GetString("OPS_ADDR")),
			Token:          v.GetString("OPS_TOKEN"),
			GRPCHealthAddr: strings.TrimSpace(v.GetString("GRPC_HEALTH_ADDR")),
		},
		Log: LogConfig{
			Level:      v.GetString("LOG_LEVEL"),
			Format:     v.GetString("LOG_FORMAT"),
			File:       strings.TrimSpace(v.GetString("LOG_FILE")),
			MaxSizeMB:  v.GetInt("LOG_MAX_SIZE_MB"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
			MaxAgeDays: v.GetInt("LOG_MAX_AGE_DAYS"),
		},
		ChatIDs:    chats,
		EventsSize: v.GetInt("EVENT_BUFFER_SIZE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadHistory reads only the context store settings, for tools that do not
// talk to Telegram or the completion endpoint.
func LoadHistory(v *viper.Viper) HistoryConfig {
	return HistoryConfig{
		File:         v.GetString("HISTORY_FILE"),
		Expiration:   time.Duration(v.GetInt("CONTEXT_EXPIRATION_MINUTES")) * time.Minute,
		MessageLimit: v.GetInt("CONTEXT_MESSAGE_LIMIT"),
		MaxRecords:   v.GetInt("HISTORY_MAX_RECORDS"),
	}
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN cannot be empty")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY cannot be empty")
	}
	if len(c.ChatIDs) == 0 {
		return fmt.Errorf("ALLOWED_CHATS must list at least one chat id")
	}
	if c.Quota.MaxPerDay < 0 {
		return fmt.Errorf("MAX_MESSAGES_PER_DAY must be >= 0")
	}
	if c.History.File == "" {
		return fmt.Errorf("HISTORY_FILE cannot be empty")
	}
	if c.History.Expiration <= 0 {
		return fmt.Errorf("CONTEXT_EXPIRATION_MINUTES must be > 0")
	}
	if c.History.MessageLimit <= 0 {
		return fmt.Errorf("CONTEXT_MESSAGE_LIMIT must be > 0")
	}
	if c.History.MaxRecords < 0 {
		return fmt.Errorf("HISTORY_MAX_RECORDS must be >= 0")
	}
	if c.OpenAI.Timeout <= 0 {
		return fmt.Errorf("COMPLETION_TIMEOUT must be > 0")
	}
	if c.Relay.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be > 0")
	}
	if c.Telegram.PollTimeout < time.Second {
		return fmt.Errorf("POLL_TIMEOUT must be at least 1s")
	}
	if c.Telegram.AdminCacheTTL < 0 {
		return fmt.Errorf("ADMIN_CACHE_TTL must be >= 0")
	}
	switch c.Quota.Backend {
	case QuotaBackendMemory:
	case QuotaBackendSQLite:
		if c.Quota.DBPath == "" {
			return fmt.Errorf("QUOTA_DB_PATH cannot be empty with the sqlite backend")
		}
	default:
		return fmt.Errorf("QUOTA_BACKEND must be %q or %q, got %q", QuotaBackendMemory, QuotaBackendSQLite, c.Quota.Backend)
	}
	if c.Quota.ResetTimezone != "" {
		if _, err := time.LoadLocation(c.Quota.ResetTimezone); err != nil {
			return fmt.Errorf("QUOTA_RESET_TZ: %w", err)
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}
	if c.EventsSize <= 0 {
		return fmt.Errorf("EVENT_BUFFER_SIZE must be > 0")
	}
	return nil
}

// ResetLocation returns the time zone used for scheduled quota resets.
func (c *Config) ResetLocation() *time.Location {
	if c.Quota.ResetTimezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Quota.ResetTimezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ParseChatIDs parses a comma or whitespace separated list of chat ids.
func ParseChatIDs(raw string) ([]int64, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == ';'
	})
	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ALLOWED_CHATS: invalid chat id %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
