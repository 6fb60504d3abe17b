package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel            = "gpt-4o-mini"
	DefaultSTTModel         = "whisper-1"
	DefaultTimezone         = "Asia/Tehran"
	DefaultBufSize          = 100
	DefaultTickInterval     = "30s"
	DefaultBatchSize        = 50
	DefaultSessionTTL       = "5m"
	DefaultConfirmTTL       = "15m"
	DefaultFreeMaxReminders = 5
	DefaultPremiumPriceIRR  = 490000
)

type Config struct {
	Channels ChannelsConfig `json:"channels"`
	Provider ProviderConfig `json:"provider"`
	Store    StoreConfig    `json:"store"`
	Dispatch DispatchConfig `json:"dispatch"`
	Dialogue DialogueConfig `json:"dialogue"`
	Payment  PaymentConfig  `json:"payment"`
	Limits   LimitsConfig   `json:"limits"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

// ProviderConfig covers the OpenAI-compatible endpoint used for both slot
// extraction and voice transcription.
type ProviderConfig struct {
	APIKey   string `json:"apiKey"`
	BaseURL  string `json:"baseUrl,omitempty"`
	Model    string `json:"model"`
	STTModel string `json:"sttModel"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath,omitempty"`
}

type DispatchConfig struct {
	TickInterval string `json:"tickInterval"`
	BatchSize    int    `json:"batchSize"`
}

type DialogueConfig struct {
	SessionTTL string `json:"sessionTtl"`
	ConfirmTTL string `json:"confirmTtl"`
	// Timezone is the default owner timezone until per-user settings exist
	Timezone string `json:"timezone"`
}

type PaymentConfig struct {
	Enabled     bool   `json:"enabled"`
	Merchant    string `json:"merchant,omitempty"`
	BaseURL     string `json:"baseUrl,omitempty"`
	CallbackURL string `json:"callbackUrl,omitempty"`
	PriceIRR    int64  `json:"priceIrr,omitempty"`
}

type LimitsConfig struct {
	FreeMaxReminders int `json:"freeMaxReminders"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Model:    DefaultModel,
			STTModel: DefaultSTTModel,
		},
		Dispatch: DispatchConfig{
			TickInterval: DefaultTickInterval,
			BatchSize:    DefaultBatchSize,
		},
		Dialogue: DialogueConfig{
			SessionTTL: DefaultSessionTTL,
			ConfirmTTL: DefaultConfirmTTL,
			Timezone:   DefaultTimezone,
		},
		Payment: PaymentConfig{
			PriceIRR: DefaultPremiumPriceIRR,
		},
		Limits: LimitsConfig{
			FreeMaxReminders: DefaultFreeMaxReminders,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".yadavar")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("YADAVAR_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if url := os.Getenv("YADAVAR_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if token := os.Getenv("YADAVAR_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
		cfg.Channels.Telegram.Enabled = true
	}
	if dbPath := os.Getenv("YADAVAR_DB_PATH"); dbPath != "" {
		cfg.Store.DBPath = dbPath
	}
	if tz := os.Getenv("YADAVAR_TIMEZONE"); tz != "" {
		cfg.Dialogue.Timezone = tz
	}
	if merchant := os.Getenv("YADAVAR_PAYMENT_MERCHANT"); merchant != "" {
		cfg.Payment.Merchant = merchant
	}
	if limit := os.Getenv("YADAVAR_FREE_MAX_REMINDERS"); limit != "" {
		if parsed, err := strconv.Atoi(limit); err == nil && parsed > 0 {
			cfg.Limits.FreeMaxReminders = parsed
		}
	}

	if cfg.Provider.Model == "" {
		cfg.Provider.Model = DefaultModel
	}
	if cfg.Provider.STTModel == "" {
		cfg.Provider.STTModel = DefaultSTTModel
	}
	if cfg.Dispatch.TickInterval == "" {
		cfg.Dispatch.TickInterval = DefaultTickInterval
	}
	if cfg.Dispatch.BatchSize <= 0 {
		cfg.Dispatch.BatchSize = DefaultBatchSize
	}
	if cfg.Dialogue.SessionTTL == "" {
		cfg.Dialogue.SessionTTL = DefaultSessionTTL
	}
	if cfg.Dialogue.ConfirmTTL == "" {
		cfg.Dialogue.ConfirmTTL = DefaultConfirmTTL
	}
	if cfg.Dialogue.Timezone == "" {
		cfg.Dialogue.Timezone = DefaultTimezone
	}
	if cfg.Limits.FreeMaxReminders <= 0 {
		cfg.Limits.FreeMaxReminders = DefaultFreeMaxReminders
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
