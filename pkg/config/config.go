package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Database DatabaseConfig `mapstructure:"database"`
	Limits   LimitsConfig   `mapstructure:"limits"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
	// ChannelID is the channel whose membership gates access to the bot,
	// e.g. "@logloss_notes" or a numeric -100… id.
	ChannelID string `mapstructure:"channel_id"`
}

type OpenAIConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	AssistantID  string        `mapstructure:"assistant_id"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	RunTimeout   time.Duration `mapstructure:"run_timeout"`
	ImageModel   string        `mapstructure:"image_model"`
	ImageSize    string        `mapstructure:"image_size"`
}

type DatabaseConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	DBName      string `mapstructure:"dbname"`
	SSLMode     string `mapstructure:"sslmode"`
	UseInMemory bool   `mapstructure:"use_in_memory"`
}

type LimitsConfig struct {
	// MaxDocumentBytes caps inbound document size before anything is uploaded.
	MaxDocumentBytes     int64         `mapstructure:"max_document_bytes"`
	RatePerChatPerMinute int           `mapstructure:"rate_per_chat_per_minute"`
	SubscriptionCacheTTL time.Duration `mapstructure:"subscription_cache_ttl"`
	HistoryLimit         int           `mapstructure:"history_limit"`
	ExportLimit          int           `mapstructure:"export_limit"`
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  "disable",
	}, nil
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("telegram.channel_id", "@logloss_notes")
	v.SetDefault("openai.poll_interval", "1s")
	v.SetDefault("openai.run_timeout", "2m")
	v.SetDefault("openai.image_model", "dall-e-3")
	v.SetDefault("openai.image_size", "1024x1024")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.use_in_memory", false)
	v.SetDefault("limits.max_document_bytes", 15*1024*1024)
	v.SetDefault("limits.rate_per_chat_per_minute", 20)
	v.SetDefault("limits.subscription_cache_ttl", "10m")
	v.SetDefault("limits.history_limit", 10)
	v.SetDefault("limits.export_limit", 50)

	// Enable environment variable support
	v.AutomaticEnv()

	// Read the config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %v", err)
		}
		dbConfig.UseInMemory = config.Database.UseInMemory
		config.Database = dbConfig
	}

	// Get other environment variables
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if channel := v.GetString("CHANNEL_ID"); channel != "" {
		config.Telegram.ChannelID = channel
	}
	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}
	if assistantID := v.GetString("OPENAI_ASSISTANT_ID"); assistantID != "" {
		config.OpenAI.AssistantID = assistantID
	}

	if config.Telegram.Token == "" {
		return nil, fmt.Errorf("telegram token is not set")
	}
	if config.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("openai api key is not set")
	}
	if config.OpenAI.AssistantID == "" {
		return nil, fmt.Errorf("openai assistant id is not set")
	}

	return &config, nil
}
