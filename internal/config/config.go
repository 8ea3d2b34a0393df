// Package config is the shared configuration layer for all three chatdesk
// services. Grounded on vanducng-goclaw's internal/config: a JSON(5)-decoded
// struct overlaid with environment variables, secrets env-only.
package config

import "time"

// BusConfig / StoreConfig are shared by all three services (spec §6).
type BusConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"-"` // env only: CHATDESK_BUS_PASSWORD
	DB       int    `json:"db"`
}

type StoreConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"-"` // env only: CHATDESK_STORE_PASSWORD
	DB       int    `json:"db"`
}

// LoggingConfig controls the ambient logging stack (spec §6).
type LoggingConfig struct {
	Level      string `json:"level"`       // "debug", "info", "warn", "error"
	Structured bool   `json:"structured"`  // reserved: JSON handler toggle
	FilePath   string `json:"file_path,omitempty"`
}

// TransportConfig configures the Transport Gateway (spec §6).
type TransportConfig struct {
	Bus       BusConfig     `json:"bus"`
	Store     StoreConfig   `json:"store"`
	Logging   LoggingConfig `json:"logging"`
	HTTPAddr  string        `json:"http_addr"`

	SessionName        string        `json:"session_name"`
	SessionDir         string        `json:"session_dir"`
	PrintQR            bool          `json:"print_qr"`
	MarkOnline         bool          `json:"mark_online"`
	KeepaliveInterval  time.Duration `json:"keepalive_interval"`
	QueryTimeout       time.Duration `json:"query_timeout"`
	BridgeURL          string        `json:"bridge_url"`
	DestinationSuffix  string        `json:"destination_suffix"` // e.g. "@s.whatsapp.net"
	GroupSuffix        string        `json:"group_suffix"`       // e.g. "@g.us"
	MediaDir           string        `json:"media_dir"`
	MessageLogDir      string        `json:"message_log_dir"`
	BotIdentity        string        `json:"bot_identity"`
}

// ClassifierConfig configures the Classifier (spec §6).
type ClassifierConfig struct {
	Bus     BusConfig     `json:"bus"`
	Store   StoreConfig   `json:"store"`
	Logging LoggingConfig `json:"logging"`
	HTTPAddr string       `json:"http_addr"`

	PrimaryModel   string        `json:"primary_model"`
	FallbackModel  string        `json:"fallback_model"`
	AnthropicAPIKey string       `json:"-"` // env only: CHATDESK_CLASSIFIER_ANTHROPIC_API_KEY
	OpenAIAPIKey    string       `json:"-"` // env only: CHATDESK_CLASSIFIER_OPENAI_API_KEY
	OpenAIBaseURL   string       `json:"openai_base_url,omitempty"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	CallTimeout    time.Duration `json:"call_timeout"`
	BotPhoneIdentity string      `json:"bot_phone_identity"`
}

// TicketManagerConfig configures the Ticket Manager (spec §6).
type TicketManagerConfig struct {
	Bus     BusConfig     `json:"bus"`
	Store   StoreConfig   `json:"store"`
	Logging LoggingConfig `json:"logging"`
	HTTPAddr string       `json:"http_addr"`

	HelpdeskBaseURL  string `json:"helpdesk_base_url"`
	HelpdeskClientID string `json:"-"` // env only: CHATDESK_TICKETS_CLIENT_ID
	HelpdeskSecret   string `json:"-"` // env only: CHATDESK_TICKETS_CLIENT_SECRET
	RedirectURI      string `json:"redirect_uri,omitempty"`
	OrgID            string `json:"org_id"`
	DepartmentID     string `json:"department_id"`
	OAuthStatePath   string `json:"oauth_state_path"`

	BreakerMaxFailures  int           `json:"breaker_max_failures"`
	BreakerCooldown     time.Duration `json:"breaker_cooldown"`
	BreakerProbeTimeout time.Duration `json:"breaker_probe_timeout"`

	QueueName        string        `json:"queue_name"`
	QueueSweepInterval time.Duration `json:"queue_sweep_interval"`
	QueueMaxRetries    int           `json:"queue_max_retries"`
	QueueRetryDelay    time.Duration `json:"queue_retry_delay"`
}

func defaultTransport() TransportConfig {
	return TransportConfig{
		Bus:               BusConfig{Addr: "localhost:6379"},
		Store:             StoreConfig{Addr: "localhost:6379"},
		Logging:           LoggingConfig{Level: "info"},
		HTTPAddr:          ":8081",
		SessionName:       "chatdesk",
		SessionDir:        "./data/session",
		MarkOnline:        true,
		KeepaliveInterval: 25 * time.Second,
		QueryTimeout:      30 * time.Second,
		DestinationSuffix: "@s.whatsapp.net",
		GroupSuffix:       "@g.us",
		MediaDir:          "./data/media",
		MessageLogDir:     "./logs/messages",
	}
}

func defaultClassifier() ClassifierConfig {
	return ClassifierConfig{
		Bus:           BusConfig{Addr: "localhost:6379"},
		Store:         StoreConfig{Addr: "localhost:6379"},
		Logging:       LoggingConfig{Level: "info"},
		HTTPAddr:      ":8082",
		PrimaryModel:  "claude-sonnet-4-5-20250929",
		FallbackModel: "gpt-4o-mini",
		Temperature:   0.1,
		MaxTokens:     512,
		CallTimeout:   30 * time.Second,
	}
}

func defaultTicketManager() TicketManagerConfig {
	return TicketManagerConfig{
		Bus:                 BusConfig{Addr: "localhost:6379"},
		Store:               StoreConfig{Addr: "localhost:6379"},
		Logging:             LoggingConfig{Level: "info"},
		HTTPAddr:            ":8083",
		OAuthStatePath:      "./data/oauth_state.json",
		BreakerMaxFailures:  5,
		BreakerCooldown:     30 * time.Second,
		BreakerProbeTimeout: 60 * time.Second,
		QueueName:           "tickets:pending",
		QueueSweepInterval:  30 * time.Second,
		QueueMaxRetries:     3,
		QueueRetryDelay:     5 * time.Second,
	}
}
