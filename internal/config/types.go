package config

// Config is the root daemon configuration.
//
// All durations are Go duration strings (e.g. "500ms", "8s", "1m").
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Capture CaptureConfig `json:"capture"`
	Notify  NotifyConfig  `json:"notify"`
	API     APIConfig     `json:"api,omitempty"`
	Refresh RefreshConfig `json:"refresh,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the sqlite message store.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// CaptureConfig controls the capture pipeline.
//
// Dialect selects the chat transcript grammar: "en" or "ko".
type CaptureConfig struct {
	Dialect  string      `json:"dialect"`
	Cooldown string      `json:"cooldown,omitempty"` // per-target admit cooldown, default "8s"
	Agent    AgentConfig `json:"agent"`
}

// AgentConfig points at the window agent that owns window enumeration,
// activation and text extraction. The daemon only talks HTTP to it.
type AgentConfig struct {
	BaseURL string `json:"base_url"`
	Timeout string `json:"timeout,omitempty"` // per-request timeout, default "15s"
}

// NotifyConfig controls the notification forwarder.
//
// Sink values:
//   - "webhook": HTTP POST per message
//   - "telegram": telebot delivery to a fixed chat
//   - "" or "none": forwarding disabled
type NotifyConfig struct {
	Sink       string          `json:"sink"`
	RatePerSec int             `json:"rate_per_sec,omitempty"`
	Webhook    *WebhookConfig  `json:"webhook,omitempty"`
	Telegram   *TelegramConfig `json:"telegram,omitempty"`
}

type WebhookConfig struct {
	Endpoint string `json:"endpoint"`
	Host     string `json:"host"`
	Timeout  string `json:"timeout,omitempty"` // default "10s"
}

type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// APIConfig controls the local HTTP API (read model + signal ingress).
//
// Prefer binding to localhost; the API carries full chat history.
type APIConfig struct {
	Enabled     bool     `json:"enabled"`
	Addr        string   `json:"addr,omitempty"` // default "127.0.0.1:8750"
	HealthPaths []string `json:"health_paths,omitempty"`
}

// RefreshConfig controls the daily window reopen run.
type RefreshConfig struct {
	Enabled bool     `json:"enabled"`
	At      string   `json:"at,omitempty"` // "HH:mm", default "04:00"
	Titles  []string `json:"titles,omitempty"`
}
