package config

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`

	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Webhook  *WebhookConfig  `json:"webhook,omitempty"`
	GenAI    *GenAIConfig    `json:"genai,omitempty"`

	Delivery DeliveryConfig `json:"delivery"`
	Dispatch DispatchConfig `json:"dispatch"`

	// Trigger controls the cron runtime that fires dispatch passes.
	Trigger TriggerConfig `json:"trigger"`

	// Tasks maps task type ("check_in", "reminder_sweep", "digest",
	// "maintenance", "engagement") to its schedule and parameters.
	Tasks map[string]TaskConfig `json:"tasks"`
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

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./remindd.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	Offline bool   `json:"offline,omitempty"` // skip the getMe probe (tests)
}

type WebhookConfig struct {
	Enabled bool `json:"enabled"`
	// Timeout is a Go duration string (e.g. "10s").
	Timeout string `json:"timeout,omitempty"`
}

// GenAIConfig selects the text generator. Provider "deepseek" needs an API
// key; "template" is the deterministic fallback and needs nothing.
type GenAIConfig struct {
	Provider  string `json:"provider"`
	APIKey    string `json:"api_key,omitempty"`
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

type DeliveryConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
	// FallbackChannel is the channel type used when a reminder and its owner
	// both have no channels configured. Default "log".
	FallbackChannel string `json:"fallback_channel,omitempty"`
}

// DispatchConfig controls outcome grading and history retention.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type DispatchConfig struct {
	// ErrorRateThreshold grades a pass failed when failed/total reaches it.
	// 0 means the default (0.05).
	ErrorRateThreshold float64 `json:"error_rate_threshold,omitempty"`
	BatchSize          int     `json:"batch_size,omitempty"`
	HistorySize        int     `json:"history_size,omitempty"`
	// ExecutionRetention and ReminderRetention bound the store_cleanup
	// maintenance routine.
	ExecutionRetention string `json:"execution_retention,omitempty"`
	ReminderRetention  string `json:"reminder_retention,omitempty"`
	// ExpireAfter is how far past due an active reminder may drift before the
	// sweep marks it expired. Default "168h".
	ExpireAfter string `json:"expire_after,omitempty"`
}

type TriggerConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"` // IANA TZ for cron specs
	// TaskTimeout bounds one dispatch pass. Default "5m".
	TaskTimeout string `json:"task_timeout,omitempty"`
}

// TaskConfig is one task type's schedule plus the parameter fields that task
// understands; fields for other task types must stay zero.
type TaskConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`
	// Timeout overrides trigger.task_timeout for this task.
	Timeout string `json:"timeout,omitempty"`

	// check_in
	Tolerance string `json:"tolerance,omitempty"`
	// reminder_sweep
	Limit int `json:"limit,omitempty"`
	// digest
	Period string `json:"period,omitempty"`
	// maintenance
	Routine string `json:"routine,omitempty"`
	// engagement
	InactiveFor string `json:"inactive_for,omitempty"`
}
