package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Storage: StorageConfig{Driver: "sqlite", Path: "./x.db", BusyTimeout: "5s"},
		Trigger: TriggerConfig{Enabled: true, Timezone: "America/New_York", TaskTimeout: "2m"},
		Tasks: map[string]TaskConfig{
			"reminder_sweep": {Enabled: true, Schedule: "*/5 * * * *"},
			"maintenance":    {Enabled: true, Schedule: "@daily", Routine: "store_cleanup"},
		},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "bad busy timeout",
			mutate:  func(c *Config) { c.Storage.BusyTimeout = "5 seconds" },
			wantErr: "storage.busy_timeout",
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Dispatch.ErrorRateThreshold = 1.5 },
			wantErr: "error_rate_threshold",
		},
		{
			name:    "unknown timezone",
			mutate:  func(c *Config) { c.Trigger.Timezone = "Mars/Olympus" },
			wantErr: "trigger.timezone",
		},
		{
			name:    "telegram enabled without token",
			mutate:  func(c *Config) { c.Telegram = &TelegramConfig{Enabled: true} },
			wantErr: "telegram.token",
		},
		{
			name:    "deepseek without key",
			mutate:  func(c *Config) { c.GenAI = &GenAIConfig{Provider: "deepseek"} },
			wantErr: "genai.api_key",
		},
		{
			name:    "unknown task type",
			mutate:  func(c *Config) { c.Tasks["sweeep"] = TaskConfig{Enabled: true, Schedule: "5m"} },
			wantErr: "tasks.sweeep",
		},
		{
			name: "enabled task without schedule",
			mutate: func(c *Config) {
				c.Tasks["check_in"] = TaskConfig{Enabled: true}
			},
			wantErr: "tasks.check_in.schedule",
		},
		{
			name: "disabled task without schedule is fine",
			mutate: func(c *Config) {
				c.Tasks["check_in"] = TaskConfig{Enabled: false}
			},
		},
		{
			name: "bad task duration",
			mutate: func(c *Config) {
				c.Tasks["check_in"] = TaskConfig{Enabled: true, Schedule: "5m", Tolerance: "soon"}
			},
			wantErr: "tasks.check_in.tolerance",
		},
		{
			name: "maintenance without routine",
			mutate: func(c *Config) {
				c.Tasks["maintenance"] = TaskConfig{Enabled: true, Schedule: "@daily"}
			},
			wantErr: "tasks.maintenance.routine",
		},
		{
			name: "maintenance unknown routine",
			mutate: func(c *Config) {
				c.Tasks["maintenance"] = TaskConfig{Enabled: true, Schedule: "@daily", Routine: "defrag"}
			},
			wantErr: "unknown routine",
		},
		{
			name: "routine on non-maintenance task",
			mutate: func(c *Config) {
				c.Tasks["digest"] = TaskConfig{Enabled: true, Schedule: "@daily", Routine: "store_cleanup"}
			},
			wantErr: "only valid for maintenance",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(cfg)
			err := Validate(cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tc.wantErr)
			}
		})
	}

	if err := Validate(nil); err == nil {
		t.Fatal("nil config must be rejected")
	}
}
