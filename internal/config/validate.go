package config

import (
	"fmt"
	"strings"
	"time"
)

var knownTasks = map[string]bool{
	"check_in":       true,
	"reminder_sweep": true,
	"digest":         true,
	"maintenance":    true,
	"engagement":     true,
}

var knownRoutines = map[string]bool{
	"store_cleanup":        true,
	"cache_refresh":        true,
	"performance_analysis": true,
	"health_probe":         true,
}

// Validate rejects configs that would misbehave at runtime: unknown task
// types, bad durations, bad timezones, missing schedules on enabled tasks.
// Schedule syntax itself is checked by the trigger on registration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	for _, f := range []struct{ path, raw string }{
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"dispatch.execution_retention", cfg.Dispatch.ExecutionRetention},
		{"dispatch.reminder_retention", cfg.Dispatch.ReminderRetention},
		{"dispatch.expire_after", cfg.Dispatch.ExpireAfter},
		{"trigger.task_timeout", cfg.Trigger.TaskTimeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	if cfg.Webhook != nil {
		if _, err := ParseDurationField("webhook.timeout", cfg.Webhook.Timeout); err != nil {
			return err
		}
	}

	if t := cfg.Dispatch.ErrorRateThreshold; t < 0 || t > 1 {
		return fmt.Errorf("dispatch.error_rate_threshold: must be in [0,1], got %v", t)
	}

	if tz := strings.TrimSpace(cfg.Trigger.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("trigger.timezone: unknown timezone %q", tz)
		}
	}

	if cfg.Telegram != nil && cfg.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token: required when telegram is enabled")
	}
	if cfg.GenAI != nil && cfg.GenAI.Provider == "deepseek" && strings.TrimSpace(cfg.GenAI.APIKey) == "" {
		return fmt.Errorf("genai.api_key: required for provider deepseek")
	}

	for name, t := range cfg.Tasks {
		if !knownTasks[name] {
			return fmt.Errorf("tasks.%s: unknown task type", name)
		}
		if t.Enabled && strings.TrimSpace(t.Schedule) == "" {
			return fmt.Errorf("tasks.%s.schedule: required when enabled", name)
		}
		for _, f := range []struct{ path, raw string }{
			{"timeout", t.Timeout},
			{"tolerance", t.Tolerance},
			{"period", t.Period},
			{"inactive_for", t.InactiveFor},
		} {
			if _, err := ParseDurationField("tasks."+name+"."+f.path, f.raw); err != nil {
				return err
			}
		}
		if name == "maintenance" {
			if t.Routine == "" {
				return fmt.Errorf("tasks.maintenance.routine: required")
			}
			if !knownRoutines[t.Routine] {
				return fmt.Errorf("tasks.maintenance.routine: unknown routine %q", t.Routine)
			}
		} else if t.Routine != "" {
			return fmt.Errorf("tasks.%s.routine: only valid for maintenance", name)
		}
	}
	return nil
}
