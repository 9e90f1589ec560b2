package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses one Go-duration config value. Empty means unset
// and parses to 0 so consumers can apply their own defaults; negative values
// are rejected because no timeout, tolerance or retention here can be
// negative. path names the field in errors ("tasks.check_in.tolerance").
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
