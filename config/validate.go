package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/livewatch-cli/livewatch/quality"
	"github.com/samber/lo"
)

// ErrInvalidValue is returned when a value parses but falls outside the field's bounds.
var ErrInvalidValue = errors.New("invalid value")

const (
	maxRetriesLimit    = 1000
	teardownDelayLimit = 10 * time.Second
)

func all(checks ...func(any) error) func(any) error {
	if len(checks) == 0 {
		return nil
	}

	return func(v any) error {
		for _, check := range checks {
			if err := check(v); err != nil {
				return err
			}
		}
		return nil
	}
}

func positiveDuration(v any) error {
	d, ok := v.(time.Duration)
	if !ok || d <= 0 {
		return fmt.Errorf("must be a positive duration, got %v", v)
	}
	return nil
}

func nonNegativeDuration(v any) error {
	d, ok := v.(time.Duration)
	if !ok || d < 0 {
		return fmt.Errorf("must not be negative, got %v", v)
	}
	return nil
}

func durationAtMost(max time.Duration) func(any) error {
	return func(v any) error {
		if err := nonNegativeDuration(v); err != nil {
			return err
		}
		if d := v.(time.Duration); d > max {
			return fmt.Errorf("must be at most %s, got %s", max, d)
		}
		return nil
	}
}

func intBetween(min, max int) func(any) error {
	return func(v any) error {
		n, ok := v.(int)
		if !ok || n < min || n > max {
			return fmt.Errorf("must be between %d and %d, got %v", min, max, v)
		}
		return nil
	}
}

func floatBetween(min, max float64) func(any) error {
	return func(v any) error {
		f, ok := v.(float64)
		if !ok || f < min || f > max {
			return fmt.Errorf("must be between %g and %g, got %v", min, max, v)
		}
		return nil
	}
}

func oneOf(options ...string) func(any) error {
	return func(v any) error {
		s, _ := v.(string)
		if !lo.Contains(options, s) {
			return fmt.Errorf("must be one of %s, got %q", strings.Join(options, ", "), s)
		}
		return nil
	}
}

func notEmpty(v any) error {
	if s, _ := v.(string); strings.TrimSpace(s) == "" {
		return errors.New("must not be empty")
	}
	return nil
}

func qualitySelection(v any) error {
	s, _ := v.(string)
	sel, err := quality.ParseSelection(s, 0)
	if err != nil {
		return err
	}
	if sel.Tier < 0 {
		return fmt.Errorf("tier must not be negative, got %d", sel.Tier)
	}
	return nil
}

// listenAddress accepts an empty string, which disables the listener.
func listenAddress(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(s); err != nil {
		return fmt.Errorf("must be host:port, got %q", s)
	}
	return nil
}
