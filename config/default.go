// Package config provides centralized management for application settings, defaults, and the Viper-based configuration engine.
package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/livewatch-cli/livewatch/color"
	"github.com/livewatch-cli/livewatch/constant"
	"github.com/livewatch-cli/livewatch/icon"
	"github.com/livewatch-cli/livewatch/key"
	"github.com/livewatch-cli/livewatch/style"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Field represents a configuration field definition.
type Field struct {
	Key         string
	Value       any
	Description string

	validate func(v any) error
}

// Pretty returns a colored string representation of the field for display.
func (f *Field) Pretty() string {
	var b strings.Builder
	lo.Must0(prettyTemplate.Execute(&b, f))
	return b.String()
}

// Env returns the environment variable name for this field.
func (f *Field) Env() string {
	env := strings.ToUpper(EnvKeyReplacer.Replace(f.Key))
	prefix := strings.ToUpper(constant.Livewatch + "_")
	if strings.HasPrefix(env, prefix) {
		return env
	}
	return prefix + env
}

// MarshalJSON customizes JSON output to include current and default values.
func (f *Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key         string `json:"key"`
		Value       any    `json:"value"`
		Default     any    `json:"default"`
		Description string `json:"description"`
		Type        string `json:"type"`
	}{
		Key:         f.Key,
		Value:       viper.Get(f.Key),
		Default:     f.Value,
		Description: f.Description,
		Type:        f.TypeName(),
	})
}

// TypeName returns the string representation of the field's underlying value type.
func (f *Field) TypeName() string {
	switch f.Value.(type) {
	case string:
		return "string"
	case int:
		return "int"
	case float64:
		return "float"
	case bool:
		return "bool"
	case time.Duration:
		return "duration"
	case []string:
		return "[]string"
	default:
		return "unknown"
	}
}

// Parse converts raw command-line values into the field's type and checks the result against the field's bounds.
func (f *Field) Parse(raw []string) (any, error) {
	v, err := f.parse(raw)
	if err != nil {
		return nil, err
	}

	if err := f.Validate(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Validate reports whether v is acceptable for the field.
func (f *Field) Validate(v any) error {
	if f.validate == nil {
		return nil
	}
	if err := f.validate(v); err != nil {
		return fmt.Errorf("%w: %s %v", ErrInvalidValue, f.Key, err)
	}
	return nil
}

func (f *Field) parse(raw []string) (any, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("no value given for %s", f.Key)
	}

	switch f.Value.(type) {
	case string:
		return raw[0], nil
	case int:
		v, err := strconv.Atoi(raw[0])
		if err != nil {
			return nil, fmt.Errorf("invalid integer value: %s", raw[0])
		}
		return v, nil
	case float64:
		v, err := strconv.ParseFloat(raw[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float value: %s", raw[0])
		}
		return v, nil
	case bool:
		v, err := strconv.ParseBool(raw[0])
		if err != nil {
			return nil, fmt.Errorf("invalid boolean value: %s", raw[0])
		}
		return v, nil
	case time.Duration:
		v, err := time.ParseDuration(raw[0])
		if err != nil {
			return nil, fmt.Errorf("invalid duration value: %s", raw[0])
		}
		return v, nil
	case []string:
		return raw, nil
	default:
		return nil, fmt.Errorf("unsupported type for %s", f.Key)
	}
}

// Default holds the map of all configuration fields.
var Default = make(map[string]Field)

// EnvExposed holds keys that are bound to environment variables.
var EnvExposed []string

func init() {
	register := func(k string, v any, desc string, validate ...func(any) error) {
		if _, exists := Default[k]; exists {
			panic("Duplicate config key: " + k)
		}
		Default[k] = Field{Key: k, Value: v, Description: desc, validate: all(validate...)}
		EnvExposed = append(EnvExposed, k)
	}

	register(key.PlayerRetryDelay, 3*time.Second, "Pause between a failed attempt and the next one", positiveDuration)
	register(key.PlayerAttemptTimeout, time.Duration(0), "Time to wait for the first rendered frame.\nZero means the retry delay is used", nonNegativeDuration)
	register(key.PlayerMaxRetries, 5, "Retries before the stream is marked unavailable.\nNegative means retry forever", intBetween(-1, maxRetriesLimit))
	register(key.PlayerTeardownDelay, 200*time.Millisecond, "Pause after destroying a player before creating the next one", durationAtMost(teardownDelayLimit))
	register(key.PlayerLowLatency, true, "Configure the player for continuous low-latency playback")
	register(key.PlayerMaxLatency, 3*time.Second, "Latency above which the player catches up to the live edge", nonNegativeDuration)
	register(key.PlayerLogVerbosity, "warn", "Log verbosity handed to the player.\nAvailable options are: no, fatal, error, warn, info, v, debug, trace",
		oneOf("no", "fatal", "error", "warn", "info", "v", "debug", "trace"))
	register(key.PlayerBinary, "mpv", "Player executable", notEmpty)
	register(key.SnapshotFormat, "jpeg", "Encoding of freeze frames.\nAvailable options are: jpeg, png, webp", oneOf("jpeg", "png", "webp"))
	register(key.SnapshotQuality, 80, "Encoding quality of freeze frames. From 0 to 100", intBetween(0, 100))
	register(key.SnapshotTTL, 7*24*time.Hour, "Saved freeze frames older than this are removed on startup.\nZero keeps them forever", nonNegativeDuration)
	register(key.VolumeMultiplier, 1.0, "Fixed multiplier applied to the product of user and master volume", floatBetween(0, 10))
	register(key.VolumeUser, 1.0, "User volume. From 0 to 1", floatBetween(0, 1))
	register(key.VolumeMaster, 1.0, "Master volume. From 0 to 1", floatBetween(0, 1))
	register(key.QualityDefault, "auto", "Quality used when none has been remembered.\nEither \"auto\", \"auto(N)\" or a tier index", qualitySelection)
	register(key.QualityRemember, true, "Remember the last selected quality per stream")
	register(key.MetricsAddress, "", "Address to expose Prometheus metrics on, e.g. \":9090\".\nEmpty disables the endpoint", listenAddress)
	register(key.LogsWrite, false, "Write logs")
	register(key.LogsLevel, "info", "Available options are: (from less to most verbose)\npanic, fatal, error, warn, info, debug, trace",
		oneOf("panic", "fatal", "error", "warn", "info", "debug", "trace"))
	register(key.LogsJson, false, "Use json format for logs")
	register(key.CliColored, true, "Enable colored CLI output")
	register(key.IconsVariant, "plain", "Icons variant.\nAvailable options are: emoji, nerd, plain, kaomoji, squares",
		oneOf(icon.AvailableVariants()...))
}

var prettyTemplate = lo.Must(template.New("pretty").Funcs(template.FuncMap{
	"faint":    style.Faint,
	"purple":   style.Fg(color.Purple),
	"blue":     style.Fg(color.Blue),
	"value":    func(k string) any { return viper.Get(k) },
	"typename": func(v any) string { return reflect.TypeOf(v).String() },
	"hl": func(v any) string {
		switch value := v.(type) {
		case bool:
			b := strconv.FormatBool(value)
			if value {
				return style.Fg(color.Green)(b)
			}
			return style.Fg(color.Red)(b)
		case string:
			return style.Fg(color.Yellow)(value)
		default:
			return fmt.Sprint(value)
		}
	},
}).Parse(`{{ faint .Description }}
{{ blue "Key:" }}     {{ purple .Key }}
{{ blue "Env:" }}     {{ .Env }}
{{ blue "Value:" }}   {{ hl (value .Key) }}
{{ blue "Default:" }} {{ hl (.Value) }}
{{ blue "Type:" }}    {{ typename .Value }}`))
