package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/spf13/viper"

	"codeless/internal/repeat"
	"codeless/internal/selector"
)

// ErrInvalidConfig reports a configuration value outside its accepted set
var ErrInvalidConfig = errors.New("invalid config")

// EmptyPolicy decides what happens to an element bound to blank content
type EmptyPolicy string

const (
	DoNothing       EmptyPolicy = "do_nothing"
	Clear           EmptyPolicy = "clear"
	SetFlag         EmptyPolicy = "set_flag"
	ClearAndSetFlag EmptyPolicy = "clear_and_set_flag"
	NoRender        EmptyPolicy = "no_render"
)

// ParseEmptyPolicy reads a policy name; blank selects DoNothing
func ParseEmptyPolicy(s string) (EmptyPolicy, error) {
	switch p := EmptyPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DoNothing, nil
	case DoNothing, Clear, SetFlag, ClearAndSetFlag, NoRender:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown on_content_empty policy %q", ErrInvalidConfig, s)
}

// Config holds configuration options for the rendering process
type Config struct {
	// SelectorDialect is how data keys are read unless prefixed with css: or xpath:
	SelectorDialect string `mapstructure:"selector_dialect"`

	// FormatHTML copies indentation around duplicated elements
	FormatHTML bool `mapstructure:"format_html"`

	// ParseInsertedData runs one extra pass to bind markup inserted by the first
	ParseInsertedData bool `mapstructure:"parse_inserted_data"`

	// RepeatX is the repeat spec used at even recursion depths
	RepeatX string `mapstructure:"repeat_fn_x"`

	// RepeatY is the repeat spec used at odd recursion depths
	RepeatY string `mapstructure:"repeat_fn_y"`

	// OnContentEmpty is the default empty-content policy
	OnContentEmpty string `mapstructure:"on_content_empty"`

	// LogLevel is one of trace, debug, info, warn, error
	LogLevel string `mapstructure:"log_level"`
}

// Default returns the configuration used when nothing is set
func Default() Config {
	return Config{
		SelectorDialect:   "css",
		FormatHTML:        true,
		ParseInsertedData: false,
		RepeatX:           "simple",
		RepeatY:           "simple",
		OnContentEmpty:    string(DoNothing),
		LogLevel:          "warn",
	}
}

// Validate checks every field that has a closed set of values
func (c Config) Validate() error {
	if _, err := selector.ParseDialect(c.SelectorDialect); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := repeat.Parse(c.RepeatX); err != nil {
		return fmt.Errorf("%w: repeat_fn_x: %v", ErrInvalidConfig, err)
	}
	if _, err := repeat.Parse(c.RepeatY); err != nil {
		return fmt.Errorf("%w: repeat_fn_y: %v", ErrInvalidConfig, err)
	}
	if _, err := ParseEmptyPolicy(c.OnContentEmpty); err != nil {
		return err
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.LogLevel)
	}
	return nil
}

// Level maps LogLevel onto a logger level; blank or unknown names select warn
func (c Config) Level() log.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "trace":
		return log.LevelTrace
	case "debug":
		return log.LevelDebug
	case "info":
		return log.LevelInfo
	case "error":
		return log.LevelError
	}
	return log.LevelWarn
}

// Dialect returns the parsed selector dialect, CSS when invalid
func (c Config) Dialect() selector.Dialect {
	d, err := selector.ParseDialect(c.SelectorDialect)
	if err != nil {
		return selector.CSS
	}
	return d
}

// NewViper returns a viper instance carrying the defaults and CODELESS_* environment binding
func NewViper() *viper.Viper {
	v := viper.New()
	d := Default()
	v.SetDefault("selector_dialect", d.SelectorDialect)
	v.SetDefault("format_html", d.FormatHTML)
	v.SetDefault("parse_inserted_data", d.ParseInsertedData)
	v.SetDefault("repeat_fn_x", d.RepeatX)
	v.SetDefault("repeat_fn_y", d.RepeatY)
	v.SetDefault("on_content_empty", d.OnContentEmpty)
	v.SetDefault("log_level", d.LogLevel)

	v.SetEnvPrefix("codeless")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads an optional config file (YAML, JSON or TOML) over the defaults,
// applies the environment and validates the result
func Load(path string) (Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates a config from v
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
