// Package config resolves shopprobe settings from flags, SHOPPROBE_*
// environment variables, an optional config file and built-in defaults, in
// that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. SHOPPROBE_BASE_URL.
const EnvPrefix = "SHOPPROBE"

// Report formats.
const (
	FormatJSON  = "json"
	FormatJUnit = "junit"
	FormatHTML  = "html"
	FormatYAML  = "yaml"
)

// Config is the resolved configuration.
type Config struct {
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Warmup          time.Duration `mapstructure:"warmup"`
	StepDelay       time.Duration `mapstructure:"step_delay"`
	MenuDelay       time.Duration `mapstructure:"menu_delay"`
	SearchTerm      string        `mapstructure:"search_term"`
	Login           LoginConfig   `mapstructure:"login"`
	IncludeRegister bool          `mapstructure:"include_register"`
	OpenAPI         string        `mapstructure:"openapi"`
	Expect          string        `mapstructure:"expect"`
	Report          ReportConfig  `mapstructure:"report"`
	Insecure        bool          `mapstructure:"insecure"`
	CACert          string        `mapstructure:"cacert"`
	NoProxy         bool          `mapstructure:"noproxy"`
}

// LoginConfig is the account used by the login probe.
type LoginConfig struct {
	Identifier string `mapstructure:"identifier"`
	Password   string `mapstructure:"password"`
}

// ReportConfig controls the optional run report.
type ReportConfig struct {
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"`
}

type setting struct {
	key   string
	flag  string
	def   any
	usage string
}

var settings = []setting{
	{"base_url", "base-url", "http://localhost:3000", "API gateway base URL"},
	{"timeout", "timeout", 15 * time.Second, "per-request timeout"},
	{"warmup", "warmup", 3 * time.Second, "pause before the first probe of a sequential run"},
	{"step_delay", "step-delay", time.Second, "pause after each probe of a sequential run"},
	{"menu_delay", "menu-delay", 500 * time.Millisecond, "pause after each menu action"},
	{"search_term", "search-term", "arroz", "term used by the search probes"},
	{"login.identifier", "login-identifier", "admin@microservices.com", "email or username for the login probe"},
	{"login.password", "login-password", "admin123", "password for the login probe"},
	{"include_register", "include-register", false, "run the register probe in sequential runs"},
	{"openapi", "openapi", "", "OpenAPI 3 document (path or URL) to validate responses against"},
	{"expect", "expect", "", "JavaScript file with per-probe checks"},
	{"report.path", "report", "", "write a run report to this path"},
	{"report.format", "report-format", FormatJSON, "report format: json|junit|html|yaml"},
	{"insecure", "insecure", false, "skip TLS certificate verification"},
	{"cacert", "cacert", "", "CA certificate bundle (PEM) to trust"},
	{"noproxy", "noproxy", false, "ignore proxy environment variables"},
}

// AddFlags registers one flag per setting on fs.
func AddFlags(fs *pflag.FlagSet) {
	for _, s := range settings {
		switch def := s.def.(type) {
		case string:
			fs.String(s.flag, def, s.usage)
		case bool:
			fs.Bool(s.flag, def, s.usage)
		case time.Duration:
			fs.Duration(s.flag, def, s.usage)
		}
	}
}

// Load resolves the configuration. configPath may be empty, in which case a
// shopprobe.{yaml,json,toml} in the working directory is used when present.
// fs may be nil.
func Load(configPath string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("shopprobe")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}
	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Report.Format = strings.ToLower(strings.TrimSpace(cfg.Report.Format))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	for _, s := range settings {
		v.SetDefault(s.key, s.def)
	}
}

// bindEnvVars binds every key explicitly so nested keys are seen by Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	for _, s := range settings {
		if err := v.BindEnv(s.key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", s.key, err)
		}
	}
	return nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, s := range settings {
		f := fs.Lookup(s.flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(s.key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", s.flag, err)
		}
	}
	return nil
}

// Validate checks the resolved values.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute http(s) URL, got %q", c.BaseURL)
	}
	durations := map[string]time.Duration{
		"timeout":    c.Timeout,
		"warmup":     c.Warmup,
		"step_delay": c.StepDelay,
		"menu_delay": c.MenuDelay,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}
	if c.Timeout == 0 {
		return fmt.Errorf("timeout must be positive")
	}
	switch c.Report.Format {
	case FormatJSON, FormatJUnit, FormatHTML, FormatYAML:
	default:
		return fmt.Errorf("invalid report format: %s (must be json, junit, html or yaml)", c.Report.Format)
	}
	if c.Login.Identifier == "" {
		return fmt.Errorf("login.identifier is required")
	}
	return nil
}
