package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/fefsmon/jobrate/internal/circuit"
	"github.com/fefsmon/jobrate/internal/filter"
	"github.com/fefsmon/jobrate/pkg/errors"
	"github.com/fefsmon/jobrate/pkg/health"
	"github.com/fefsmon/jobrate/pkg/retry"
	"github.com/fefsmon/jobrate/pkg/types"
	"github.com/fefsmon/jobrate/pkg/utils"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Global    GlobalConfig         `yaml:"global"`
	Collector CollectorConfig      `yaml:"collector"`
	Source    SourceConfig         `yaml:"source"`
	Report    ReportConfig         `yaml:"report"`
	Metrics   MetricsConfig        `yaml:"metrics"`
	Health    health.TrackerConfig `yaml:"health"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"`
	LogFile   string        `yaml:"log_file"`
	Interval  time.Duration `yaml:"interval"`

	// ComponentLevels overrides LogLevel for the named components
	ComponentLevels map[string]string `yaml:"component_levels,omitempty"`
}

// CollectorConfig selects what is collected and how it is scoped
type CollectorConfig struct {
	Domains []string        `yaml:"domains"`
	Profile string          `yaml:"profile"`
	Mode    string          `yaml:"mode"`
	Filters filter.Criteria `yaml:"filters"`
}

// SourceConfig selects where raw job_stats text comes from
type SourceConfig struct {
	Kind     string        `yaml:"kind"`
	LctlPath string        `yaml:"lctl_path"`
	ProcRoot string        `yaml:"proc_root"`
	Files    []string      `yaml:"files"`
	Timeout  time.Duration `yaml:"timeout"`
	Retry    RetryConfig   `yaml:"retry"`
	Breaker  BreakerConfig `yaml:"breaker"`
}

// RetryConfig represents retry settings for a failed pull
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// BreakerConfig represents circuit breaker settings for the source
type BreakerConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// ReportConfig represents the text report settings
type ReportConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Format      string `yaml:"format"`
	Separator   string `yaml:"separator"`
	HeaderEvery int    `yaml:"header_every"`
	Output      string `yaml:"output"`
}

// MetricsConfig represents the Prometheus exporter settings
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Source kinds
const (
	SourceLctl = "lctl"
	SourceProc = "proc"
	SourceFile = "file"
)

// Report formats
const (
	FormatText = "text"
	FormatPlot = "plot"
)

// NewDefault creates a new configuration with default values
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "text",
			Interval:  10 * time.Second,
		},
		Collector: CollectorConfig{
			Domains: []string{string(types.DomainMDT)},
			Profile: string(types.ProfileCurrent),
			Mode:    string(types.ModeSummary),
		},
		Source: SourceConfig{
			Kind:     SourceLctl,
			LctlPath: "/usr/sbin/lctl",
			ProcRoot: "/proc/fs/lustre",
			Timeout:  10 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: 200 * time.Millisecond,
				MaxDelay:     2 * time.Second,
			},
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				Timeout:          time.Minute,
			},
		},
		Report: ReportConfig{
			Enabled:     true,
			Format:      FormatText,
			Separator:   " ",
			HeaderEvery: 20,
			Output:      "-",
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Address:   ":9464",
			Path:      "/metrics",
			Namespace: "jobrate",
		},
		Health: health.DefaultConfig(),
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to read config file").
			WithComponent("config").
			WithContext("file", filename).
			WithCause(err)
	}

	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to parse config file").
			WithComponent("config").
			WithContext("file", filename).
			WithCause(err)
	}

	return nil
}

// LoadFromEnv loads configuration from JOBRATE_* environment variables.
// Malformed numbers and durations are reported rather than ignored.
func (c *Configuration) LoadFromEnv() error {
	env := envReader{}

	env.str("JOBRATE_LOG_LEVEL", &c.Global.LogLevel)
	env.str("JOBRATE_LOG_FORMAT", &c.Global.LogFormat)
	env.str("JOBRATE_LOG_FILE", &c.Global.LogFile)
	env.duration("JOBRATE_INTERVAL", &c.Global.Interval)

	if val := os.Getenv("JOBRATE_DOMAINS"); val != "" {
		c.Collector.Domains = splitList(val)
	}
	env.str("JOBRATE_PROFILE", &c.Collector.Profile)
	env.str("JOBRATE_MODE", &c.Collector.Mode)
	env.patterns("JOBRATE_FILTER_FS", &c.Collector.Filters.Filesystems)
	env.patterns("JOBRATE_FILTER_VOLUMES", &c.Collector.Filters.Volumes)
	env.patterns("JOBRATE_FILTER_JOBS", &c.Collector.Filters.Jobs)

	env.str("JOBRATE_SOURCE", &c.Source.Kind)
	env.str("JOBRATE_LCTL_PATH", &c.Source.LctlPath)
	env.str("JOBRATE_PROC_ROOT", &c.Source.ProcRoot)
	env.duration("JOBRATE_SOURCE_TIMEOUT", &c.Source.Timeout)

	env.boolean("JOBRATE_REPORT_ENABLED", &c.Report.Enabled)
	env.str("JOBRATE_REPORT_FORMAT", &c.Report.Format)

	env.boolean("JOBRATE_METRICS_ENABLED", &c.Metrics.Enabled)
	env.str("JOBRATE_METRICS_ADDRESS", &c.Metrics.Address)
	env.str("JOBRATE_METRICS_NAMESPACE", &c.Metrics.Namespace)

	return env.err
}

type envReader struct {
	err error
}

func (r *envReader) fail(name, val string, cause error) {
	if r.err != nil {
		return
	}
	r.err = errors.Newf(errors.ErrCodeInvalidConfig, "invalid value %q for %s", val, name).
		WithComponent("config").
		WithOperation("load_env").
		WithCause(cause)
}

func (r *envReader) str(name string, dst *string) {
	if val := os.Getenv(name); val != "" {
		*dst = val
	}
}

func (r *envReader) patterns(name string, dst *[]string) {
	if val := os.Getenv(name); val != "" {
		*dst = filter.ParsePatterns(val)
	}
}

func (r *envReader) duration(name string, dst *time.Duration) {
	if val := os.Getenv(name); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			r.fail(name, val, err)
			return
		}
		*dst = d
	}
}

func (r *envReader) boolean(name string, dst *bool) {
	if val := os.Getenv(name); val != "" {
		b, err := strconv.ParseBool(val)
		if err != nil {
			r.fail(name, val, err)
			return
		}
		*dst = b
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		out = append(out, strings.TrimSpace(part))
	}
	return out
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.NewError(errors.ErrCodeConfigSave, "failed to marshal config").
			WithComponent("config").
			WithCause(err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return errors.NewError(errors.ErrCodeConfigSave, "failed to create config directory").
			WithComponent("config").
			WithCause(err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return errors.NewError(errors.ErrCodeConfigSave, "failed to write config file").
			WithComponent("config").
			WithCause(err)
	}

	return nil
}

func invalid(format string, args ...interface{}) error {
	return errors.Newf(errors.ErrCodeConfigValidation, format, args...).
		WithComponent("config").
		WithOperation("validate")
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if _, err := utils.ParseLogLevel(c.Global.LogLevel); err != nil {
		return invalid("invalid log_level: %s (must be one of: TRACE, DEBUG, INFO, WARN, ERROR)", c.Global.LogLevel)
	}
	if _, err := utils.ParseLogFormat(c.Global.LogFormat); err != nil {
		return invalid("invalid log_format: %s (must be text or json)", c.Global.LogFormat)
	}
	for component, level := range c.Global.ComponentLevels {
		if _, err := utils.ParseLogLevel(level); err != nil {
			return invalid("invalid component_levels.%s: %s", component, level)
		}
	}
	if c.Global.Interval <= 0 {
		return invalid("interval must be greater than 0")
	}

	domains, err := c.Domains()
	if err != nil {
		return err
	}
	if len(domains) == 0 {
		return invalid("at least one domain (mdt or ost) is required")
	}
	if _, err := types.ParseProfile(c.Collector.Profile); err != nil {
		return invalid("invalid profile: %v", err)
	}
	mode, err := types.ParseMode(c.Collector.Mode)
	if err != nil {
		return invalid("invalid mode: %v", err)
	}

	if err := c.Collector.Filters.Validate(); err != nil {
		return err
	}
	if err := validateFilterMode(c.Collector.Filters, mode); err != nil {
		return err
	}

	switch c.Source.Kind {
	case SourceLctl:
		if c.Source.LctlPath == "" {
			return invalid("lctl_path is required for source kind %s", SourceLctl)
		}
	case SourceProc:
		if c.Source.ProcRoot == "" {
			return invalid("proc_root is required for source kind %s", SourceProc)
		}
	case SourceFile:
		if len(c.Source.Files) == 0 {
			return invalid("files are required for source kind %s", SourceFile)
		}
	default:
		return invalid("invalid source kind: %s (must be lctl, proc or file)", c.Source.Kind)
	}
	if c.Source.Timeout <= 0 {
		return invalid("source timeout must be greater than 0")
	}
	if c.Source.Retry.MaxAttempts < 0 {
		return invalid("retry max_attempts can't be negative")
	}

	if c.Report.Enabled {
		if c.Report.Format != FormatText && c.Report.Format != FormatPlot {
			return invalid("invalid report format: %s (must be text or plot)", c.Report.Format)
		}
		if c.Report.HeaderEvery < 0 {
			return invalid("header_every can't be negative")
		}
	}

	if c.Health.ErrorThreshold < 0 || c.Health.UnavailableThreshold < 0 || c.Health.RecoveryThreshold < 0 {
		return invalid("health thresholds can't be negative")
	}
	if c.Health.UnavailableThreshold > 0 && c.Health.UnavailableThreshold < c.Health.ErrorThreshold {
		return invalid("health unavailable_threshold must not be below error_threshold")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return invalid("metrics address is required when metrics are enabled")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return invalid("metrics path must start with '/'")
		}
		if c.Metrics.Namespace == "" {
			return invalid("metrics namespace is required when metrics are enabled")
		}
	}

	return nil
}

// validateFilterMode applies the rule that narrowing to volumes needs a per
// volume report and narrowing to jobs needs a per job report.
func validateFilterMode(cr filter.Criteria, mode types.Mode) error {
	if len(cr.Filesystems) > 0 && mode == types.ModeSummary {
		return invalid("detail or verbose mode is required when a filesystem filter is set")
	}
	if len(cr.Volumes) > 0 && mode == types.ModeSummary {
		return invalid("detail or verbose mode is required when volumes are specified")
	}
	if len(cr.Jobs) > 0 && mode != types.ModeVerbose {
		return invalid("verbose mode is required when a job filter is set")
	}
	return nil
}

// Domains returns the configured domains, parsed and de-duplicated.
func (c *Configuration) Domains() ([]types.Domain, error) {
	seen := make(map[types.Domain]bool)
	var out []types.Domain
	for _, s := range c.Collector.Domains {
		d, err := types.ParseDomain(s)
		if err != nil {
			return nil, invalid("%v", err)
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out, nil
}

// Profile returns the parsed field profile.
func (c *Configuration) Profile() types.Profile {
	p, _ := types.ParseProfile(c.Collector.Profile)
	return p
}

// Mode returns the parsed report mode.
func (c *Configuration) Mode() types.Mode {
	m, _ := types.ParseMode(c.Collector.Mode)
	return m
}

// RetryConfig converts the retry settings for pkg/retry.
func (c *Configuration) RetryConfig() retry.Config {
	rc := retry.DefaultConfig()
	if c.Source.Retry.MaxAttempts > 0 {
		rc.MaxAttempts = c.Source.Retry.MaxAttempts
	}
	if c.Source.Retry.InitialDelay > 0 {
		rc.InitialDelay = c.Source.Retry.InitialDelay
	}
	if c.Source.Retry.MaxDelay > 0 {
		rc.MaxDelay = c.Source.Retry.MaxDelay
	}
	return rc
}

// BreakerConfig converts the breaker settings for internal/circuit.
func (c *Configuration) BreakerConfig() circuit.Config {
	return circuit.Config{
		FailureThreshold: c.Source.Breaker.FailureThreshold,
		Timeout:          c.Source.Breaker.Timeout,
	}
}

// String renders the configuration as YAML for the validate command.
func (c *Configuration) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}
