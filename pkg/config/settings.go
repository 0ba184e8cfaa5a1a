package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"github.com/go-playground/validator/v10"
	"github.com/openfroyo/froyo-age/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

// Settings is the froyo-age settings file. It supplies defaults for the
// command-line tool; scripts always pass identities and options explicitly.
type Settings struct {
	// Identities are the identity files used by the read and import commands
	// when none are given on the command line.
	Identities []string `json:"identities" yaml:"identities" validate:"dive,required"`

	// Cache enables the plaintext cache for the read and import commands.
	Cache bool `json:"cache" yaml:"cache"`

	// CacheDir overrides the cache root.
	CacheDir string `json:"cache_dir,omitempty" yaml:"cache_dir"`

	// CacheDirMode selects how the cache_dir option of the builtins is
	// type-checked (lenient, strict).
	CacheDirMode string `json:"cache_dir_mode" yaml:"cache_dir_mode" validate:"required,oneof=lenient strict"`

	// Timeout bounds a single script evaluation (e.g. "30s").
	Timeout string `json:"timeout" yaml:"timeout" validate:"required,duration"`

	Logging LoggingSettings `json:"logging" yaml:"logging"`
	Metrics MetricsSettings `json:"metrics" yaml:"metrics"`
	Tracing TracingSettings `json:"tracing" yaml:"tracing"`
	Audit   AuditSettings   `json:"audit" yaml:"audit"`
}

// LoggingSettings configures the process logger.
type LoggingSettings struct {
	Level  string `json:"level" yaml:"level" validate:"required,oneof=trace debug info warn error"`
	Format string `json:"format" yaml:"format" validate:"required,oneof=console json"`
	Output string `json:"output" yaml:"output" validate:"required"`
}

// MetricsSettings configures Prometheus metrics.
type MetricsSettings struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	ListenAddress string `json:"listen_address,omitempty" yaml:"listen_address" validate:"omitempty,hostname_port"`
	Path          string `json:"path" yaml:"path" validate:"required,startswith=/"`
}

// TracingSettings configures trace export.
type TracingSettings struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	Exporter   string  `json:"exporter" yaml:"exporter" validate:"required,oneof=none otlp stdout"`
	Endpoint   string  `json:"endpoint,omitempty" yaml:"endpoint" validate:"required_if=Exporter otlp"`
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate" validate:"gte=0,lte=1"`
}

// AuditSettings configures the decryption audit log.
type AuditSettings struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path,omitempty" yaml:"path" validate:"required_if=Enabled true"`
}

// DefaultSettings returns the settings used when no settings file exists.
// They match the defaults of the built-in CUE schema.
func DefaultSettings() *Settings {
	return &Settings{
		Identities:   []string{},
		Cache:        true,
		CacheDirMode: "lenient",
		Timeout:      DefaultTimeout.String(),
		Logging: LoggingSettings{
			Level:  "warn",
			Format: "console",
			Output: "stderr",
		},
		Metrics: MetricsSettings{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingSettings{
			Exporter:   "none",
			SampleRate: 1.0,
		},
	}
}

// TimeoutDuration returns the parsed evaluation timeout.
func (s *Settings) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return DefaultTimeout
	}
	return d
}

// Telemetry builds the telemetry configuration described by the settings.
func (s *Settings) Telemetry(version string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	if version != "" {
		cfg.ServiceVersion = version
	}
	cfg.Logging.Level = s.Logging.Level
	cfg.Logging.Format = s.Logging.Format
	cfg.Logging.Output = s.Logging.Output
	cfg.Metrics.Enabled = s.Metrics.Enabled
	cfg.Metrics.ListenAddress = s.Metrics.ListenAddress
	cfg.Metrics.Path = s.Metrics.Path
	cfg.Tracing.Enabled = s.Tracing.Enabled && s.Tracing.Exporter != "none"
	cfg.Tracing.Exporter = s.Tracing.Exporter
	cfg.Tracing.Endpoint = s.Tracing.Endpoint
	cfg.Tracing.SamplingRate = s.Tracing.SampleRate
	return cfg
}

// SettingsLoader reads settings files written in CUE, YAML or JSON.
type SettingsLoader struct {
	ctx       *cue.Context
	registry  *SchemaRegistry
	validator *validator.Validate
}

// NewSettingsLoader creates a settings loader.
func NewSettingsLoader() *SettingsLoader {
	ctx := cuecontext.New()
	v := validator.New()
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	return &SettingsLoader{
		ctx:       ctx,
		registry:  newSchemaRegistry(ctx),
		validator: v,
	}
}

// Load reads settings from path. A directory is loaded as a CUE package;
// files are decoded by extension (.cue, .yaml, .yml, .json).
func (sl *SettingsLoader) Load(ctx context.Context, path string) (*Settings, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat settings: %w", err)
	}

	var settings *Settings
	switch ext := strings.ToLower(filepath.Ext(path)); {
	case info.IsDir():
		settings, err = sl.loadCUEDirectory(path)
	case ext == ".cue":
		settings, err = sl.loadCUEFile(path)
	case ext == ".yaml" || ext == ".yml" || ext == ".json":
		settings, err = sl.loadYAML(ctx, path)
	default:
		return nil, fmt.Errorf("unsupported settings format: %s", path)
	}
	if err != nil {
		return nil, err
	}

	if err := sl.Validate(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// LoadInline parses CUE settings from a string.
func (sl *SettingsLoader) LoadInline(content string) (*Settings, error) {
	val := sl.ctx.CompileString(content, cue.Filename("inline"))
	settings, err := sl.decode(val)
	if err != nil {
		return nil, err
	}
	if err := sl.Validate(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks struct-level constraints the CUE schema does not express.
func (sl *SettingsLoader) Validate(settings *Settings) error {
	err := sl.validator.Struct(settings)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Path:     strings.TrimPrefix(fe.Namespace(), "Settings."),
			Message:  fmt.Sprintf("failed on the '%s' rule", fe.Tag()),
			Severity: "error",
		})
	}
	return out
}

func (sl *SettingsLoader) loadCUEFile(path string) (*Settings, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return sl.decode(sl.ctx.CompileBytes(content, cue.Filename(path)))
}

func (sl *SettingsLoader) loadCUEDirectory(dir string) (*Settings, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, ValidationErrors{{File: dir, Message: "no CUE files found", Severity: "error"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, convertCUEErrors(inst.Err)
	}
	return sl.decode(sl.ctx.BuildInstance(inst))
}

func (sl *SettingsLoader) decode(val cue.Value) (*Settings, error) {
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}

	unified, err := sl.registry.Unify(SettingsSchema, val)
	if err != nil {
		return nil, convertCUEErrors(err)
	}

	settings := DefaultSettings()
	if err := unified.Decode(settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return settings, nil
}

func (sl *SettingsLoader) loadYAML(ctx context.Context, path string) (*Settings, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	settings := DefaultSettings()
	if err := yaml.Unmarshal(content, settings); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if settings.Identities == nil {
		settings.Identities = []string{}
	}

	if err := sl.registry.ValidateAgainstSchema(ctx, SettingsSchema, settings); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return settings, nil
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func convertCUEErrors(err error) ValidationErrors {
	var validationErrors ValidationErrors

	// Handle CUE error types
	errs := cueerrors.Errors(err)
	for _, e := range errs {
		pos := cueerrors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Path:     strings.Join(e.Path(), "."),
			Message:  cueerrors.Details(e, nil),
			Severity: "error",
		})
	}

	if len(validationErrors) == 0 {
		validationErrors = append(validationErrors, ValidationError{Message: err.Error(), Severity: "error"})
	}
	return validationErrors
}
