package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// AllFolds selects every manifest record regardless of its fold column.
const AllFolds = -1

// Default values applied by Load before validation
const (
	DefaultConverter        = "esc"
	DefaultProgressInterval = 100
	DefaultWorkers          = 1
)

// Config represents the complete evaluation run configuration
type Config struct {
	Dataset       DatasetConfig        `yaml:"dataset" toml:"dataset"`
	Preprocessing []PreprocessorConfig `yaml:"preprocessing" toml:"preprocessing"`
	Run           RunConfig            `yaml:"run" toml:"run"`
	HTTP          HTTPConfig           `yaml:"http" toml:"http"`
	Metrics       MetricsConfig        `yaml:"metrics" toml:"metrics"`
	Logging       LoggingConfig        `yaml:"logging" toml:"logging"`
}

// DatasetConfig selects the annotation converter and its parameters
type DatasetConfig struct {
	Converter      string `yaml:"converter" toml:"converter"`
	AnnotationFile string `yaml:"annotation_file" toml:"annotation_file"`
	Fold           *int   `yaml:"fold" toml:"fold"`             // -1 or unset means all folds
	AudioDir       string `yaml:"audio_dir" toml:"audio_dir"`   // defaults to the manifest's directory
	CheckContent   bool   `yaml:"check_content" toml:"check_content"`
}

// PreprocessorConfig describes one stage of the preprocessing pipeline.
// Which parameters are required depends on Type; the preprocess registry
// checks them when the pipeline is built.
type PreprocessorConfig struct {
	Type       string `yaml:"type" toml:"type"`
	SampleRate *int   `yaml:"sample_rate,omitempty" toml:"sample_rate,omitempty"` // Hz
	Size       *int   `yaml:"size,omitempty" toml:"size,omitempty"`               // samples per clip
	MaxClips   *int   `yaml:"max_clips,omitempty" toml:"max_clips,omitempty"`
}

// RunConfig contains driver options
type RunConfig struct {
	Workers          int    `yaml:"workers" toml:"workers"`
	ProgressInterval int    `yaml:"progress_interval" toml:"progress_interval"` // records
	DumpDir          string `yaml:"dump_dir" toml:"dump_dir"`
}

// HTTPConfig contains status server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port" toml:"port"`
	Address string `yaml:"address" toml:"address"`
	Enabled bool   `yaml:"enabled" toml:"enabled"`
}

// MetricsConfig controls where run metrics are exported
type MetricsConfig struct {
	Textfile string `yaml:"textfile" toml:"textfile"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	Output string `yaml:"output" toml:"output"`
}

// FieldError reports a missing or invalid configuration field
type FieldError struct {
	Section string
	Field   string
	Reason  string
}

func (e *FieldError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("%s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", e.Section, e.Field, e.Reason)
}

// Load reads and parses the configuration file. Files ending in .toml are
// decoded as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := decode(path, data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.resolvePaths(filepath.Dir(path))
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// decode rejects keys that map to no field, so a misspelled parameter fails
// the load instead of silently keeping its default.
func decode(path string, data []byte, out *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err := dec.Decode(out)
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			keys := make([]string, len(strict.Errors))
			for i, e := range strict.Errors {
				keys[i] = strings.Join(e.Key(), ".")
			}
			return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
		return err
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(out); err != nil && err != io.EOF {
			return err
		}
		return nil
	}
}

// resolvePaths makes relative dataset paths relative to the config file
func (c *Config) resolvePaths(base string) {
	if c.Dataset.AnnotationFile != "" && !filepath.IsAbs(c.Dataset.AnnotationFile) {
		c.Dataset.AnnotationFile = filepath.Join(base, c.Dataset.AnnotationFile)
	}
	if c.Dataset.AudioDir != "" && !filepath.IsAbs(c.Dataset.AudioDir) {
		c.Dataset.AudioDir = filepath.Join(base, c.Dataset.AudioDir)
	}
}

// ApplyDefaults fills optional fields that were left unset
func (c *Config) ApplyDefaults() {
	if c.Dataset.Converter == "" {
		c.Dataset.Converter = DefaultConverter
	}
	if c.Dataset.Fold == nil {
		fold := AllFolds
		c.Dataset.Fold = &fold
	}
	if c.Dataset.AudioDir == "" && c.Dataset.AnnotationFile != "" {
		c.Dataset.AudioDir = filepath.Dir(c.Dataset.AnnotationFile)
	}
	if c.Run.Workers == 0 {
		c.Run.Workers = DefaultWorkers
	}
	if c.Run.ProgressInterval == 0 {
		c.Run.ProgressInterval = DefaultProgressInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Dataset.Validate(); err != nil {
		return fmt.Errorf("dataset config: %w", err)
	}

	for i := range c.Preprocessing {
		if err := c.Preprocessing[i].Validate(); err != nil {
			return fmt.Errorf("preprocessing[%d] config: %w", i, err)
		}
	}

	if err := c.Run.Validate(); err != nil {
		return fmt.Errorf("run config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates dataset configuration
func (d *DatasetConfig) Validate() error {
	if d.AnnotationFile == "" {
		return &FieldError{Field: "annotation_file", Reason: "is required"}
	}

	info, err := os.Stat(d.AnnotationFile)
	if err != nil {
		return &FieldError{Field: "annotation_file", Reason: fmt.Sprintf("is not accessible: %v", err)}
	}
	if info.IsDir() {
		return &FieldError{Field: "annotation_file", Reason: "must be a file, got a directory"}
	}

	if d.Fold != nil && *d.Fold < AllFolds {
		return &FieldError{Field: "fold", Reason: fmt.Sprintf("must be -1 or a fold number, got %d", *d.Fold)}
	}

	if d.AudioDir != "" {
		info, err := os.Stat(d.AudioDir)
		if err != nil {
			return &FieldError{Field: "audio_dir", Reason: fmt.Sprintf("is not accessible: %v", err)}
		}
		if !info.IsDir() {
			return &FieldError{Field: "audio_dir", Reason: "must be a directory"}
		}
	}

	return nil
}

// FoldOrAll returns the configured fold, or AllFolds when unset
func (d *DatasetConfig) FoldOrAll() int {
	if d.Fold == nil {
		return AllFolds
	}
	return *d.Fold
}

// Validate checks only that the stage names a type. Parameter ranges are
// owned by the preprocessor that consumes them.
func (p *PreprocessorConfig) Validate() error {
	if strings.TrimSpace(p.Type) == "" {
		return &FieldError{Field: "type", Reason: "cannot be empty"}
	}
	return nil
}

// Validate validates run configuration
func (r *RunConfig) Validate() error {
	if r.Workers < 1 {
		return &FieldError{Field: "workers", Reason: fmt.Sprintf("must be at least 1, got %d", r.Workers)}
	}

	if r.ProgressInterval < 1 {
		return &FieldError{Field: "progress_interval", Reason: fmt.Sprintf("must be at least 1, got %d", r.ProgressInterval)}
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// Param is one named stage parameter; Value is nil when unset
type Param struct {
	Name  string
	Value *int
}

// Params returns every stage parameter in declaration order
func (p *PreprocessorConfig) Params() []Param {
	return []Param{
		{Name: "sample_rate", Value: p.SampleRate},
		{Name: "size", Value: p.Size},
		{Name: "max_clips", Value: p.MaxClips},
	}
}

// IntParam reads a required integer parameter of a preprocessing stage
func (p *PreprocessorConfig) IntParam(name string) (int, error) {
	for _, param := range p.Params() {
		if param.Name != name {
			continue
		}
		if param.Value == nil {
			return 0, &FieldError{Section: p.Type, Field: name, Reason: "is required"}
		}
		return *param.Value, nil
	}
	return 0, &FieldError{Section: p.Type, Field: name, Reason: "is not a stage parameter"}
}

// Only rejects any parameter set on the stage other than the named ones
func (p *PreprocessorConfig) Only(names ...string) error {
	for _, param := range p.Params() {
		if param.Value != nil && !slices.Contains(names, param.Name) {
			return &FieldError{Section: p.Type, Field: param.Name, Reason: "is not accepted by this stage"}
		}
	}
	return nil
}
