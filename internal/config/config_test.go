package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeManifest creates an empty manifest in dir and returns its path
func writeManifest(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "esc50.csv")
	if err := os.WriteFile(path, []byte("dog.wav,1,0,dog,True,orig.wav,A\n"), 0644); err != nil {
		t.Fatalf("Failed to create manifest: %v", err)
	}
	return path
}

func intPtr(v int) *int { return &v }

func TestConfigValidation(t *testing.T) {
	dir := t.TempDir()
	manifest := writeManifest(t, dir)

	validDataset := DatasetConfig{
		Converter:      "esc",
		AnnotationFile: manifest,
		Fold:           intPtr(1),
		AudioDir:       dir,
	}
	validRun := RunConfig{Workers: 2, ProgressInterval: 100}
	validLogging := LoggingConfig{Level: "info", Format: "json", Output: "stdout"}

	tests := []struct {
		name        string
		config      Config
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid configuration",
			config: Config{
				Dataset: validDataset,
				Preprocessing: []PreprocessorConfig{
					{Type: "audio_resample", SampleRate: intPtr(16000)},
					{Type: "clip_audio", Size: intPtr(16000), MaxClips: intPtr(5)},
				},
				Run:     validRun,
				Logging: validLogging,
			},
			expectError: false,
		},
		{
			name: "missing annotation file",
			config: Config{
				Dataset: DatasetConfig{Converter: "esc"},
				Run:     validRun,
				Logging: validLogging,
			},
			expectError: true,
			errorMsg:    "annotation_file is required",
		},
		{
			name: "nonexistent annotation file",
			config: Config{
				Dataset: DatasetConfig{AnnotationFile: filepath.Join(dir, "missing.csv")},
				Run:     validRun,
				Logging: validLogging,
			},
			expectError: true,
			errorMsg:    "annotation_file is not accessible",
		},
		{
			name: "fold below -1",
			config: Config{
				Dataset: DatasetConfig{AnnotationFile: manifest, Fold: intPtr(-3)},
				Run:     validRun,
				Logging: validLogging,
			},
			expectError: true,
			errorMsg:    "fold must be -1",
		},
		{
			name: "audio dir is a file",
			config: Config{
				Dataset: DatasetConfig{AnnotationFile: manifest, AudioDir: manifest},
				Run:     validRun,
				Logging: validLogging,
			},
			expectError: true,
			errorMsg:    "audio_dir must be a directory",
		},
		{
			name: "preprocessor without type",
			config: Config{
				Dataset:       validDataset,
				Preprocessing: []PreprocessorConfig{{SampleRate: intPtr(8000)}},
				Run:           validRun,
				Logging:       validLogging,
			},
			expectError: true,
			errorMsg:    "preprocessing[0] config: type cannot be empty",
		},
		{
			name: "zero workers",
			config: Config{
				Dataset: validDataset,
				Run:     RunConfig{Workers: 0, ProgressInterval: 100},
				Logging: validLogging,
			},
			expectError: true,
			errorMsg:    "workers must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()
	writeManifest(t, tempDir)

	tests := []struct {
		name        string
		fileName    string
		content     string
		expectError bool
		errorMsg    string
	}{
		{
			name:     "valid yaml config file",
			fileName: "config.yaml",
			content: `
dataset:
  converter: esc
  annotation_file: esc50.csv
  fold: 1
preprocessing:
  - type: audio_resample
    sample_rate: 16000
  - type: clip_audio
    size: 16000
    max_clips: 5
run:
  workers: 4
logging:
  level: debug
  format: json
`,
			expectError: false,
		},
		{
			name:     "valid toml config file",
			fileName: "config.toml",
			content: `
[dataset]
annotation_file = "esc50.csv"

[[preprocessing]]
type = "audio_resample"
sample_rate = 8000

[logging]
level = "warn"
`,
			expectError: false,
		},
		{
			name:     "invalid YAML syntax",
			fileName: "broken.yaml",
			content: `
run:
  workers: invalid_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name:     "missing required fields",
			fileName: "empty.yaml",
			content: `
run:
  workers: 2
`,
			expectError: true,
			errorMsg:    "annotation_file is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, tt.fileName)
			err := os.WriteFile(configPath, []byte(tt.content), 0644)
			if err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if config == nil {
					t.Errorf("Expected config to be loaded but got nil")
				}
			}
		})
	}
}

func TestConfigLoadDefaults(t *testing.T) {
	tempDir := t.TempDir()
	manifest := writeManifest(t, tempDir)

	configPath := filepath.Join(tempDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("dataset:\n  annotation_file: esc50.csv\n"), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Dataset.AnnotationFile != manifest {
		t.Errorf("Expected annotation file %s, got %s", manifest, cfg.Dataset.AnnotationFile)
	}
	if cfg.Dataset.Converter != DefaultConverter {
		t.Errorf("Expected converter %q, got %q", DefaultConverter, cfg.Dataset.Converter)
	}
	if cfg.Dataset.FoldOrAll() != AllFolds {
		t.Errorf("Expected fold %d, got %d", AllFolds, cfg.Dataset.FoldOrAll())
	}
	if cfg.Dataset.AudioDir != tempDir {
		t.Errorf("Expected audio dir to default to %s, got %s", tempDir, cfg.Dataset.AudioDir)
	}
	if cfg.Run.ProgressInterval != DefaultProgressInterval {
		t.Errorf("Expected progress interval %d, got %d", DefaultProgressInterval, cfg.Run.ProgressInterval)
	}
	if cfg.Run.Workers != DefaultWorkers {
		t.Errorf("Expected %d worker, got %d", DefaultWorkers, cfg.Run.Workers)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Fatalf("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestFieldErrorIsTyped(t *testing.T) {
	cfg := Config{
		Dataset: DatasetConfig{},
		Run:     RunConfig{Workers: 1, ProgressInterval: 1},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}

	err := cfg.Validate()
	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("Expected *FieldError in chain, got %T: %v", err, err)
	}
	if fieldErr.Field != "annotation_file" {
		t.Errorf("Expected field annotation_file, got %s", fieldErr.Field)
	}
}

func TestIntParam(t *testing.T) {
	p := PreprocessorConfig{Type: "audio_resample"}

	if _, err := p.IntParam("sample_rate"); err == nil {
		t.Errorf("Expected error for missing parameter")
	} else if !strings.Contains(err.Error(), "audio_resample: sample_rate is required") {
		t.Errorf("Unexpected error: %v", err)
	}

	p.SampleRate = intPtr(22050)
	v, err := p.IntParam("sample_rate")
	if err != nil || v != 22050 {
		t.Errorf("Expected 22050, got %d (err=%v)", v, err)
	}

	if _, err := p.IntParam("rate"); err == nil {
		t.Errorf("Expected error for a name that is not a parameter")
	}
}

func TestOnlyRejectsForeignParameters(t *testing.T) {
	p := PreprocessorConfig{Type: "clip_audio", Size: intPtr(400), MaxClips: intPtr(5)}
	if err := p.Only("size", "max_clips"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	p.SampleRate = intPtr(16000)
	err := p.Only("size", "max_clips")
	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("Expected *FieldError, got %T: %v", err, err)
	}
	if fieldErr.Section != "clip_audio" || fieldErr.Field != "sample_rate" {
		t.Errorf("Unexpected field error: %v", fieldErr)
	}
}

func TestConfigLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir)

	files := map[string]string{
		"config.yaml": `dataset:
  annotation_file: esc50.csv
preprocessing:
  - type: audio_resample
    sample_rte: 16000
`,
		"config.toml": `[dataset]
annotation_file = "esc50.csv"

[[preprocessing]]
type = "audio_resample"
sample_rte = 16000
`,
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatalf("Failed to write config: %v", err)
			}

			_, err := Load(path)
			if err == nil {
				t.Fatalf("Expected unknown key to be rejected")
			}
			if !strings.Contains(err.Error(), "sample_rte") {
				t.Errorf("Expected error to name the key, got: %v", err)
			}
		})
	}
}

func TestHTTPConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config HTTPConfig
		valid  bool
	}{
		{name: "disabled", config: HTTPConfig{}, valid: true},
		{name: "valid enabled", config: HTTPConfig{Enabled: true, Port: 9090, Address: "127.0.0.1"}, valid: true},
		{name: "port too high", config: HTTPConfig{Enabled: true, Port: 70000, Address: "127.0.0.1"}, valid: false},
		{name: "empty address", config: HTTPConfig{Enabled: true, Port: 9090}, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
		valid  bool
	}{
		{
			name:   "valid json to stdout",
			config: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
			valid:  true,
		},
		{
			name:   "valid text to stderr",
			config: LoggingConfig{Level: "debug", Format: "text", Output: "stderr"},
			valid:  true,
		},
		{
			name:   "invalid log level",
			config: LoggingConfig{Level: "trace", Format: "json", Output: "stdout"},
			valid:  false,
		},
		{
			name:   "invalid format",
			config: LoggingConfig{Level: "info", Format: "xml", Output: "stdout"},
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}
