package preprocess

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/skypro1111/audio-accuracy-checker/internal/audio"
	"github.com/skypro1111/audio-accuracy-checker/internal/config"
)

var (
	// ErrUnknownPreprocessor is returned when no stage is registered under a type name
	ErrUnknownPreprocessor = errors.New("unknown preprocessor")

	// ErrMissingSampleRate is returned when a stage needs the original sample
	// rate and the sample's context does not carry one
	ErrMissingSampleRate = errors.New("original sample rate is unknown")

	// ErrNoAudio is returned when a sample has no buffer to process
	ErrNoAudio = errors.New("sample has no audio data")
)

// Error attributes a processing failure to a stage and a dataset item
type Error struct {
	Op         string
	Identifier string
	Err        error
}

func (e *Error) Error() string {
	if e.Identifier == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Identifier, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Preprocessor transforms a sample in place
type Preprocessor interface {
	Name() string
	Process(s *audio.Sample) error
}

// Factory builds a configured preprocessor. It must reject invalid parameters.
type Factory func(cfg config.PreprocessorConfig) (Preprocessor, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a preprocessor available under a type name
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("preprocess: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("preprocess: Register called twice for " + name)
	}
	registry[name] = factory
}

// New resolves and configures the preprocessor named by cfg.Type
func New(cfg config.PreprocessorConfig) (Preprocessor, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknownPreprocessor, cfg.Type, Names())
	}
	return factory(cfg)
}

// Names returns the registered preprocessor names in sorted order
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
