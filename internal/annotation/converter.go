package annotation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/skypro1111/audio-accuracy-checker/internal/config"
)

// DefaultProgressInterval is the record interval between progress callbacks
const DefaultProgressInterval = 100

// ErrUnknownConverter is returned when no converter is registered under a name
var ErrUnknownConverter = errors.New("unknown annotation converter")

// ClassificationAnnotation labels one audio file with a class index
type ClassificationAnnotation struct {
	Identifier string `json:"identifier"`
	Label      int64  `json:"label"`
}

// ConverterReturn bundles the result of a conversion. Meta is reserved for
// dataset-level metadata and is nil for converters that produce none.
// ContentErrors is nil when content checking was disabled.
type ConverterReturn struct {
	Annotations   []ClassificationAnnotation `json:"annotations"`
	Meta          map[string]any             `json:"meta,omitempty"`
	ContentErrors []string                   `json:"content_errors,omitempty"`
}

// ProgressFunc receives percent-complete values during conversion
type ProgressFunc func(percent float64)

// ConvertOptions controls a single conversion run
type ConvertOptions struct {
	CheckContent     bool
	Progress         ProgressFunc
	ProgressInterval int // records between progress callbacks
}

func (o ConvertOptions) interval() int {
	if o.ProgressInterval < 1 {
		return DefaultProgressInterval
	}
	return o.ProgressInterval
}

// Converter turns a dataset's native annotation format into annotations
type Converter interface {
	Convert(ctx context.Context, opts ConvertOptions) (*ConverterReturn, error)
}

// Factory builds a configured converter. It must reject invalid parameters.
type Factory func(cfg config.DatasetConfig) (Converter, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a converter available under name
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("annotation: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("annotation: Register called twice for " + name)
	}
	registry[name] = factory
}

// New resolves the converter named in cfg and configures it
func New(cfg config.DatasetConfig) (Converter, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Converter]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %q (known: %v)", ErrUnknownConverter, cfg.Converter, Names())
	}

	conv, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("configure %s converter: %w", cfg.Converter, err)
	}
	return conv, nil
}

// Names returns the registered converter names in sorted order
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
