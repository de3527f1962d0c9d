package preprocess

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/audio-accuracy-checker/internal/audio"
	"github.com/skypro1111/audio-accuracy-checker/internal/config"
)

// Recorder receives per-stage timings and results
type Recorder interface {
	RecordStage(stage string, durationSeconds float64, err error)
	RecordSample(clips int, err error)
}

type noopRecorder struct{}

func (noopRecorder) RecordStage(string, float64, error) {}
func (noopRecorder) RecordSample(int, error)            {}

// Pipeline runs an ordered list of preprocessors over samples
type Pipeline struct {
	stages   []Preprocessor
	recorder Recorder
	logger   *slog.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithRecorder reports stage timings to r
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithLogger sets the logger used for per-sample debug output
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithStage appends a stage after the configured ones
func WithStage(stage Preprocessor) Option {
	return func(p *Pipeline) {
		if stage != nil {
			p.stages = append(p.stages, stage)
		}
	}
}

// NewPipeline resolves every configured stage. Parameter errors surface here,
// before any sample is touched.
func NewPipeline(cfgs []config.PreprocessorConfig, opts ...Option) (*Pipeline, error) {
	stages := make([]Preprocessor, 0, len(cfgs))
	for i, cfg := range cfgs {
		stage, err := New(cfg)
		if err != nil {
			return nil, fmt.Errorf("preprocessing[%d]: %w", i, err)
		}
		stages = append(stages, stage)
	}
	return FromStages(stages, opts...), nil
}

// FromStages builds a pipeline from already configured stages
func FromStages(stages []Preprocessor, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages:   stages,
		recorder: noopRecorder{},
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stages returns the stage names in execution order
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Process runs every stage over s in order and stops at the first failure
func (p *Pipeline) Process(s *audio.Sample) error {
	if s == nil {
		return &Error{Op: "pipeline", Err: ErrNoAudio}
	}

	var err error
	for _, stage := range p.stages {
		start := time.Now()
		err = stage.Process(s)
		p.recorder.RecordStage(stage.Name(), time.Since(start).Seconds(), err)
		if err != nil {
			break
		}
	}

	clips := 0
	if err == nil && s.Meta != nil && s.Meta.MultiInfer {
		clips = len(s.Clips)
	}
	p.recorder.RecordSample(clips, err)

	if err != nil {
		return err
	}

	if s.Meta != nil {
		p.logger.Debug("Sample preprocessed",
			slog.String("identifier", s.Identifier),
			slog.Int("frames", s.Frames()),
			slog.Int("sample_rate", s.Meta.SampleRate),
			slog.Int("units", len(s.Units())),
		)
	}
	return nil
}

// LoadFunc produces the sample for job i
type LoadFunc func(i int) (*audio.Sample, error)

// DoneFunc receives the outcome of job i. It is called from worker
// goroutines and must be safe for concurrent use.
type DoneFunc func(i int, s *audio.Sample, err error)

// ProcessAll loads and processes jobs [0, n) on a pool of workers. Each
// sample is owned by exactly one worker. It returns ctx.Err() when the
// context is cancelled before all jobs were dispatched.
func (p *Pipeline) ProcessAll(ctx context.Context, n, workers int, load LoadFunc, done DoneFunc) error {
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				s, err := load(i)
				if err == nil {
					err = p.Process(s)
				}
				done(i, s, err)
			}
		}()
	}

	var err error
dispatch:
	for i := 0; i < n; i++ {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	return err
}
