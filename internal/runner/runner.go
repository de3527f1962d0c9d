package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/audio-accuracy-checker/internal/annotation"
	"github.com/skypro1111/audio-accuracy-checker/internal/audio"
	"github.com/skypro1111/audio-accuracy-checker/internal/config"
	"github.com/skypro1111/audio-accuracy-checker/internal/metrics"
	"github.com/skypro1111/audio-accuracy-checker/internal/preprocess"
)

// Run phases reported by Stats
const (
	PhaseIdle       = "idle"
	PhaseConverting = "converting"
	PhasePreprocess = "preprocessing"
	PhaseDone       = "done"
	PhaseFailed     = "failed"
)

// Stats is a point-in-time view of a run
type Stats struct {
	RunID         string    `json:"run_id"`
	Phase         string    `json:"phase"`
	StartedAt     time.Time `json:"started_at"`
	Progress      float64   `json:"conversion_progress_percent"`
	Annotations   int       `json:"annotations"`
	ContentErrors int       `json:"content_errors"`
	Processed     int       `json:"samples_processed"`
	Failed        int       `json:"samples_failed"`
	Units         int       `json:"inference_units"`
}

// ItemResult is the preprocessing outcome of one annotation
type ItemResult struct {
	Identifier string
	Label      int64
	SampleRate int
	Frames     int
	Units      int
	Err        error
}

// Report summarises a preprocessing pass
type Report struct {
	Items  []ItemResult
	Failed int
	Units  int
}

// Runner drives a configured converter and preprocessing pipeline
type Runner struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	converter annotation.Converter
	pipeline  *preprocess.Pipeline

	stats  Stats
	labels map[int64]string
	mu     sync.RWMutex
}

// New resolves the converter and every preprocessing stage. All parameter
// errors surface here, before any data is read.
func New(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*Runner, error) {
	if m == nil {
		m = metrics.NewMetrics()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	runID := uuid.NewString()
	logger = logger.With(slog.String("run_id", runID))

	conv, err := annotation.New(cfg.Dataset)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		converter: conv,
		stats: Stats{
			RunID:     runID,
			Phase:     PhaseIdle,
			StartedAt: time.Now(),
		},
	}

	opts := []preprocess.Option{
		preprocess.WithRecorder(m),
		preprocess.WithLogger(logger),
	}
	// Dumping runs as the last stage so a write failure counts against the
	// sample like any other stage error.
	if cfg.Run.DumpDir != "" {
		opts = append(opts, preprocess.WithStage(dumpStage{r}))
	}

	r.pipeline, err = preprocess.NewPipeline(cfg.Preprocessing, opts...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RunID returns the identifier attached to this run's logs and stats
func (r *Runner) RunID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats.RunID
}

// Stages returns the configured preprocessing stage names
func (r *Runner) Stages() []string {
	return r.pipeline.Stages()
}

// Labels returns the category name of every target seen by the last
// successful Convert, or nil when none ran.
func (r *Runner) Labels() map[int64]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.labels
}

// Stats returns current run statistics
func (r *Runner) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

func (r *Runner) update(fn func(*Stats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.stats)
}

// Convert reads the dataset annotations. progress, when set, is called
// alongside the runner's own progress tracking.
func (r *Runner) Convert(ctx context.Context, progress annotation.ProgressFunc) (*annotation.ConverterReturn, error) {
	r.update(func(s *Stats) { s.Phase = PhaseConverting })

	opts := annotation.ConvertOptions{
		CheckContent:     r.cfg.Dataset.CheckContent,
		ProgressInterval: r.cfg.Run.ProgressInterval,
		Progress: func(percent float64) {
			r.update(func(s *Stats) { s.Progress = percent })
			r.metrics.SetConversionProgress(percent)
			if progress != nil {
				progress(percent)
			}
		},
	}

	start := time.Now()
	result, err := r.converter.Convert(ctx, opts)
	if err != nil {
		var parseErr *annotation.ParseError
		if errors.As(err, &parseErr) {
			r.metrics.RecordParseError()
		}
		r.update(func(s *Stats) { s.Phase = PhaseFailed })
		r.logger.Error("Annotation conversion failed", slog.String("error", err.Error()))
		return nil, err
	}

	// The manifest was readable a moment ago; a failure here only costs the
	// label names and the record count.
	records := len(result.Annotations)
	if rs, err := annotation.Records(r.cfg.Dataset.AnnotationFile); err == nil {
		records = len(rs)
		r.mu.Lock()
		r.labels = annotation.LabelMap(rs)
		r.mu.Unlock()
	}
	r.metrics.RecordConversion(records, len(result.Annotations), len(result.ContentErrors))

	r.update(func(s *Stats) {
		s.Progress = 100
		s.Annotations = len(result.Annotations)
		s.ContentErrors = len(result.ContentErrors)
	})

	r.logger.Info("Annotations converted",
		slog.String("converter", r.cfg.Dataset.Converter),
		slog.Int("fold", r.cfg.Dataset.FoldOrAll()),
		slog.Int("annotations", len(result.Annotations)),
		slog.Bool("content_checked", result.ContentErrors != nil),
		slog.Int("content_errors", len(result.ContentErrors)),
		slog.Duration("elapsed", time.Since(start)),
	)

	for _, msg := range result.ContentErrors {
		r.logger.Warn("Content check failed", slog.String("detail", msg))
	}

	return result, nil
}

// Preprocess loads every annotated audio file and runs it through the
// pipeline on the configured number of workers. Per-item failures are
// reported in the result; only cancellation aborts the pass. onItem, when
// set, is called from the workers as each item finishes.
func (r *Runner) Preprocess(ctx context.Context, annotations []annotation.ClassificationAnnotation, onItem func(ItemResult)) (*Report, error) {
	r.update(func(s *Stats) { s.Phase = PhasePreprocess })

	report := &Report{Items: make([]ItemResult, len(annotations))}
	var mu sync.Mutex

	load := func(i int) (*audio.Sample, error) {
		a := annotations[i]
		s, err := audio.LoadSample(filepath.Join(r.cfg.Dataset.AudioDir, a.Identifier), a.Identifier)
		if err != nil {
			r.metrics.RecordLoadFailure()
		}
		return s, err
	}

	done := func(i int, s *audio.Sample, err error) {
		item := ItemResult{Identifier: annotations[i].Identifier, Label: annotations[i].Label, Err: err}
		if err == nil {
			if s.Meta != nil {
				item.SampleRate = s.Meta.SampleRate
			}
			item.Frames = s.Frames()
			item.Units = len(s.Units())
		}

		if item.Err != nil {
			r.logger.Warn("Sample failed",
				slog.String("identifier", item.Identifier),
				slog.String("error", item.Err.Error()),
			)
		}

		mu.Lock()
		report.Items[i] = item
		if item.Err != nil {
			report.Failed++
		} else {
			report.Units += item.Units
		}
		mu.Unlock()

		r.update(func(st *Stats) {
			if item.Err != nil {
				st.Failed++
			} else {
				st.Processed++
				st.Units += item.Units
			}
		})

		if onItem != nil {
			onItem(item)
		}
	}

	start := time.Now()
	err := r.pipeline.ProcessAll(ctx, len(annotations), r.cfg.Run.Workers, load, done)
	if err != nil {
		r.update(func(s *Stats) { s.Phase = PhaseFailed })
		return report, err
	}

	r.update(func(s *Stats) { s.Phase = PhaseDone })
	r.logger.Info("Preprocessing finished",
		slog.Int("samples", len(annotations)),
		slog.Int("failed", report.Failed),
		slog.Int("inference_units", report.Units),
		slog.Int("workers", r.cfg.Run.Workers),
		slog.Duration("elapsed", time.Since(start)),
	)

	return report, nil
}

// DumpStage is the stage name under which unit dumps are timed and counted
const DumpStage = "dump_clips"

type dumpStage struct {
	r *Runner
}

func (d dumpStage) Name() string { return DumpStage }

func (d dumpStage) Process(s *audio.Sample) error {
	if err := d.r.dump(s); err != nil {
		return &preprocess.Error{Op: DumpStage, Identifier: s.Identifier, Err: err}
	}
	return nil
}

// dump writes every inference unit of s as WAV under the configured dump dir
func (r *Runner) dump(s *audio.Sample) error {
	if r.cfg.Run.DumpDir == "" || s.Meta == nil {
		return nil
	}

	base := strings.TrimSuffix(filepath.Base(s.Identifier), filepath.Ext(s.Identifier))
	for i, unit := range s.Units() {
		if len(unit.Data) == 0 {
			continue
		}
		name := fmt.Sprintf("%s_%03d.wav", base, i)
		if _, err := audio.WriteClip(r.cfg.Run.DumpDir, name, unit.Data, s.Meta.SampleRate); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// Metrics returns the metrics the run reports to
func (r *Runner) Metrics() *metrics.Metrics {
	return r.metrics
}
