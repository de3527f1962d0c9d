package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/skypro1111/audio-accuracy-checker/internal/config"
	"github.com/skypro1111/audio-accuracy-checker/internal/metrics"
	"github.com/skypro1111/audio-accuracy-checker/internal/runner"
	"github.com/skypro1111/audio-accuracy-checker/internal/server"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

// runOverrides are command line values that take precedence over the file
type runOverrides struct {
	fold         int
	checkContent bool
	workers      int
	dumpDir      string
}

func (o *runOverrides) bind(cmd *cobra.Command, preprocess bool) {
	cmd.Flags().IntVar(&o.fold, "fold", config.AllFolds, "Only convert records of this fold (-1 for all folds)")
	cmd.Flags().BoolVar(&o.checkContent, "check-content", false, "Report annotated audio files missing from disk")
	if preprocess {
		cmd.Flags().IntVarP(&o.workers, "workers", "w", config.DefaultWorkers, "Number of preprocessing workers")
		cmd.Flags().StringVar(&o.dumpDir, "dump-dir", "", "Write every inference unit as WAV under this directory")
	}
}

func (o *runOverrides) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("fold") {
		fold := o.fold
		cfg.Dataset.Fold = &fold
	}
	if flags.Changed("check-content") {
		cfg.Dataset.CheckContent = o.checkContent
	}
	if flags.Changed("workers") {
		cfg.Run.Workers = o.workers
	}
	if flags.Changed("dump-dir") {
		cfg.Run.DumpDir = o.dumpDir
	}
	return cfg.Validate()
}

// session is a configured run with its logger, metrics and status server
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	runner  *runner.Runner
	status  *server.HTTPServer
}

func (c *commandContext) openSession(cmd *cobra.Command, overrides *runOverrides) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if overrides != nil {
		if err := overrides.apply(cmd, cfg); err != nil {
			return nil, err
		}
	}

	logger := initLogger(cfg.Logging)
	m := metrics.NewMetrics()

	r, err := runner.New(cfg, logger, m)
	if err != nil {
		return nil, err
	}
	logger = logger.With(slog.String("run_id", r.RunID()))

	s := &session{cfg: cfg, logger: logger, metrics: m, runner: r}

	if cfg.HTTP.Enabled {
		s.status = server.NewHTTPServer(cfg.HTTP, logger, cfg, r, m)
		if err := s.status.Start(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *session) close() {
	if s.status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.status.Stop(ctx); err != nil {
			s.logger.Error("Error stopping status server", slog.String("error", err.Error()))
		}
	}

	if path := s.cfg.Metrics.Textfile; path != "" {
		if err := s.metrics.WriteTextfile(path); err != nil {
			s.logger.Error("Failed to write metrics textfile",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}
}
