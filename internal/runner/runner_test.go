package runner

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/audio-accuracy-checker/internal/annotation"
	"github.com/skypro1111/audio-accuracy-checker/internal/audio"
	"github.com/skypro1111/audio-accuracy-checker/internal/config"
	"github.com/skypro1111/audio-accuracy-checker/internal/metrics"
	"github.com/skypro1111/audio-accuracy-checker/internal/preprocess"
)

func intPtr(v int) *int { return &v }

func writeWAV(t *testing.T, path string, frames, rate int) {
	t.Helper()
	pcm := make([]int16, frames)
	for i := range pcm {
		pcm[i] = int16(i % 1000)
	}
	data, err := audio.EncodeWAV(pcm, rate)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// newDataset writes a small ESC manifest with matching WAV files. The record
// for 1-000-C-3.wav has no audio on disk.
func newDataset(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()

	manifest := strings.Join([]string{
		"filename,fold,target,category,esc10,src_file,take",
		"1-100032-A-0.wav,1,0,dog,True,100032,A",
		"1-100038-A-14.wav,1,14,chirping_birds,False,100038,A",
		"2-100648-A-43.wav,2,43,chainsaw,False,100648,A",
		"1-000-C-3.wav,1,3,cow,False,000,C",
	}, "\n")
	manifestPath := filepath.Join(dir, "esc50.csv")
	require.NoError(t, os.WriteFile(manifestPath, []byte(manifest), 0o644))

	writeWAV(t, filepath.Join(dir, "1-100032-A-0.wav"), 1000, 44100)
	writeWAV(t, filepath.Join(dir, "1-100038-A-14.wav"), 1000, 44100)
	writeWAV(t, filepath.Join(dir, "2-100648-A-43.wav"), 1000, 44100)

	return config.Config{
		Dataset: config.DatasetConfig{
			Converter:      annotation.ESCProvider,
			AnnotationFile: manifestPath,
			Fold:           intPtr(1),
			AudioDir:       dir,
			CheckContent:   true,
		},
		Preprocessing: []config.PreprocessorConfig{
			{Type: preprocess.ResampleProvider, SampleRate: intPtr(16000)},
			{Type: preprocess.ClipProvider, Size: intPtr(100), MaxClips: intPtr(3)},
		},
		Run: config.RunConfig{
			Workers:          2,
			ProgressInterval: 1,
		},
	}
}

func newRunner(t *testing.T, cfg config.Config) (*Runner, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewMetrics()
	r, err := New(&cfg, slog.New(slog.DiscardHandler), m)
	require.NoError(t, err)
	return r, m
}

func TestNewRejectsBadConfiguration(t *testing.T) {
	cfg := newDataset(t)
	cfg.Preprocessing = append(cfg.Preprocessing, config.PreprocessorConfig{Type: "audio_normalize"})

	_, err := New(&cfg, slog.New(slog.DiscardHandler), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, preprocess.ErrUnknownPreprocessor), err.Error())

	cfg = newDataset(t)
	cfg.Dataset.Converter = "imagenet"
	_, err = New(&cfg, slog.New(slog.DiscardHandler), nil)
	assert.True(t, errors.Is(err, annotation.ErrUnknownConverter), err.Error())
}

func TestNewWithoutLogger(t *testing.T) {
	cfg := newDataset(t)
	r, err := New(&cfg, nil, nil)
	require.NoError(t, err)

	result, err := r.Convert(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, result.Annotations, 3)
}

func TestConvertAndPreprocess(t *testing.T) {
	cfg := newDataset(t)
	r, m := newRunner(t, cfg)

	assert.NotEmpty(t, r.RunID())
	assert.Equal(t, []string{preprocess.ResampleProvider, preprocess.ClipProvider}, r.Stages())
	assert.Equal(t, PhaseIdle, r.Stats().Phase)

	var progress []float64
	result, err := r.Convert(context.Background(), func(p float64) { progress = append(progress, p) })
	require.NoError(t, err)

	require.Len(t, result.Annotations, 3)
	assert.Equal(t, "1-100032-A-0.wav", result.Annotations[0].Identifier)
	assert.Equal(t, int64(14), result.Annotations[1].Label)
	require.Len(t, result.ContentErrors, 1)
	assert.Contains(t, result.ContentErrors[0], "1-000-C-3.wav")
	assert.Equal(t, []float64{0, 25, 75}, progress)

	assert.Equal(t, "chainsaw", r.Labels()[43])
	assert.Equal(t, 4.0, testutil.ToFloat64(m.RecordsConverted))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.AnnotationsEmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContentErrors))

	var finished atomic.Int32
	report, err := r.Preprocess(context.Background(), result.Annotations, func(ItemResult) { finished.Add(1) })
	require.NoError(t, err)
	require.Len(t, report.Items, 3)

	// 1000 frames at 44100 Hz resample to 363 frames at 16000 Hz.
	for _, item := range report.Items[:2] {
		require.NoError(t, item.Err)
		assert.Equal(t, 16000, item.SampleRate)
		assert.Equal(t, 363, item.Frames)
		assert.Equal(t, 3, item.Units)
	}
	assert.True(t, errors.Is(report.Items[2].Err, fs.ErrNotExist))
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 6, report.Units)
	assert.Equal(t, int32(3), finished.Load())

	stats := r.Stats()
	assert.Equal(t, PhaseDone, stats.Phase)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 6, stats.Units)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SamplesProcessed.WithLabelValues("load_failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SamplesProcessed.WithLabelValues("ok")))
}

func TestConvertMalformedManifest(t *testing.T) {
	cfg := newDataset(t)
	require.NoError(t, os.WriteFile(cfg.Dataset.AnnotationFile, []byte("1-100032-A-0.wav,one,0,dog,True,100032,A\n"), 0o644))
	r, m := newRunner(t, cfg)

	_, err := r.Convert(context.Background(), nil)
	require.Error(t, err)

	var parseErr *annotation.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, 1, parseErr.Line)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ParseErrors))
	assert.Equal(t, PhaseFailed, r.Stats().Phase)
}

func TestPreprocessDumpsUnits(t *testing.T) {
	cfg := newDataset(t)
	cfg.Run.DumpDir = filepath.Join(t.TempDir(), "clips")
	r, _ := newRunner(t, cfg)

	anns := []annotation.ClassificationAnnotation{{Identifier: "1-100032-A-0.wav", Label: 0}}
	report, err := r.Preprocess(context.Background(), anns, nil)
	require.NoError(t, err)
	require.NoError(t, report.Items[0].Err)

	for _, name := range []string{"1-100032-A-0_000.wav", "1-100032-A-0_001.wav", "1-100032-A-0_002.wav"} {
		data, err := os.ReadFile(filepath.Join(cfg.Run.DumpDir, name))
		require.NoError(t, err, name)

		pcm, rate, err := audio.DecodeWAV(data)
		require.NoError(t, err)
		assert.Equal(t, 16000, rate)
		assert.Len(t, pcm, 100)
	}
}

func TestPreprocessDumpFailureFailsSample(t *testing.T) {
	cfg := newDataset(t)
	blocker := filepath.Join(t.TempDir(), "clips")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	cfg.Run.DumpDir = blocker
	r, m := newRunner(t, cfg)

	assert.Equal(t, []string{preprocess.ResampleProvider, preprocess.ClipProvider, DumpStage}, r.Stages())

	anns := []annotation.ClassificationAnnotation{{Identifier: "1-100032-A-0.wav", Label: 0}}
	report, err := r.Preprocess(context.Background(), anns, nil)
	require.NoError(t, err)

	require.Error(t, report.Items[0].Err)
	assert.Contains(t, report.Items[0].Err.Error(), DumpStage)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, r.Stats().Failed)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SamplesProcessed.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SamplesProcessed.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageErrors.WithLabelValues(DumpStage, "other")))
}

func TestPreprocessWithoutClipping(t *testing.T) {
	cfg := newDataset(t)
	cfg.Preprocessing = cfg.Preprocessing[:1]
	r, _ := newRunner(t, cfg)

	anns := []annotation.ClassificationAnnotation{{Identifier: "2-100648-A-43.wav", Label: 43}}
	report, err := r.Preprocess(context.Background(), anns, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Items[0].Units)
	assert.Equal(t, 363, report.Items[0].Frames)
}

func TestPreprocessCancelled(t *testing.T) {
	cfg := newDataset(t)
	r, _ := newRunner(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	anns := []annotation.ClassificationAnnotation{{Identifier: "1-100032-A-0.wav"}}
	_, err := r.Preprocess(ctx, anns, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, PhaseFailed, r.Stats().Phase)
}
