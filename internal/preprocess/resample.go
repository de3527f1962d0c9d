package preprocess

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"

	"github.com/skypro1111/audio-accuracy-checker/internal/audio"
	"github.com/skypro1111/audio-accuracy-checker/internal/config"
)

// ResampleProvider is the registry name of the resampler
const ResampleProvider = "audio_resample"

func init() {
	Register(ResampleProvider, func(cfg config.PreprocessorConfig) (Preprocessor, error) {
		if err := cfg.Only("sample_rate"); err != nil {
			return nil, err
		}
		rate, err := cfg.IntParam("sample_rate")
		if err != nil {
			return nil, err
		}
		return NewResampler(rate)
	})
}

// Resampler converts samples to a fixed target rate by linear interpolation
type Resampler struct {
	targetRate int
}

// NewResampler returns a resampler targeting sampleRate Hz
func NewResampler(sampleRate int) (*Resampler, error) {
	if sampleRate < 1 {
		return nil, &config.FieldError{Section: ResampleProvider, Field: "sample_rate", Reason: fmt.Sprintf("must be at least 1, got %d", sampleRate)}
	}
	return &Resampler{targetRate: sampleRate}, nil
}

// Name implements Preprocessor
func (r *Resampler) Name() string { return ResampleProvider }

// TargetRate returns the configured output rate in Hz
func (r *Resampler) TargetRate() int { return r.targetRate }

// Process resamples s from the rate recorded in its context to the target
// rate and records the new rate. Samples already at the target are left
// untouched. Clips made by an earlier stage are resampled too, so every
// inference unit matches the recorded rate.
func (r *Resampler) Process(s *audio.Sample) error {
	if s == nil || s.Meta == nil || s.Meta.SampleRate <= 0 {
		id := ""
		if s != nil {
			id = s.Identifier
		}
		return &Error{Op: ResampleProvider, Identifier: id, Err: ErrMissingSampleRate}
	}

	if s.Meta.SampleRate == r.targetRate {
		return nil
	}

	if s.Data == nil {
		return &Error{Op: ResampleProvider, Identifier: s.Identifier, Err: ErrNoAudio}
	}

	from, channels := s.Meta.SampleRate, s.Channels()
	out, err := Resample(s.Data.Data, channels, from, r.targetRate)
	if err != nil {
		return &Error{Op: ResampleProvider, Identifier: s.Identifier, Err: err}
	}

	var clips [][]float64
	if s.Meta.MultiInfer {
		clips = make([][]float64, len(s.Clips))
		for i, clip := range s.Clips {
			if clips[i], err = Resample(clip.Data, channels, from, r.targetRate); err != nil {
				return &Error{Op: ResampleProvider, Identifier: s.Identifier, Err: fmt.Errorf("clip %d: %w", i, err)}
			}
		}
	}

	s.Data.Data = out
	if s.Data.Format != nil {
		s.Data.Format.SampleRate = r.targetRate
	}
	for i, clip := range clips {
		s.Clips[i].Data = clip
		if s.Clips[i].Format != nil {
			s.Clips[i].Format.SampleRate = r.targetRate
		}
	}
	s.Meta.SampleRate = r.targetRate

	return nil
}

// Resample maps interleaved data recorded at from Hz onto a grid at to Hz.
// Both grids span [0, frames/from] so the first and last frames are kept
// exactly; the output holds round(duration*to) frames.
func Resample(data []float64, channels, from, to int) ([]float64, error) {
	if from < 1 || to < 1 {
		return nil, fmt.Errorf("sample rates must be positive, got %d -> %d", from, to)
	}
	if channels < 1 {
		return nil, fmt.Errorf("channel count must be positive, got %d", channels)
	}
	if len(data)%channels != 0 {
		return nil, fmt.Errorf("buffer of %d values is not a whole number of %d-channel frames", len(data), channels)
	}
	if from == to {
		return data, nil
	}

	frames := len(data) / channels
	duration := float64(frames) / float64(from)
	outFrames := int(math.Round(duration * float64(to)))

	out := make([]float64, outFrames*channels)
	if frames == 0 || outFrames == 0 {
		return out, nil
	}

	oldGrid := timeGrid(duration, frames)
	newGrid := timeGrid(duration, outFrames)
	channel := make([]float64, frames)

	for c := 0; c < channels; c++ {
		for i := range channel {
			channel[i] = data[i*channels+c]
		}

		if frames == 1 {
			for i := 0; i < outFrames; i++ {
				out[i*channels+c] = channel[0]
			}
			continue
		}

		var pl interp.PiecewiseLinear
		if err := pl.Fit(oldGrid, channel); err != nil {
			return nil, fmt.Errorf("fit channel %d: %w", c, err)
		}
		for i, x := range newGrid {
			out[i*channels+c] = pl.Predict(x)
		}
	}

	return out, nil
}

// timeGrid returns n evenly spaced instants over [0, duration]
func timeGrid(duration float64, n int) []float64 {
	if n == 1 {
		return []float64{0}
	}
	grid := floats.Span(make([]float64, n), 0, duration)
	grid[n-1] = duration
	return grid
}
