package audio

import (
	goaudio "github.com/go-audio/audio"
)

// Context carries facts derived by one preprocessing stage to the next.
// A zero SampleRate means the rate is unknown.
type Context struct {
	SampleRate int  `json:"sample_rate"`
	MultiInfer bool `json:"multi_infer"` // Clips must be inferred one by one
}

// Sample is one dataset item moving through the preprocessing pipeline
type Sample struct {
	Identifier string
	Data       *goaudio.FloatBuffer
	Clips      []*goaudio.FloatBuffer // set by the clipper
	Meta       *Context
}

// NewSample wraps mono samples recorded at sampleRate
func NewSample(identifier string, samples []float64, sampleRate int) *Sample {
	return &Sample{
		Identifier: identifier,
		Data: &goaudio.FloatBuffer{
			Format: &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
			Data:   samples,
		},
		Meta: &Context{SampleRate: sampleRate},
	}
}

// Channels returns the channel count of the sample's buffer, defaulting to mono
func (s *Sample) Channels() int {
	if s.Data == nil || s.Data.Format == nil || s.Data.Format.NumChannels < 1 {
		return 1
	}
	return s.Data.Format.NumChannels
}

// Frames returns the number of samples per channel
func (s *Sample) Frames() int {
	if s.Data == nil {
		return 0
	}
	return len(s.Data.Data) / s.Channels()
}

// Units returns the buffers downstream inference should consume: the clips
// when the item was split, otherwise the whole buffer.
func (s *Sample) Units() []*goaudio.FloatBuffer {
	if s.Meta != nil && s.Meta.MultiInfer {
		return s.Clips
	}
	if s.Data == nil {
		return nil
	}
	return []*goaudio.FloatBuffer{s.Data}
}
