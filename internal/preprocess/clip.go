package preprocess

import (
	"fmt"

	goaudio "github.com/go-audio/audio"

	"github.com/skypro1111/audio-accuracy-checker/internal/audio"
	"github.com/skypro1111/audio-accuracy-checker/internal/config"
)

// ClipProvider is the registry name of the clipper
const ClipProvider = "clip_audio"

func init() {
	Register(ClipProvider, func(cfg config.PreprocessorConfig) (Preprocessor, error) {
		if err := cfg.Only("size", "max_clips"); err != nil {
			return nil, err
		}
		size, err := cfg.IntParam("size")
		if err != nil {
			return nil, err
		}
		maxClips, err := cfg.IntParam("max_clips")
		if err != nil {
			return nil, err
		}
		return NewClipper(size, maxClips)
	})
}

// Clipper splits a sample into equal, non-overlapping clips taken from the
// start of the buffer. Size is counted in samples per channel.
type Clipper struct {
	size     int
	maxClips int
}

// NewClipper returns a clipper producing at most maxClips clips of size samples
func NewClipper(size, maxClips int) (*Clipper, error) {
	if size < 0 {
		return nil, &config.FieldError{Section: ClipProvider, Field: "size", Reason: fmt.Sprintf("must not be negative, got %d", size)}
	}
	if maxClips < 1 {
		return nil, &config.FieldError{Section: ClipProvider, Field: "max_clips", Reason: fmt.Sprintf("must be at least 1, got %d", maxClips)}
	}
	return &Clipper{size: size, maxClips: maxClips}, nil
}

// Name implements Preprocessor
func (c *Clipper) Name() string { return ClipProvider }

// Process stores the clips on s and marks it for per-clip inference. A
// buffer shorter than one clip yields no clips.
func (c *Clipper) Process(s *audio.Sample) error {
	if s == nil {
		return &Error{Op: ClipProvider, Err: ErrNoAudio}
	}

	var data []float64
	var format *goaudio.Format
	if s.Data != nil {
		data = s.Data.Data
		format = s.Data.Format
	}

	clips := Clip(data, s.Channels(), c.size, c.maxClips)

	s.Clips = make([]*goaudio.FloatBuffer, len(clips))
	for i, clip := range clips {
		buf := &goaudio.FloatBuffer{Data: clip}
		if format != nil {
			f := *format
			buf.Format = &f
		}
		s.Clips[i] = buf
	}

	if s.Meta == nil {
		s.Meta = &audio.Context{}
	}
	s.Meta.MultiInfer = true

	return nil
}

// Clip returns up to maxClips consecutive slices of size frames each. A
// trailing partial clip is dropped. The slices share data's backing array.
func Clip(data []float64, channels, size, maxClips int) [][]float64 {
	if channels < 1 {
		channels = 1
	}
	width := size * channels

	clips := [][]float64{}
	for i := 0; i < maxClips; i++ {
		end := (i + 1) * width
		if end > len(data) {
			break
		}
		clips = append(clips, data[i*width:end:end])
	}
	return clips
}
