package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// pcmScale maps 16-bit PCM onto [-1, 1)
const pcmScale = 32768.0

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// EncodeWAV encodes mono PCM-16 samples into WAV format
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	numChannels := uint16(1)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(samples) * 2)
	fileSize := 36 + dataSize // header is 44 bytes, ChunkSize excludes the first 8

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     fileSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeWAV decodes WAV format data back to PCM-16 samples
func DecodeWAV(data []byte) ([]int16, int, error) {
	buf, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return samples, buf.Format.SampleRate, nil
}

// decode reads a mono 16-bit PCM stream. Chunks other than "fmt " and
// "data" (LIST, fact, ...) are skipped by the decoder.
func decode(r io.ReadSeeker) (*goaudio.IntBuffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return nil, fmt.Errorf("invalid WAV file: %w", err)
		}
		return nil, fmt.Errorf("invalid WAV file: missing RIFF/WAVE header or fmt chunk")
	}

	if dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", dec.WavAudioFormat)
	}

	if dec.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", dec.BitDepth)
	}

	if dec.NumChans != 1 {
		return nil, fmt.Errorf("unsupported channel count: %d (only mono is supported)", dec.NumChans)
	}

	if dec.SampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read audio samples: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, fmt.Errorf("invalid WAV file: missing data chunk")
	}

	if declared := dec.PCMSize / 2; len(buf.Data) < declared {
		return nil, fmt.Errorf("truncated WAV data: header declares %d samples, file holds %d", declared, len(buf.Data))
	}

	return buf, nil
}

// ToFloat converts a PCM-16 buffer to floats in [-1, 1)
func ToFloat(buf *goaudio.IntBuffer) *goaudio.FloatBuffer {
	out := buf.AsFloatBuffer()
	for i := range out.Data {
		out.Data[i] /= pcmScale
	}
	return out
}

// ToPCM16 converts floats back to PCM-16, saturating outside [-1, 1)
func ToPCM16(samples []float64) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := math.Round(s * pcmScale)
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return out
}

// LoadSample reads a mono 16-bit WAV file. The sample's context carries the
// rate declared in the file header.
func LoadSample(path, identifier string) (*Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file %s: %w", path, err)
	}
	defer f.Close()

	buf, err := decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	return NewSample(identifier, ToFloat(buf).Data, buf.Format.SampleRate), nil
}

// WriteClip encodes a float clip as a mono WAV file under dir
func WriteClip(dir, name string, samples []float64, sampleRate int) (string, error) {
	encoded, err := EncodeWAV(ToPCM16(samples), sampleRate)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create clip directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, encoded, 0644); err != nil {
		return "", fmt.Errorf("failed to write clip %s: %w", path, err)
	}

	return path, nil
}
