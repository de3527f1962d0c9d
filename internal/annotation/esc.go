package annotation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/skypro1111/audio-accuracy-checker/internal/config"
)

// ESCProvider is the registry name of the ESC-50/ESC-10 converter
const ESCProvider = "esc"

// manifestFields is the column count of an ESC manifest line:
// file,fold,target,category,esc10,src_file,take
const manifestFields = 7

// manifestHeader is the first column of the header row shipped with ESC-50
const manifestHeader = "filename"

func init() {
	Register(ESCProvider, func(cfg config.DatasetConfig) (Converter, error) {
		return NewESCConverter(cfg)
	})
}

// ManifestRecord is one parsed line of an ESC manifest
type ManifestRecord struct {
	File     string
	Fold     int
	Target   int64
	Category string
	ESC10    string
	SrcFile  string
	Take     string
	Line     int // 1-based line number in the manifest
}

// ParseError reports a manifest line that does not have the ESC layout
type ParseError struct {
	File    string
	Line    int
	Content string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: malformed manifest record %q: %v", e.File, e.Line, e.Content, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ESCConverter reads ESC audio-classification manifests
type ESCConverter struct {
	annotationFile string
	audioDir       string
	fold           int
}

// NewESCConverter validates the dataset parameters and builds a converter
func NewESCConverter(cfg config.DatasetConfig) (*ESCConverter, error) {
	if cfg.AnnotationFile == "" {
		return nil, &config.FieldError{Section: ESCProvider, Field: "annotation_file", Reason: "is required"}
	}

	fold := cfg.FoldOrAll()
	if fold < config.AllFolds {
		return nil, &config.FieldError{Section: ESCProvider, Field: "fold", Reason: fmt.Sprintf("must be -1 or a fold number, got %d", fold)}
	}

	audioDir := cfg.AudioDir
	if audioDir == "" {
		audioDir = filepath.Dir(cfg.AnnotationFile)
	}

	return &ESCConverter{
		annotationFile: cfg.AnnotationFile,
		audioDir:       audioDir,
		fold:           fold,
	}, nil
}

// AudioDir returns the directory audio files are resolved against
func (c *ESCConverter) AudioDir() string {
	return c.audioDir
}

// Convert reads the manifest and emits one annotation per record in the
// configured fold. Missing audio files are reported in ContentErrors when
// opts.CheckContent is set; they never stop the conversion.
func (c *ESCConverter) Convert(ctx context.Context, opts ConvertOptions) (*ConverterReturn, error) {
	records, err := Records(c.annotationFile)
	if err != nil {
		return nil, err
	}

	result := &ConverterReturn{
		Annotations: make([]ClassificationAnnotation, 0, len(records)),
	}
	if opts.CheckContent {
		result.ContentErrors = []string{}
	}

	interval := opts.interval()
	total := len(records)

	for id, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if c.fold != config.AllFolds && record.Fold != c.fold {
			continue
		}

		if opts.CheckContent {
			path := filepath.Join(c.audioDir, record.File)
			if _, err := os.Stat(path); err != nil {
				result.ContentErrors = append(result.ContentErrors, fmt.Sprintf("%s: does not exist", path))
			}
		}

		result.Annotations = append(result.Annotations, ClassificationAnnotation{
			Identifier: record.File,
			Label:      record.Target,
		})

		if opts.Progress != nil && id%interval == 0 {
			opts.Progress(float64(id) / float64(total) * 100)
		}
	}

	return result, nil
}

// Records parses every record of an ESC manifest. Blank lines are skipped,
// as is a leading ESC-50 header row.
func Records(path string) ([]ManifestRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read annotation file %s: %w", path, err)
	}

	lines := strings.Split(string(data), "\n")
	records := make([]ManifestRecord, 0, len(lines))

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if len(records) == 0 && isHeader(line) {
			continue
		}

		record, err := parseRecord(line)
		if err != nil {
			return nil, &ParseError{File: path, Line: i + 1, Content: strings.TrimRight(raw, "\r"), Err: err}
		}
		record.Line = i + 1
		records = append(records, record)
	}

	return records, nil
}

func isHeader(line string) bool {
	first, _, _ := strings.Cut(line, ",")
	return strings.TrimSpace(first) == manifestHeader
}

func parseRecord(line string) (ManifestRecord, error) {
	fields := strings.Split(line, ",")
	if len(fields) != manifestFields {
		return ManifestRecord{}, fmt.Errorf("expected %d comma-separated fields, got %d", manifestFields, len(fields))
	}

	fold, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return ManifestRecord{}, fmt.Errorf("fold %q is not an integer", fields[1])
	}

	target, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil {
		return ManifestRecord{}, fmt.Errorf("target %q is not an integer", fields[2])
	}

	return ManifestRecord{
		File:     fields[0],
		Fold:     fold,
		Target:   target,
		Category: fields[3],
		ESC10:    fields[4],
		SrcFile:  fields[5],
		Take:     fields[6],
	}, nil
}

// LabelMap returns the category name of every target seen in records.
// When a target appears with several categories the first one wins.
func LabelMap(records []ManifestRecord) map[int64]string {
	labels := make(map[int64]string)
	for _, r := range records {
		if _, ok := labels[r.Target]; !ok {
			labels[r.Target] = r.Category
		}
	}
	return labels
}
