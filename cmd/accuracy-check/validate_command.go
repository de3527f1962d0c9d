package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skypro1111/audio-accuracy-checker/internal/annotation"
	"github.com/skypro1111/audio-accuracy-checker/internal/config"
	"github.com/skypro1111/audio-accuracy-checker/internal/preprocess"
	"github.com/skypro1111/audio-accuracy-checker/internal/runner"
)

func newValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and resolve every converter and preprocessing stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			// Resolving the run surfaces every parameter error without
			// reading the dataset.
			if _, err := runner.New(cfg, initLogger(cfg.Logging), nil); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderConfigTable(cfg))
			fmt.Fprintf(cmd.OutOrStdout(), "Converters: %s\nPreprocessors: %s\n",
				strings.Join(annotation.Names(), ", "),
				strings.Join(preprocess.Names(), ", "),
			)
			return nil
		},
	}
}

func renderConfigTable(cfg *config.Config) string {
	fold := "all"
	if f := cfg.Dataset.FoldOrAll(); f != config.AllFolds {
		fold = strconv.Itoa(f)
	}

	rows := [][]string{
		{"dataset", "converter", cfg.Dataset.Converter},
		{"dataset", "annotation_file", cfg.Dataset.AnnotationFile},
		{"dataset", "audio_dir", cfg.Dataset.AudioDir},
		{"dataset", "fold", fold},
		{"dataset", "check_content", strconv.FormatBool(cfg.Dataset.CheckContent)},
	}

	for i, p := range cfg.Preprocessing {
		section := fmt.Sprintf("preprocessing[%d]", i)
		rows = append(rows, []string{section, "type", p.Type})
		for _, param := range p.Params() {
			if param.Value != nil {
				rows = append(rows, []string{section, param.Name, strconv.Itoa(*param.Value)})
			}
		}
	}

	rows = append(rows,
		[]string{"run", "workers", strconv.Itoa(cfg.Run.Workers)},
		[]string{"run", "progress_interval", strconv.Itoa(cfg.Run.ProgressInterval)},
	)
	if cfg.Run.DumpDir != "" {
		rows = append(rows, []string{"run", "dump_dir", cfg.Run.DumpDir})
	}

	return renderTable([]string{"Section", "Key", "Value"}, rows, nil)
}
