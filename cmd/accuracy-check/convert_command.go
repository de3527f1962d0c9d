package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/skypro1111/audio-accuracy-checker/internal/annotation"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var overrides runOverrides
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert the dataset manifest into classification annotations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(cmd, &overrides)
			if err != nil {
				return err
			}
			defer s.close()

			result, err := convertWithProgress(cmd, s, noProgress)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderLabelTable(result.Annotations, s.runner.Labels()))
			printContentErrors(out, result.ContentErrors)
			fmt.Fprintf(out, "%d annotations\n", len(result.Annotations))
			return nil
		},
	}

	overrides.bind(cmd, false)
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}

func convertWithProgress(cmd *cobra.Command, s *session, quiet bool) (*annotation.ConverterReturn, error) {
	bar := newProgressBar(cmd.ErrOrStderr(), "Converting: ", 100, quiet)
	result, err := s.runner.Convert(cmd.Context(), func(percent float64) {
		bar.set(int64(percent))
	})
	if err == nil {
		bar.set(100)
	}
	bar.finish()
	return result, err
}

// renderLabelTable counts annotations per target, in target order
func renderLabelTable(anns []annotation.ClassificationAnnotation, labels map[int64]string) string {
	counts := make(map[int64]int)
	for _, a := range anns {
		counts[a.Label]++
	}

	targets := make([]int64, 0, len(counts))
	for target := range counts {
		targets = append(targets, target)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

	rows := make([][]string, 0, len(targets))
	for _, target := range targets {
		rows = append(rows, []string{
			strconv.FormatInt(target, 10),
			labels[target],
			strconv.Itoa(counts[target]),
		})
	}

	return renderTable([]string{"Target", "Category", "Annotations"}, rows, []columnAlignment{alignRight, alignLeft, alignRight})
}

// printContentErrors reports missing audio; nil means the check was off
func printContentErrors(out io.Writer, contentErrors []string) {
	if contentErrors == nil {
		return
	}
	if len(contentErrors) == 0 {
		fmt.Fprintln(out, "Content check passed: every annotated file exists")
		return
	}

	rows := make([][]string, 0, len(contentErrors))
	for _, msg := range contentErrors {
		rows = append(rows, []string{msg})
	}
	fmt.Fprintln(out, renderTable([]string{"Content errors"}, rows, nil))
}
