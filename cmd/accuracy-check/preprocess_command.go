package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/skypro1111/audio-accuracy-checker/internal/runner"
)

func newPreprocessCommand(ctx *commandContext) *cobra.Command {
	var overrides runOverrides
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "preprocess",
		Short: "Convert the dataset and run every sample through the preprocessing pipeline",
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

			bar := newProgressBar(cmd.ErrOrStderr(), "Preprocessing: ", int64(len(result.Annotations)), noProgress)
			report, err := s.runner.Preprocess(cmd.Context(), result.Annotations, func(runner.ItemResult) {
				bar.increment()
			})
			bar.finish()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printContentErrors(out, result.ContentErrors)
			printReport(out, report, s.runner.Stages())
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d samples failed preprocessing", report.Failed, len(report.Items))
			}
			return nil
		},
	}

	overrides.bind(cmd, true)
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}

func printReport(out io.Writer, report *runner.Report, stages []string) {
	var failures [][]string
	for _, item := range report.Items {
		if item.Err != nil {
			failures = append(failures, []string{item.Identifier, item.Err.Error()})
		}
	}
	if len(failures) > 0 {
		fmt.Fprintln(out, renderTable([]string{"Sample", "Error"}, failures, nil))
	}

	rows := [][]string{
		{"stages", fmt.Sprint(stages)},
		{"samples", strconv.Itoa(len(report.Items))},
		{"failed", strconv.Itoa(report.Failed)},
		{"inference units", strconv.Itoa(report.Units)},
	}
	fmt.Fprintln(out, renderTable([]string{"Preprocessing", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
}
