package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/factsync/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string // scenario filter (glob pattern)
}

// TestResult wraps a suite result for text output.
type TestResult struct {
	*harness.SuiteResult
}

func (r TestResult) String() string {
	if r.Total == 0 {
		return "No scenarios found."
	}
	var sb strings.Builder
	for _, f := range r.Failures {
		fmt.Fprintf(&sb, "✗ %s (%s)\n", f.Scenario, f.Path)
		for _, e := range f.Errors {
			fmt.Fprintf(&sb, "    %s\n", strings.ReplaceAll(e, "\n", "\n    "))
		}
	}
	fmt.Fprintf(&sb, "%d passed, %d failed, %d total", r.Passed, r.Failed, r.Total)
	return sb.String()
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run every YAML scenario under a directory. Each scenario names its
rules, generates its principals, authors facts step by step and checks
queries, distribution and signatures against the result.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  factsync test ./scenarios
  factsync test ./scenarios --filter "environment_*"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	suite, err := harness.RunSuite(cmd.Context(), dir, opts.Filter)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "failed to run scenarios", err)
	}

	if err := formatter.Success(TestResult{suite}); err != nil {
		return err
	}
	if suite.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", suite.Failed))
	}
	return nil
}
