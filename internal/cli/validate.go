package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ValidationResult summarizes a rules set.
type ValidationResult struct {
	Valid             bool     `json:"valid"`
	Types             []string `json:"types"`
	Specifications    []string `json:"specifications"`
	AuthorizedTypes   []string `json:"authorized_types"`
	DistributionRules int      `json:"distribution_rules"`
}

func (r ValidationResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "✓ rules valid\n")
	fmt.Fprintf(&sb, "  types:          %s\n", strings.Join(r.Types, ", "))
	fmt.Fprintf(&sb, "  specifications: %s\n", strings.Join(r.Specifications, ", "))
	fmt.Fprintf(&sb, "  authorization:  %d type(s)\n", len(r.AuthorizedTypes))
	fmt.Fprintf(&sb, "  distribution:   %d rule(s)", r.DistributionRules)
	return sb.String()
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [rules]",
		Short: "Validate CUE rules",
		Long: `Compile the fact model, specifications, authorization and
distribution rules and report any error with its source position.

The rules path defaults to the configured one.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.Config.Rules
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	formatter.VerboseLog("Validating rules in %s", path)

	compiled, err := LoadRules(path)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Code == ErrCodeCompile {
			return formatter.Fail(ExitFailure, loadErr.Code, "validation failed", loadErr.Err)
		}
		return sessionFailure(formatter, err)
	}

	return formatter.Success(ValidationResult{
		Valid:             true,
		Types:             compiled.Model.Types(),
		Specifications:    compiled.Names,
		AuthorizedTypes:   compiled.Authorization.Types(),
		DistributionRules: len(compiled.Distribution.All()),
	})
}
