package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/factsync/internal/engine"
	"github.com/roach88/factsync/internal/product"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Givens  []string
	MaxRows int
}

// QueryResult holds the projections of a specification.
type QueryResult struct {
	Specification string            `json:"specification"`
	Results       []product.Product `json:"results"`
}

func (r QueryResult) String() string {
	if len(r.Results) == 0 {
		return "(no results)"
	}
	lines := make([]string, len(r.Results))
	for i, p := range r.Results {
		lines[i] = p.String()
	}
	return strings.Join(lines, "\n")
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <specification>",
		Short: "Evaluate a named specification against the store",
		Long: `Evaluate a specification from the rules against every fact in the
store, starting from the given facts.

Example:
  factsync query environments --given Organization:Gx1...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Givens, "given", "g", nil, "given fact as type:hash (repeatable, in order)")
	cmd.Flags().IntVar(&opts.MaxRows, "max-rows", 0, "fail when evaluation produces more rows (0 = unlimited)")

	return cmd
}

func runQuery(opts *QueryOptions, name string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	givens, err := parseReferences(opts.Givens)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeInvalidInput, "invalid given", err)
	}

	s, err := openSession(ctx, opts.RootOptions, true)
	if err != nil {
		return sessionFailure(formatter, err)
	}
	defer s.Close()

	sp, ok := s.rules.Specification(name)
	if !ok {
		return formatter.Fail(ExitFailure, ErrCodeNotFound,
			fmt.Sprintf("unknown specification %q", name), fmt.Errorf("known: %v", s.rules.Names))
	}

	products, err := engine.Products(ctx, s.authority.Head().Load(), sp, givens, engine.WithMaxRows(opts.MaxRows))
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeEvaluation, "evaluation failed", err)
	}

	formatter.VerboseLog("%s: %d result(s)", name, len(products))
	return formatter.Success(QueryResult{Specification: name, Results: products})
}
