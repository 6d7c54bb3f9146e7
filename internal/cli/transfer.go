package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/factsync/internal/codec"
	"github.com/roach88/factsync/internal/graph"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Out    string
	Givens []string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write facts as a CBOR stream",
		Long: `Write facts and their signatures as a CBOR sequence in topological
order, ready for import into another store.

With --given only the named facts and their predecessors are exported.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringArrayVarP(&opts.Givens, "given", "g", nil, "export only the closure of this fact (type:hash, repeatable)")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	refs, err := parseReferences(opts.Givens)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeInvalidInput, "invalid given", err)
	}

	s, err := openSession(ctx, opts.RootOptions, false)
	if err != nil {
		return sessionFailure(formatter, err)
	}
	defer s.Close()

	g := s.authority.Head().Load()
	if len(refs) > 0 {
		if g, err = s.store.Load(ctx, refs...); err != nil {
			if graph.IsNotFound(err) {
				return formatter.Fail(ExitFailure, ErrCodeNotFound, "fact not found", err)
			}
			return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to load facts", err)
		}
	}

	var w io.Writer = cmd.OutOrStdout()
	if opts.Out != "" {
		f, err := os.Create(opts.Out)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to create output file", err)
		}
		defer f.Close()
		w = f
	}
	if err := codec.MarshalGraph(w, g); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to write facts", err)
	}

	opts.Logger.Info("facts exported", "facts", g.Len(), "out", opts.Out)
	return nil
}

// ImportResult summarizes an import.
type ImportResult struct {
	Accepted []string         `json:"accepted"`
	Merged   []string         `json:"merged"`
	Rejected []RejectedImport `json:"rejected,omitempty"`
}

// RejectedImport is one fact refused during import.
type RejectedImport struct {
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}

func (r ImportResult) String() string {
	s := fmt.Sprintf("accepted %d, merged %d, rejected %d", len(r.Accepted), len(r.Merged), len(r.Rejected))
	for _, rej := range r.Rejected {
		s += fmt.Sprintf("\n  %s: %s", rej.Reference, rej.Reason)
	}
	return s
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Receive facts from a CBOR stream",
		Long: `Receive facts written by export. Every hash is recomputed and every
signature verified; new facts must pass the authorization rules with their
signers as principals. Known facts only gain new signatures.

A single tampered fact aborts the import. Facts refused for a bad signature
or by authorization are reported and skipped along with their successors.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runImport(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	f, err := os.Open(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "failed to open input", err)
	}
	defer f.Close()

	remote, err := codec.UnmarshalGraph(f)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeInvalidInput, "failed to decode facts", err)
	}

	s, err := openSession(ctx, opts, true)
	if err != nil {
		return sessionFailure(formatter, err)
	}
	defer s.Close()

	receipt, err := s.authority.Receive(ctx, remote)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeIntegrity, "import aborted", err)
	}

	result := ImportResult{
		Accepted: referenceStrings(receipt.Accepted),
		Merged:   referenceStrings(receipt.Merged),
	}
	for _, rej := range receipt.Rejected {
		result.Rejected = append(result.Rejected, RejectedImport{Reference: rej.Reference.String(), Reason: rej.Err.Error()})
	}
	return formatter.Success(result)
}
