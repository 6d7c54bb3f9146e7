package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/factsync/internal/authorization"
	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/graph"
	"github.com/roach88/factsync/internal/signing"
)

// AuthorResult lists the facts written.
type AuthorResult struct {
	Principal  string   `json:"principal,omitempty"`
	References []string `json:"references"`
}

func (r AuthorResult) String() string {
	return strings.Join(r.References, "\n")
}

// NewAuthorCommand creates the author command.
func NewAuthorCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "author <facts-file>",
		Short: "Authorize, sign and store facts",
		Long: `Author the facts of a YAML or JSON file as the configured principal.

Each fact is checked against the authorization rules, signed with the
principal's private key and saved with its predecessors. The principal's
own Jinaga.User fact is authored first when the store lacks it. Without a
configured key pair facts are authored anonymously and unsigned.

Example:
  factsync author --rules ./rules --db ./facts.db environment.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthor(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runAuthor(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	facts, err := ReadFactsFile(path)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeInvalidInput, "failed to read facts", err)
	}
	principal, err := LoadPrincipal(opts.Config.Principal.PublicKey, opts.Config.Principal.PrivateKey)
	if errors.Is(err, signing.ErrKeyMismatch) {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidInput, "principal keys do not form a pair", err)
	}
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "failed to load principal", err)
	}

	s, err := openSession(ctx, opts, true)
	if err != nil {
		return sessionFailure(formatter, err)
	}
	defer s.Close()

	var result AuthorResult
	if principal != nil {
		result.Principal = principal.Reference().String()
		if !s.authority.Head().Load().Contains(principal.Reference()) {
			facts = append([]fact.Fact{principal.UserFact()}, facts...)
		}
	}

	refs, err := s.authority.Facts(ctx, principal, facts...)
	result.References = referenceStrings(refs)
	if err != nil {
		switch {
		case authorization.IsDenied(err):
			return formatter.Fail(ExitFailure, ErrCodeDenied, "authorization denied", err)
		case graph.IsDanglingPredecessor(err):
			return formatter.Fail(ExitFailure, ErrCodeNotFound, "predecessor not found", err)
		default:
			return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to author facts", err)
		}
	}

	formatter.VerboseLog("Authored %d fact(s)", len(refs))
	return formatter.Success(result)
}
