package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/factsync/internal/signing"
)

// VerifyResult reports an integrity check of the store.
type VerifyResult struct {
	Facts      int      `json:"facts"`
	Signatures int      `json:"signatures"`
	Unsigned   int      `json:"unsigned"`
	Invalid    []string `json:"invalid,omitempty"`
}

func (r VerifyResult) String() string {
	status := "✓"
	if len(r.Invalid) > 0 {
		status = "✗"
	}
	s := fmt.Sprintf("%s %d fact(s), %d signature(s), %d unsigned", status, r.Facts, r.Signatures, r.Unsigned)
	for _, ref := range r.Invalid {
		s += "\n  bad signature: " + ref
	}
	return s
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute hashes and check signatures in the store",
		Long: `Read every fact in the store, recompute its hash from its content and
verify every signature against the signer's public key.

Exits with status 1 when any fact or signature fails.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, cmd)
		},
	}
	return cmd
}

func runVerify(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	// Opening the session restores every fact, which recomputes its hash.
	s, err := openSession(cmd.Context(), opts, false)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Code == ErrCodeIntegrity {
			return formatter.Fail(ExitFailure, loadErr.Code, loadErr.Message, loadErr.Err)
		}
		return sessionFailure(formatter, err)
	}
	defer s.Close()

	var result VerifyResult
	for env := range s.authority.Head().Load().All() {
		result.Facts++
		if len(env.Signatures) == 0 {
			result.Unsigned++
		}
		valid := true
		for _, sig := range env.Signatures {
			result.Signatures++
			valid = signing.Verify(env.Fact, sig) && valid
		}
		if !valid {
			result.Invalid = append(result.Invalid, env.Fact.Reference().String())
		}
	}

	if len(result.Invalid) > 0 {
		_ = formatter.Success(result)
		return NewExitError(ExitFailure, fmt.Sprintf("%d fact(s) with bad signatures", len(result.Invalid)))
	}
	return formatter.Success(result)
}
