package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// HashResult lists the references of the facts in a file.
type HashResult struct {
	References []string `json:"references"`
}

func (r HashResult) String() string {
	return strings.Join(r.References, "\n")
}

// NewHashCommand creates the hash command.
func NewHashCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash <facts-file>",
		Short: "Compute fact references",
		Long: `Compute the content hash of every fact in a YAML or JSON file.

The file holds one fact or a list of facts:

  - type: Organization
    fields: {name: acme}
  - type: Environment
    fields: {name: prod}
    predecessors:
      organization: {type: Organization, hash: "..."}

Facts that carry a hash are checked against it.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			facts, err := ReadFactsFile(args[0])
			if err != nil {
				return formatter.Fail(ExitFailure, ErrCodeInvalidInput, "failed to read facts", err)
			}
			result := HashResult{References: make([]string, len(facts))}
			for i, f := range facts {
				result.References[i] = f.Reference().String()
			}
			return formatter.Success(result)
		},
	}
	return cmd
}
