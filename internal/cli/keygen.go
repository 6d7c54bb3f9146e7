package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/factsync/internal/signing"
)

// KeygenOptions holds flags for the keygen command.
type KeygenOptions struct {
	*RootOptions
	OutDir string
	Force  bool
}

// KeygenResult describes a generated key pair.
type KeygenResult struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	User       string `json:"user"`
}

func (r KeygenResult) String() string {
	return fmt.Sprintf("public key:  %s\nprivate key: %s\nuser:        %s", r.PublicKey, r.PrivateKey, r.User)
}

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeygenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key pair",
		Long: `Generate an RSA key pair for signing facts.

Writes public.pem and private.pem to the output directory and prints the
reference of the principal's Jinaga.User fact. Point the principal section
of the config file at the two files to author as this principal.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", ".", "directory for the key files")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite existing key files")

	return cmd
}

func runKeygen(opts *KeygenOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	pubPath := filepath.Join(opts.OutDir, "public.pem")
	privPath := filepath.Join(opts.OutDir, "private.pem")
	if !opts.Force {
		for _, p := range []string{pubPath, privPath} {
			if _, err := os.Stat(p); !errors.Is(err, fs.ErrNotExist) {
				return formatter.Fail(ExitCommandError, ErrCodeWriteFailed,
					fmt.Sprintf("%s already exists (use --force to overwrite)", p), err)
			}
		}
	}

	kp, err := signing.Generate()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to generate key pair", err)
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to create output directory", err)
	}
	if err := os.WriteFile(pubPath, []byte(kp.PublicKey), 0o644); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to write public key", err)
	}
	if err := os.WriteFile(privPath, []byte(kp.PrivateKey), 0o600); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to write private key", err)
	}

	user := signing.UserFact(kp.PublicKey).Reference()
	opts.Logger.Info("key pair generated", "dir", opts.OutDir, "user", user.String())
	return formatter.Success(KeygenResult{PublicKey: pubPath, PrivateKey: privPath, User: user.String()})
}
