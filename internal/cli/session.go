package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/factsync/internal/authoring"
	"github.com/roach88/factsync/internal/authorization"
	"github.com/roach88/factsync/internal/compiler"
	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/graph"
	"github.com/roach88/factsync/internal/signing"
	"github.com/roach88/factsync/internal/store"
)

// LoadError is a rules loading failure with a CLI error code.
type LoadError struct {
	Code    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadRules compiles a rules file or every .cue file of a directory.
func LoadRules(path string) (*compiler.Compiled, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("rules not found: %s", path), Err: err}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing rules: %v", err), Err: err}
	}
	if info.IsDir() {
		files, err := FindCUEFiles(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("error scanning directory: %v", err), Err: err}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
	}

	compiled, err := compiler.CompileDir(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeCompile, Message: err.Error(), Err: err}
	}
	return compiled, nil
}

// FindCUEFiles returns the .cue files directly inside dir, which is what a
// CUE package instance loads.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// LoadPrincipal reads the configured key pair. With no keys configured the
// principal is nil (anonymous).
func LoadPrincipal(publicKeyPath, privateKeyPath string) (*signing.Principal, error) {
	if publicKeyPath == "" {
		return nil, nil
	}
	pub, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	priv, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return signing.FromKeyPair(&signing.KeyPair{PublicKey: string(pub), PrivateKey: string(priv)})
}

// ReadFactsFile decodes a YAML or JSON file holding one fact or a list of
// facts in their encoded form. Hashes are optional; when present they are
// checked.
func ReadFactsFile(path string) ([]fact.Fact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var items []any
	switch v := doc.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	case nil:
		return nil, fmt.Errorf("%s: no facts", path)
	default:
		return nil, fmt.Errorf("%s: expected a fact or a list of facts, got %T", path, doc)
	}

	facts := make([]fact.Fact, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: fact %d: expected a mapping, got %T", path, i, item)
		}
		f, err := fact.Decode(m)
		if err != nil {
			return nil, fmt.Errorf("%s: fact %d: %w", path, i, err)
		}
		facts = append(facts, f)
	}
	return facts, nil
}

// session is the state shared by commands that touch the store.
type session struct {
	store     *store.Store
	rules     *compiler.Compiled
	authority *authoring.Authority
}

// openSession opens the store and loads its facts into a head. With
// withRules the configured rules are compiled and govern the authority;
// otherwise the authority has no rules and can only be queried.
func openSession(ctx context.Context, opts *RootOptions, withRules bool) (*session, error) {
	s := &session{}
	if withRules {
		rules, err := LoadRules(opts.Config.Rules)
		if err != nil {
			return nil, err
		}
		s.rules = rules
	}

	st, err := store.Open(opts.Config.Database)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeStore, Message: "failed to open database", Err: err}
	}
	g, err := st.ReadAll(ctx)
	if err != nil {
		st.Close()
		if fact.IsIntegrityError(err) {
			return nil, &LoadError{Code: ErrCodeIntegrity, Message: "store holds a corrupted fact", Err: err}
		}
		return nil, &LoadError{Code: ErrCodeStore, Message: "failed to read database", Err: err}
	}
	s.store = st

	var rules *authorization.Rules
	if s.rules != nil {
		rules = s.rules.Authorization
	}
	s.authority = authoring.New(graph.NewHead(g), rules,
		authoring.WithStore(st), authoring.WithLogger(opts.Logger))
	opts.Logger.Debug("session opened", "database", opts.Config.Database, "facts", g.Len())
	return s, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

// sessionFailure reports a session error through the formatter.
func sessionFailure(f *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return f.Fail(ExitCommandError, loadErr.Code, loadErr.Message, loadErr.Err)
	}
	return f.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), err)
}

// parseReferences parses "type:hash" arguments.
func parseReferences(args []string) ([]fact.Reference, error) {
	refs := make([]fact.Reference, 0, len(args))
	for _, a := range args {
		ref, err := fact.ParseReference(a)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func referenceStrings(refs []fact.Reference) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.String()
	}
	return out
}
