// Package compiler turns declarative CUE rule files into a fact model,
// named specifications, authorization rules and distribution rules.
//
// A rules file looks like:
//
//	model: Environment: creator: "Jinaga.User"
//
//	specification: envCreator: {
//		given: [{name: "env", type: "Environment"}]
//		match: [{
//			unknown: {name: "creator", type: "Jinaga.User"}
//			conditions: [{path: {label: "env", right: [{name: "creator", type: "Jinaga.User"}]}}]
//		}]
//		project: [{name: "creator", label: "creator"}]
//	}
//
//	authorization: Environment: [{specification: "envCreator", role: "creator"}]
//	authorization: "Jinaga.User": ["any"]
//
//	distribution: [{specification: "envCreator", user: "envCreator", role: "creator"}]
//
// Every specification is validated against the model; role typos and type
// mismatches are reported with their CUE source position.
package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/factsync/internal/authorization"
	"github.com/roach88/factsync/internal/distribution"
	"github.com/roach88/factsync/internal/spec"
)

// Compiled is the result of compiling a rules file or directory.
type Compiled struct {
	Model          *spec.Model
	Specifications map[string]spec.Specification
	// Names lists specification names in declaration order.
	Names         []string
	Authorization *authorization.Rules
	Distribution  *distribution.Rules
}

// Specification returns the named specification.
func (c *Compiled) Specification(name string) (spec.Specification, bool) {
	s, ok := c.Specifications[name]
	return s, ok
}

// Compile compiles a CUE value holding the top-level model, specification,
// authorization and distribution fields. All are optional.
func Compile(v cue.Value) (*Compiled, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError("cue", err)
	}

	model, err := compileModel(v.LookupPath(cue.ParsePath("model")))
	if err != nil {
		return nil, err
	}

	c := &Compiled{
		Model:          model,
		Specifications: make(map[string]spec.Specification),
		Authorization:  authorization.NewRules(),
		Distribution:   distribution.NewRules(),
	}

	specsVal := v.LookupPath(cue.ParsePath("specification"))
	if specsVal.Exists() {
		iter, err := specsVal.Fields()
		if err != nil {
			return nil, formatCUEError("specification", err)
		}
		for iter.Next() {
			name := iter.Label()
			s, err := CompileSpecification(iter.Value(), model)
			if err != nil {
				return nil, err
			}
			c.Specifications[name] = s
			c.Names = append(c.Names, name)
		}
	}

	if err := compileAuthorization(c, v.LookupPath(cue.ParsePath("authorization"))); err != nil {
		return nil, err
	}
	if err := compileDistribution(c, v.LookupPath(cue.ParsePath("distribution"))); err != nil {
		return nil, err
	}
	return c, nil
}

// CompileString compiles CUE source. filename is used in positions.
func CompileString(src, filename string) (*Compiled, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return Compile(v)
}

// CompileFile compiles a single CUE file.
func CompileFile(path string) (*Compiled, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	return CompileString(string(data), path)
}

// CompileDir loads every CUE file of the package in dir and compiles the
// unified value.
func CompileDir(dir string) (*Compiled, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("rules directory: %w", err)
	}
	if !info.IsDir() {
		return CompileFile(dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, fmt.Errorf("scan rules directory: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError("load", inst.Err)
	}
	return Compile(ctx.BuildInstance(inst))
}
