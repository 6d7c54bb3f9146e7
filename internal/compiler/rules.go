package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/factsync/internal/authorization"
	"github.com/roach88/factsync/internal/distribution"
)

// compileAuthorization reads `authorization: <type>: [rule...]` where a
// rule is "any", "none" or {specification: <name>, role: <name>}.
func compileAuthorization(c *Compiled, v cue.Value) error {
	if !v.Exists() {
		return nil
	}
	types, err := v.Fields()
	if err != nil {
		return formatCUEError("authorization", err)
	}
	for types.Next() {
		factType := types.Label()
		rules, err := types.Value().List()
		if err != nil {
			return formatCUEError("authorization."+factType, err)
		}
		for i := 0; rules.Next(); i++ {
			field := fmt.Sprintf("authorization.%s[%d]", factType, i)
			rule, err := parseAuthorizationRule(c, rules.Value(), field)
			if err != nil {
				return err
			}
			if err := c.Authorization.Add(factType, rule); err != nil {
				return &CompileError{Field: field, Message: err.Error(), Pos: rules.Value().Pos()}
			}
		}
	}
	return nil
}

func parseAuthorizationRule(c *Compiled, v cue.Value, field string) (authorization.Rule, error) {
	if keyword, err := v.String(); err == nil {
		switch keyword {
		case "any":
			return authorization.AnyRule{}, nil
		case "none":
			return authorization.NoneRule{}, nil
		default:
			return nil, &CompileError{Field: field, Message: fmt.Sprintf("unknown rule %q: use \"any\", \"none\" or a specification rule", keyword), Pos: v.Pos()}
		}
	}

	name, err := requiredString(v, "specification", field)
	if err != nil {
		return nil, err
	}
	s, ok := c.Specifications[name]
	if !ok {
		return nil, &CompileError{Field: field + ".specification", Message: fmt.Sprintf("undefined specification %q", name), Pos: v.Pos()}
	}
	role, err := requiredString(v, "role", field)
	if err != nil {
		return nil, err
	}
	return authorization.SpecificationRule{Specification: s, Role: role}, nil
}

// compileDistribution reads `distribution: [{specification, user?, role?}]`.
// Without user the specification is shared with everyone.
func compileDistribution(c *Compiled, v cue.Value) error {
	if !v.Exists() {
		return nil
	}
	iter, err := v.List()
	if err != nil {
		return formatCUEError("distribution", err)
	}
	for i := 0; iter.Next(); i++ {
		field := fmt.Sprintf("distribution[%d]", i)
		r := iter.Value()

		name, err := requiredString(r, "specification", field)
		if err != nil {
			return err
		}
		s, ok := c.Specifications[name]
		if !ok {
			return &CompileError{Field: field + ".specification", Message: fmt.Sprintf("undefined specification %q", name), Pos: r.Pos()}
		}
		rule := distribution.Rule{Specification: s}

		if r.LookupPath(cue.ParsePath("user")).Exists() {
			userName, err := requiredString(r, "user", field)
			if err != nil {
				return err
			}
			us, ok := c.Specifications[userName]
			if !ok {
				return &CompileError{Field: field + ".user", Message: fmt.Sprintf("undefined specification %q", userName), Pos: r.Pos()}
			}
			role, err := requiredString(r, "role", field)
			if err != nil {
				return err
			}
			rule.UserSpecification = &us
			rule.UserRole = role
		}

		if err := c.Distribution.Add(rule); err != nil {
			return &CompileError{Field: field, Message: err.Error(), Pos: r.Pos()}
		}
	}
	return nil
}
