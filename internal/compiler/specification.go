package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/factsync/internal/spec"
)

// compileModel reads `model: <type>: <role>: "<predecessor type>"`.
func compileModel(v cue.Value) (*spec.Model, error) {
	model := spec.NewModel()
	if !v.Exists() {
		return model, nil
	}
	types, err := v.Fields()
	if err != nil {
		return nil, formatCUEError("model", err)
	}
	for types.Next() {
		factType := types.Label()
		model.Type(factType)
		roles, err := types.Value().Fields()
		if err != nil {
			return nil, formatCUEError("model."+factType, err)
		}
		for roles.Next() {
			field := fmt.Sprintf("model.%s.%s", factType, roles.Label())
			predecessorType, err := roles.Value().String()
			if err != nil {
				return nil, formatCUEError(field, err)
			}
			model.Declare(factType, roles.Label(), predecessorType)
		}
	}
	return model, nil
}

// CompileSpecification parses one specification struct and validates it
// against model (nil skips role checks).
func CompileSpecification(v cue.Value, model *spec.Model) (spec.Specification, error) {
	if err := v.Err(); err != nil {
		return spec.Specification{}, formatCUEError("specification", err)
	}
	field := "specification"
	if sels := v.Path().Selectors(); len(sels) > 0 {
		field = "specification." + sels[len(sels)-1].String()
	}

	b := spec.New().WithModel(model)

	givenVal := v.LookupPath(cue.ParsePath("given"))
	if !givenVal.Exists() {
		return spec.Specification{}, &CompileError{Field: field + ".given", Message: "given is required", Pos: v.Pos()}
	}
	givens, err := parseLabels(givenVal, field+".given")
	if err != nil {
		return spec.Specification{}, err
	}
	b.Given(givens...)

	matches, err := parseMatches(v.LookupPath(cue.ParsePath("match")), field+".match")
	if err != nil {
		return spec.Specification{}, err
	}
	b.Match(matches...)

	projectVal := v.LookupPath(cue.ParsePath("project"))
	if projectVal.Exists() {
		components, err := parseComponents(projectVal, field+".project")
		if err != nil {
			return spec.Specification{}, err
		}
		b.Project(components...)
	}

	s, err := b.Build()
	if err != nil {
		return spec.Specification{}, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
	}
	return s, nil
}

func parseLabels(v cue.Value, field string) ([]spec.Label, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(field, err)
	}
	var labels []spec.Label
	for i := 0; iter.Next(); i++ {
		l, err := parseLabel(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
		if err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return labels, nil
}

func parseLabel(v cue.Value, field string) (spec.Label, error) {
	name, err := requiredString(v, "name", field)
	if err != nil {
		return spec.Label{}, err
	}
	factType, err := requiredString(v, "type", field)
	if err != nil {
		return spec.Label{}, err
	}
	return spec.L(name, factType), nil
}

func parseRoles(v cue.Value, field string) ([]spec.Role, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(field, err)
	}
	var roles []spec.Role
	for i := 0; iter.Next(); i++ {
		f := fmt.Sprintf("%s[%d]", field, i)
		name, err := requiredString(iter.Value(), "name", f)
		if err != nil {
			return nil, err
		}
		predecessorType, err := requiredString(iter.Value(), "type", f)
		if err != nil {
			return nil, err
		}
		roles = append(roles, spec.R(name, predecessorType))
	}
	return roles, nil
}

func parseMatches(v cue.Value, field string) ([]spec.Match, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(field, err)
	}
	var matches []spec.Match
	for i := 0; iter.Next(); i++ {
		f := fmt.Sprintf("%s[%d]", field, i)
		m := iter.Value()

		unknownVal := m.LookupPath(cue.ParsePath("unknown"))
		if !unknownVal.Exists() {
			return nil, &CompileError{Field: f + ".unknown", Message: "unknown is required", Pos: m.Pos()}
		}
		unknown, err := parseLabel(unknownVal, f+".unknown")
		if err != nil {
			return nil, err
		}

		conditionsVal := m.LookupPath(cue.ParsePath("conditions"))
		if !conditionsVal.Exists() {
			return nil, &CompileError{Field: f + ".conditions", Message: "at least one condition is required", Pos: m.Pos()}
		}
		conditions, err := parseConditions(conditionsVal, f+".conditions")
		if err != nil {
			return nil, err
		}
		matches = append(matches, spec.M(unknown, conditions...))
	}
	return matches, nil
}

// parseConditions accepts {path: {left?, label, right?}} and
// {exists: bool, match: [...]}.
func parseConditions(v cue.Value, field string) ([]spec.Condition, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(field, err)
	}
	var conditions []spec.Condition
	for i := 0; iter.Next(); i++ {
		f := fmt.Sprintf("%s[%d]", field, i)
		c := iter.Value()

		if path := c.LookupPath(cue.ParsePath("path")); path.Exists() {
			label, err := requiredString(path, "label", f+".path")
			if err != nil {
				return nil, err
			}
			left, err := parseRoles(path.LookupPath(cue.ParsePath("left")), f+".path.left")
			if err != nil {
				return nil, err
			}
			right, err := parseRoles(path.LookupPath(cue.ParsePath("right")), f+".path.right")
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, spec.Path(left, label, right))
			continue
		}

		if existsVal := c.LookupPath(cue.ParsePath("exists")); existsVal.Exists() {
			exists, err := existsVal.Bool()
			if err != nil {
				return nil, formatCUEError(f+".exists", err)
			}
			matches, err := parseMatches(c.LookupPath(cue.ParsePath("match")), f+".match")
			if err != nil {
				return nil, err
			}
			if len(matches) == 0 {
				return nil, &CompileError{Field: f + ".match", Message: "existential condition needs at least one match", Pos: c.Pos()}
			}
			if exists {
				conditions = append(conditions, spec.Any(matches...))
			} else {
				conditions = append(conditions, spec.No(matches...))
			}
			continue
		}

		return nil, &CompileError{Field: f, Message: "condition must have path or exists", Pos: c.Pos()}
	}
	return conditions, nil
}

// parseComponents accepts {name, label} and {name, match, project?}.
func parseComponents(v cue.Value, field string) ([]spec.Component, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(field, err)
	}
	var components []spec.Component
	for i := 0; iter.Next(); i++ {
		f := fmt.Sprintf("%s[%d]", field, i)
		c := iter.Value()

		name, err := requiredString(c, "name", f)
		if err != nil {
			return nil, err
		}

		if c.LookupPath(cue.ParsePath("label")).Exists() {
			label, err := requiredString(c, "label", f)
			if err != nil {
				return nil, err
			}
			components = append(components, spec.Fact(name, label))
			continue
		}

		matchVal := c.LookupPath(cue.ParsePath("match"))
		if !matchVal.Exists() {
			return nil, &CompileError{Field: f, Message: "component needs label or match", Pos: c.Pos()}
		}
		matches, err := parseMatches(matchVal, f+".match")
		if err != nil {
			return nil, err
		}
		var nested []spec.Component
		if projectVal := c.LookupPath(cue.ParsePath("project")); projectVal.Exists() {
			nested, err = parseComponents(projectVal, f+".project")
			if err != nil {
				return nil, err
			}
		}
		components = append(components, spec.Collection(name, matches, nested...))
	}
	return components, nil
}

func requiredString(v cue.Value, key, field string) (string, error) {
	val := v.LookupPath(cue.ParsePath(key))
	if !val.Exists() {
		return "", &CompileError{Field: field + "." + key, Message: key + " is required", Pos: v.Pos()}
	}
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(field+"."+key, err)
	}
	if s == "" {
		return "", &CompileError{Field: field + "." + key, Message: key + " must be non-empty", Pos: val.Pos()}
	}
	return s, nil
}
