package spec

import "fmt"

// Validate checks that every label is bound before use, that label names
// are unique within scope, and that role walks agree on types. With a
// non-nil model, roles are also checked against the declared fact types.
//
// Validate is a pure function with no side effects.
func Validate(s Specification, m *Model) error {
	v := &validator{model: m}
	scope := make(map[string]string, len(s.Given))
	for i, g := range s.Given {
		ctx := fmt.Sprintf("given[%d]", i)
		if err := v.bind(scope, g, ctx); err != nil {
			return err
		}
	}
	inner, err := v.matches(scope, s.Matches, "match")
	if err != nil {
		return err
	}
	return v.projection(inner, s.Matches, s.Projection, "projection")
}

// validator carries the optional model through the traversal.
type validator struct {
	model *Model
}

func (v *validator) bind(scope map[string]string, l Label, ctx string) error {
	if l.Name == "" {
		return &InvalidError{Context: ctx, Message: "label name is required"}
	}
	if l.Type == "" {
		return &InvalidError{Context: ctx, Message: fmt.Sprintf("label %q has no type", l.Name)}
	}
	if _, exists := scope[l.Name]; exists {
		return &InvalidError{Context: ctx, Message: fmt.Sprintf("label %q is already bound", l.Name)}
	}
	scope[l.Name] = l.Type
	return nil
}

// matches validates matches in order and returns the extended scope. The
// caller's scope is not modified.
func (v *validator) matches(outer map[string]string, matches []Match, ctx string) (map[string]string, error) {
	scope := make(map[string]string, len(outer)+len(matches))
	for k, t := range outer {
		scope[k] = t
	}
	for i, m := range matches {
		mctx := fmt.Sprintf("%s[%d]", ctx, i)
		if err := v.bind(scope, m.Unknown, mctx); err != nil {
			return nil, err
		}
		if len(m.Conditions) == 0 {
			return nil, &InvalidError{Context: mctx, Message: fmt.Sprintf("unknown %q has no conditions", m.Unknown.Name)}
		}
		if _, ok := m.Conditions[0].(PathCondition); !ok {
			return nil, &InvalidError{Context: mctx, Message: "first condition must be a path condition"}
		}
		for j, c := range m.Conditions {
			cctx := fmt.Sprintf("%s.condition[%d]", mctx, j)
			if err := v.condition(scope, m.Unknown, c, cctx); err != nil {
				return nil, err
			}
		}
	}
	return scope, nil
}

func (v *validator) condition(scope map[string]string, unknown Label, c Condition, ctx string) error {
	switch cond := c.(type) {
	case PathCondition:
		if cond.LabelRight == unknown.Name {
			return &InvalidError{Context: ctx, Message: fmt.Sprintf("path condition relates %q to itself", unknown.Name)}
		}
		rightType, ok := scope[cond.LabelRight]
		if !ok {
			return &UnboundLabelError{Label: cond.LabelRight, Context: ctx}
		}
		leftEnd, err := v.walk(unknown.Type, cond.RolesLeft, ctx+".left")
		if err != nil {
			return err
		}
		rightEnd, err := v.walk(rightType, cond.RolesRight, ctx+".right")
		if err != nil {
			return err
		}
		if leftEnd != rightEnd {
			return &TypeMismatchError{Context: ctx, Expected: rightEnd, Actual: leftEnd}
		}
		return nil
	case ExistentialCondition:
		if len(cond.Matches) == 0 {
			return &InvalidError{Context: ctx, Message: "existential condition has no matches"}
		}
		_, err := v.matches(scope, cond.Matches, ctx+".match")
		return err
	default:
		return &InvalidError{Context: ctx, Message: fmt.Sprintf("unknown condition type %T", c)}
	}
}

// walk follows roles from factType and returns the type reached.
func (v *validator) walk(factType string, roles []Role, ctx string) (string, error) {
	current := factType
	for i, r := range roles {
		rctx := fmt.Sprintf("%s[%d]", ctx, i)
		if r.Name == "" {
			return "", &InvalidError{Context: rctx, Message: "role name is required"}
		}
		if r.PredecessorType == "" {
			return "", &InvalidError{Context: rctx, Message: fmt.Sprintf("role %q has no predecessor type", r.Name)}
		}
		if v.model.Knows(current) {
			declared, ok := v.model.Role(current, r.Name)
			if !ok {
				return "", &UnknownRoleError{Type: current, Role: r.Name}
			}
			if declared != r.PredecessorType {
				return "", &TypeMismatchError{
					Context:  fmt.Sprintf("%s (%s.%s)", rctx, current, r.Name),
					Expected: declared,
					Actual:   r.PredecessorType,
				}
			}
		}
		current = r.PredecessorType
	}
	return current, nil
}

func (v *validator) projection(scope map[string]string, matches []Match, p Projection, ctx string) error {
	seen := make(map[string]bool)
	for i, c := range EffectiveComponents(matches, p) {
		cctx := fmt.Sprintf("%s[%d]", ctx, i)
		name := c.ComponentName()
		if name == "" {
			return &InvalidError{Context: cctx, Message: "component name is required"}
		}
		if seen[name] {
			return &InvalidError{Context: cctx, Message: fmt.Sprintf("component %q is projected twice", name)}
		}
		seen[name] = true

		switch comp := c.(type) {
		case FactComponent:
			if _, ok := scope[comp.Label]; !ok {
				return &UnboundLabelError{Label: comp.Label, Context: cctx}
			}
		case SpecificationComponent:
			inner, err := v.matches(scope, comp.Matches, cctx+".match")
			if err != nil {
				return err
			}
			if err := v.projection(inner, comp.Matches, comp.Projection, cctx+".projection"); err != nil {
				return err
			}
		default:
			return &InvalidError{Context: cctx, Message: fmt.Sprintf("unknown component type %T", c)}
		}
	}
	return nil
}
