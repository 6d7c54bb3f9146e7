package spec

// Label names a fact of a given type within a specification.
type Label struct {
	Name string
	Type string
}

// Role is one predecessor step: the role name and the type of the fact it
// points to.
type Role struct {
	Name            string
	PredecessorType string
}

// Match introduces an unknown label constrained by conditions.
type Match struct {
	Unknown    Label
	Conditions []Condition
}

// Condition is sealed: PathCondition or ExistentialCondition.
type Condition interface {
	conditionNode()
}

// PathCondition requires that walking RolesLeft from the unknown and
// RolesRight from LabelRight reach the same fact.
type PathCondition struct {
	RolesLeft  []Role
	LabelRight string
	RolesRight []Role
}

func (PathCondition) conditionNode() {}

// ExistentialCondition requires that Matches have a solution (Exists) or
// have none (!Exists).
type ExistentialCondition struct {
	Exists  bool
	Matches []Match
}

func (ExistentialCondition) conditionNode() {}

// Projection is sealed. CompositeProjection is the only variant; a nil
// Projection projects every unknown of the top-level matches.
type Projection interface {
	projectionNode()
}

// CompositeProjection projects named components.
type CompositeProjection struct {
	Components []Component
}

func (CompositeProjection) projectionNode() {}

// Component is sealed: FactComponent or SpecificationComponent.
type Component interface {
	componentNode()
	ComponentName() string
}

// FactComponent projects a bound label as a Simple element.
type FactComponent struct {
	Name  string
	Label string
}

func (FactComponent) componentNode() {}

// ComponentName returns the projected name.
func (c FactComponent) ComponentName() string { return c.Name }

// SpecificationComponent runs nested matches for each result row and
// projects them as a Collection element.
type SpecificationComponent struct {
	Name       string
	Matches    []Match
	Projection Projection
}

func (SpecificationComponent) componentNode() {}

// ComponentName returns the projected name.
func (c SpecificationComponent) ComponentName() string { return c.Name }

// Specification is an immutable query: givens, matches and a projection.
type Specification struct {
	Given      []Label
	Matches    []Match
	Projection Projection
}

// GivenTypes returns the given types in order.
func (s Specification) GivenTypes() []string {
	types := make([]string, len(s.Given))
	for i, g := range s.Given {
		types[i] = g.Type
	}
	return types
}

// Components returns the effective projection components.
func (s Specification) Components() []Component {
	return EffectiveComponents(s.Matches, s.Projection)
}

// EffectiveComponents resolves a nil projection to one FactComponent per
// unknown in matches.
func EffectiveComponents(matches []Match, p Projection) []Component {
	if cp, ok := p.(CompositeProjection); ok {
		return cp.Components
	}
	if cp, ok := p.(*CompositeProjection); ok && cp != nil {
		return cp.Components
	}
	components := make([]Component, len(matches))
	for i, m := range matches {
		components[i] = FactComponent{Name: m.Unknown.Name, Label: m.Unknown.Name}
	}
	return components
}
