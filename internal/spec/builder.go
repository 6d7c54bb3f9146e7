package spec

// Builder assembles a Specification step by step.
//
//	s, err := spec.New().
//	    Given(spec.L("env", "Environment")).
//	    Match(spec.M(spec.L("creator", "Jinaga.User"),
//	        spec.Predecessor("env", spec.R("creator", "Jinaga.User")))).
//	    Project(spec.Fact("creator", "creator")).
//	    Build()
type Builder struct {
	spec  Specification
	model *Model
}

// New starts a builder.
func New() *Builder {
	return &Builder{}
}

// Given appends given labels.
func (b *Builder) Given(labels ...Label) *Builder {
	b.spec.Given = append(b.spec.Given, labels...)
	return b
}

// Match appends matches.
func (b *Builder) Match(matches ...Match) *Builder {
	b.spec.Matches = append(b.spec.Matches, matches...)
	return b
}

// Project sets the projection components.
func (b *Builder) Project(components ...Component) *Builder {
	b.spec.Projection = CompositeProjection{Components: components}
	return b
}

// WithModel checks roles against m during Build.
func (b *Builder) WithModel(m *Model) *Builder {
	b.model = m
	return b
}

// Build validates and returns the specification.
func (b *Builder) Build() (Specification, error) {
	if err := Validate(b.spec, b.model); err != nil {
		return Specification{}, err
	}
	return b.spec, nil
}

// MustBuild is like Build but panics on error.
// Use only in tests or for specifications known to be valid.
func (b *Builder) MustBuild() Specification {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

// L creates a label.
func L(name, factType string) Label {
	return Label{Name: name, Type: factType}
}

// R creates a role step.
func R(name, predecessorType string) Role {
	return Role{Name: name, PredecessorType: predecessorType}
}

// M creates a match.
func M(unknown Label, conditions ...Condition) Match {
	return Match{Unknown: unknown, Conditions: conditions}
}

// Predecessor makes the unknown the fact reached from label through roles.
func Predecessor(label string, roles ...Role) PathCondition {
	return PathCondition{LabelRight: label, RolesRight: roles}
}

// Successor makes the unknown a fact that reaches label through roles.
func Successor(label string, roles ...Role) PathCondition {
	return PathCondition{RolesLeft: roles, LabelRight: label}
}

// Path is the general form: unknown.left... = label.right...
func Path(left []Role, label string, right []Role) PathCondition {
	return PathCondition{RolesLeft: left, LabelRight: label, RolesRight: right}
}

// Any requires the matches to have a solution.
func Any(matches ...Match) ExistentialCondition {
	return ExistentialCondition{Exists: true, Matches: matches}
}

// No requires the matches to have no solution.
func No(matches ...Match) ExistentialCondition {
	return ExistentialCondition{Exists: false, Matches: matches}
}

// WhereNotDeleted excludes facts of label that have a successor of
// deletedType naming them through role.
func WhereNotDeleted(label Label, deletedType, role string) ExistentialCondition {
	return No(M(L(label.Name+"$deleted", deletedType), Successor(label.Name, R(role, label.Type))))
}

// WhereCurrent excludes facts of label superseded by a later fact of the
// same type naming them through role (typically "prior").
func WhereCurrent(label Label, role string) ExistentialCondition {
	return No(M(L(label.Name+"$next", label.Type), Successor(label.Name, R(role, label.Type))))
}

// Fact projects a label.
func Fact(name, label string) FactComponent {
	return FactComponent{Name: name, Label: label}
}

// Collection projects nested matches.
func Collection(name string, matches []Match, components ...Component) SpecificationComponent {
	var p Projection
	if len(components) > 0 {
		p = CompositeProjection{Components: components}
	}
	return SpecificationComponent{Name: name, Matches: matches, Projection: p}
}
