package spec

import "slices"

// Model declares, per fact type, the type each predecessor role points to.
// Validation consults it to catch role typos and wrong predecessor types.
type Model struct {
	roles map[string]map[string]string
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{roles: make(map[string]map[string]string)}
}

// Type declares a fact type with no roles. Declaring it lets validation
// reject undeclared roles on it.
func (m *Model) Type(factType string) *Model {
	if _, ok := m.roles[factType]; !ok {
		m.roles[factType] = make(map[string]string)
	}
	return m
}

// Declare records that factType's role points to predecessorType.
func (m *Model) Declare(factType, role, predecessorType string) *Model {
	m.Type(factType)
	m.roles[factType][role] = predecessorType
	return m
}

// Knows reports whether factType was declared.
func (m *Model) Knows(factType string) bool {
	if m == nil {
		return false
	}
	_, ok := m.roles[factType]
	return ok
}

// Role returns the predecessor type declared for factType's role.
func (m *Model) Role(factType, role string) (string, bool) {
	if m == nil {
		return "", false
	}
	t, ok := m.roles[factType][role]
	return t, ok
}

// Roles returns factType's roles in sorted order.
func (m *Model) Roles(factType string) []string {
	if m == nil {
		return nil
	}
	roles := make([]string, 0, len(m.roles[factType]))
	for r := range m.roles[factType] {
		roles = append(roles, r)
	}
	slices.Sort(roles)
	return roles
}

// Types returns declared types in sorted order.
func (m *Model) Types() []string {
	if m == nil {
		return nil
	}
	types := make([]string, 0, len(m.roles))
	for t := range m.roles {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
