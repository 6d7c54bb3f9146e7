package spec

import "github.com/roach88/factsync/internal/ir"

// Hash returns the specification's identity: a domain-separated hash of its
// canonical structure. Two specifications with the same givens, matches and
// projection (label names included) share a hash.
func (s Specification) Hash() string {
	h, err := ir.CanonicalHash(ir.DomainSpecification, s.Value())
	if err != nil {
		// Values hold only strings, booleans, arrays and objects.
		panic(err)
	}
	return h
}

// Value renders the specification as an IR object.
func (s Specification) Value() ir.IRObject {
	given := make(ir.IRArray, len(s.Given))
	for i, g := range s.Given {
		given[i] = labelValue(g)
	}
	return ir.IRObject{
		"given":      given,
		"matches":    matchesValue(s.Matches),
		"projection": componentsValue(s.Components()),
	}
}

func labelValue(l Label) ir.IRObject {
	return ir.IRObject{"name": ir.IRString(l.Name), "type": ir.IRString(l.Type)}
}

func rolesValue(roles []Role) ir.IRArray {
	arr := make(ir.IRArray, len(roles))
	for i, r := range roles {
		arr[i] = ir.IRObject{"name": ir.IRString(r.Name), "type": ir.IRString(r.PredecessorType)}
	}
	return arr
}

func matchesValue(matches []Match) ir.IRArray {
	arr := make(ir.IRArray, len(matches))
	for i, m := range matches {
		conds := make(ir.IRArray, len(m.Conditions))
		for j, c := range m.Conditions {
			conds[j] = conditionValue(c)
		}
		arr[i] = ir.IRObject{"unknown": labelValue(m.Unknown), "conditions": conds}
	}
	return arr
}

func conditionValue(c Condition) ir.IRValue {
	switch cond := c.(type) {
	case PathCondition:
		return ir.IRObject{"path": ir.IRObject{
			"left":  rolesValue(cond.RolesLeft),
			"label": ir.IRString(cond.LabelRight),
			"right": rolesValue(cond.RolesRight),
		}}
	case ExistentialCondition:
		return ir.IRObject{
			"exists":  ir.IRBool(cond.Exists),
			"matches": matchesValue(cond.Matches),
		}
	default:
		return ir.IRNull{}
	}
}

func componentsValue(components []Component) ir.IRArray {
	arr := make(ir.IRArray, len(components))
	for i, c := range components {
		switch comp := c.(type) {
		case FactComponent:
			arr[i] = ir.IRObject{"name": ir.IRString(comp.Name), "label": ir.IRString(comp.Label)}
		case SpecificationComponent:
			arr[i] = ir.IRObject{
				"name":       ir.IRString(comp.Name),
				"matches":    matchesValue(comp.Matches),
				"projection": componentsValue(EffectiveComponents(comp.Matches, comp.Projection)),
			}
		default:
			arr[i] = ir.IRNull{}
		}
	}
	return arr
}
