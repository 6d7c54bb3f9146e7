// Package spec defines specifications: declarative patterns evaluated
// against a fact graph.
//
// A Specification names its given facts, adds unknowns through an ordered
// list of matches, and projects the bound labels into a result:
//
//	given:   env: Environment
//	match:   creator: Jinaga.User  where env.creator = creator
//	project: {creator}
//
// Conditions, projections and components are sealed interfaces using the
// marker method pattern, so every consumer can switch over them
// exhaustively:
//
//	switch c := cond.(type) {
//	case PathCondition:
//	    // walk roles on both sides and require a common fact
//	case ExistentialCondition:
//	    // require the nested matches to have (or not have) a solution
//	}
//
// PATH CONDITIONS:
//
// A PathCondition relates the match's unknown to a label bound earlier. From
// the unknown it follows RolesLeft toward predecessors; from LabelRight it
// follows RolesRight toward predecessors; both walks must reach the same
// fact. An empty RolesLeft makes the unknown a predecessor of LabelRight; an
// empty RolesRight makes it a successor. The first condition of every match
// must be a PathCondition because it generates the candidate set.
//
// EXISTENTIAL CONDITIONS:
//
// An ExistentialCondition holds nested matches evaluated with the enclosing
// bindings in scope. Any (Exists=true) requires at least one solution; No
// (Exists=false) requires none. No is how tombstones such as deletion or
// supersession are expressed without mutating facts; see WhereNotDeleted and
// WhereCurrent.
//
// Validate catches unbound labels and role type mismatches when a
// specification is built, not when it is evaluated.
package spec
