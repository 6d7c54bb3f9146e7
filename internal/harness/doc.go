// Package harness runs conformance scenarios against the authoring,
// evaluation and distribution pipeline.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: environment_lifecycle
//	description: "Only an environment's creator may delete it"
//	rules: rules/                 # CUE rules, relative to the scenario file
//	principals: [alice, bob]      # key pairs generated for this run
//	steps:
//	  - author: acme              # label for the new fact
//	    type: Organization
//	    fields: {name: acme}
//	  - author: prod
//	    as: alice                 # signing principal, omit for anonymous
//	    type: Environment
//	    fields: {name: prod}
//	    predecessors: {organization: acme, creator: alice}
//	  - author: sneaky
//	    as: bob
//	    type: Environment.Deleted
//	    predecessors: {environment: prod}
//	    expect: denied            # accepted (default) | denied | dangling
//	assertions:
//	  - type: query
//	    specification: environments
//	    given: [acme]
//	    count: 1
//	    contains: {env: prod}
//
// Labels name facts: every principal's Jinaga.User fact is registered
// under the principal's name before the first step, and each step's label
// names the fact it builds whether or not it was accepted. Referencing a
// refused fact therefore yields a dangling predecessor.
//
// # Assertion Types
//
//   - query: evaluate a specification and check the result count and/or
//     that some result binds each component of contains to a label
//   - distribution: like query, but only the results the principal may
//     receive under the distribution rules
//   - fact_count: the number of facts in the store
//   - signed_by: the labelled fact carries the principal's signature
//
// # Determinism
//
// Key pairs are random, so hashes differ between runs. Traces refer to facts
// by label only, which keeps them stable for golden file comparison.
package harness
