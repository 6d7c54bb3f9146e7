package ir

// Version constants for the canonical form and engine.
const (
	// CanonicalVersion identifies the fact canonicalization grammar.
	// Any change to canonical output MUST bump this.
	CanonicalVersion = "1"

	// EngineVersion is the factsync engine version.
	EngineVersion = "0.1.0"
)
