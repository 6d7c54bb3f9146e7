// Package signing binds authoring principals to facts with RSA signatures.
//
// Signatures are RSASSA-PKCS1-v1_5 with SHA-512 over the raw fact digest
// (see fact.Digest), never over the base64 hash text. Keys travel as PEM:
// public keys as PKIX "PUBLIC KEY" blocks, private keys as PKCS#8
// "PRIVATE KEY" blocks.
//
// A principal is identified inside a fact graph by its user fact,
// Jinaga.User{publicKey}, so authorization and distribution rules can match
// principals with ordinary specifications.
package signing
