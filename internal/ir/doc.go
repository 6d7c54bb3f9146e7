// Package ir provides the canonical value model for factsync.
//
// This package contains value types and the canonical serialization used for
// content-addressed identity. All other internal packages import ir; ir
// imports nothing internal. This keeps the value model the foundational layer
// with no circular dependencies.
//
// Key design constraints:
//   - IRValue is sealed: IRNull, IRString, IRNumber, IRBool, IRArray, IRObject
//   - IRScalar is the closed subset usable as a fact field value
//   - Numbers are IEEE-754 doubles; NaN and infinities are rejected at the
//     canonical boundary
//   - Strings are canonical only as valid UTF-8 in NFC; MarshalCanonical
//     rejects anything else instead of repairing it
//   - MarshalCanonical is the ONLY serialization used for hashing
package ir
