package signing

import (
	"crypto/rsa"
	"errors"
	"math/big"

	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/ir"
)

// UserType is the fact type that identifies a principal in a graph.
const UserType = "Jinaga.User"

// ErrNoPrivateKey is returned when a principal without key material is asked
// to sign.
var ErrNoPrivateKey = errors.New("principal has no private key")

// ErrKeyMismatch is returned when a public key does not belong to the private
// key it was paired with.
var ErrKeyMismatch = errors.New("public key does not match private key")

// Principal is an identity that may author facts. A principal built from a
// public key alone can be authorized and matched against distribution rules
// but cannot sign.
type Principal struct {
	publicKey string
	key       *rsa.PrivateKey
}

// NewPrincipal returns a verification-only principal.
func NewPrincipal(publicKeyPEM string) *Principal {
	return &Principal{publicKey: publicKeyPEM}
}

// FromKeyPair returns a principal able to sign. Its identity is derived from
// the private key, in the same PEM form its signatures carry. A non-empty
// kp.PublicKey must be the same key, though its PEM text may differ in
// formatting; otherwise FromKeyPair fails with ErrKeyMismatch.
func FromKeyPair(kp *KeyPair) (*Principal, error) {
	key, err := ParsePrivateKey(kp.PrivateKey)
	if err != nil {
		return nil, err
	}
	if kp.PublicKey != "" {
		claimed, err := ParsePublicKey(kp.PublicKey)
		if err != nil {
			return nil, err
		}
		if !claimed.Equal(&key.PublicKey) {
			return nil, ErrKeyMismatch
		}
	}
	pub, err := EncodePublicKey(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Principal{publicKey: pub, key: key}, nil
}

// PublicKey returns the PEM public key.
func (p *Principal) PublicKey() string {
	return p.publicKey
}

// CanSign reports whether the principal holds key material.
func (p *Principal) CanSign() bool {
	return p != nil && p.key != nil
}

// UserFact returns the Jinaga.User fact for this principal.
func (p *Principal) UserFact() fact.Fact {
	return UserFact(p.publicKey)
}

// Reference returns the reference of the principal's user fact.
func (p *Principal) Reference() fact.Reference {
	return p.UserFact().Reference()
}

// Sign signs f with the principal's key.
func (p *Principal) Sign(f fact.Fact) (FactSignature, error) {
	if !p.CanSign() {
		return FactSignature{}, ErrNoPrivateKey
	}
	return signWithKey(f, p.key)
}

// UserFact builds the user fact for a PEM public key.
func UserFact(publicKeyPEM string) fact.Fact {
	return fact.MustNew(UserType, fact.Fields{"publicKey": ir.IRString(publicKeyPEM)})
}

// PrincipalFromUserFact recovers a verification-only principal from a user
// fact. ok is false for facts of any other shape.
func PrincipalFromUserFact(f fact.Fact) (*Principal, bool) {
	if f.Type() != UserType {
		return nil, false
	}
	v, found := f.Field("publicKey")
	if !found {
		return nil, false
	}
	s, isString := v.(ir.IRString)
	if !isString {
		return nil, false
	}
	return NewPrincipal(string(s)), true
}

// WithSingleUse runs fn with a freshly generated principal. The private key
// is usable only for the duration of fn: when fn returns or panics, the
// exported private and CRT values are zeroed and the key is dropped. The
// principal stays usable for verification afterwards.
func WithSingleUse(fn func(p *Principal) error) error {
	kp, err := Generate()
	if err != nil {
		return err
	}
	p, err := FromKeyPair(kp)
	kp.PrivateKey = ""
	if err != nil {
		return err
	}
	defer p.wipe()
	return fn(p)
}

func (p *Principal) wipe() {
	if p.key == nil {
		return
	}
	k := p.key
	zero(k.D)
	for _, prime := range k.Primes {
		zero(prime)
	}
	zero(k.Precomputed.Dp)
	zero(k.Precomputed.Dq)
	zero(k.Precomputed.Qinv)
	for _, crt := range k.Precomputed.CRTValues {
		zero(crt.Exp)
		zero(crt.Coeff)
		zero(crt.R)
	}
	// The remaining precomputed state is unexported; drop it with the key.
	k.Precomputed = rsa.PrecomputedValues{}
	p.key = nil
}

func zero(n *big.Int) {
	if n != nil {
		n.SetInt64(0)
	}
}
