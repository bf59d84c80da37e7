// Package keypair implements signing keypairs over the closed set of supported
// schemes (ecdsa over secp256k1, ed25519 and sr25519 schnorrkel).
package keypair

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"gear-cli/go-backend/internal/ss58"

	"github.com/ChainSafe/go-schnorrkel"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var (
	ErrUnknownScheme     = errors.New("unknown signature scheme")
	ErrInvalidSeedLength = errors.New("invalid seed length")
	ErrInvalidSeed       = errors.New("invalid seed")
	ErrInvalidSecret     = errors.New("invalid secret key")
	ErrInvalidPublicKey  = errors.New("invalid public key")
)

// Keypair is a validated in-memory keypair. The zero value is not usable;
// construct one with FromSeed, FromExportedSecret, FromPhrase, FromSURI or
// Generate.
type Keypair struct {
	scheme Scheme
	seed   []byte
	public []byte

	ed ed25519.PrivateKey
	sr *schnorrkel.SecretKey
	ec *secp256k1.PrivateKey

	srKey   [32]byte
	srNonce [32]byte
}

// FromSeed derives a keypair deterministically from a 32-byte seed.
func FromSeed(scheme Scheme, seed []byte) (*Keypair, error) {
	if !scheme.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, scheme)
	}
	if len(seed) != SeedLength(scheme) {
		return nil, fmt.Errorf("%w: %s expects %d bytes, got %d", ErrInvalidSeedLength, scheme, SeedLength(scheme), len(seed))
	}

	var (
		kp  *Keypair
		err error
	)
	switch scheme {
	case Ecdsa:
		kp, err = ecdsaFromSeed(seed)
	case Ed25519:
		kp = ed25519FromSeed(seed)
	case Sr25519:
		kp, err = sr25519FromSeed(seed)
	}
	if err != nil {
		return nil, err
	}
	kp.seed = append([]byte(nil), seed...)
	return kp, nil
}

// FromExportedSecret rebuilds a keypair from the secret encoding written into
// keyfiles (see ExportedSecretLength).
func FromExportedSecret(scheme Scheme, secret []byte) (*Keypair, error) {
	if !scheme.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, scheme)
	}
	if len(secret) != ExportedSecretLength(scheme) {
		return nil, fmt.Errorf("%w: %s expects %d bytes, got %d", ErrInvalidSecret, scheme, ExportedSecretLength(scheme), len(secret))
	}
	switch scheme {
	case Ecdsa:
		return FromSeed(Ecdsa, secret)
	case Ed25519:
		kp, err := FromSeed(Ed25519, secret[:ed25519.SeedSize])
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(kp.public, secret[ed25519.SeedSize:]) {
			return nil, fmt.Errorf("%w: ed25519 secret carries a foreign public key", ErrInvalidSecret)
		}
		return kp, nil
	default:
		return sr25519FromEd25519Bytes(secret)
	}
}

// ExportedSecretLength is the size of the secret region a keyfile stores for
// scheme: the raw scalar for ecdsa, seed‖public for ed25519 and the
// ed25519-format expanded secret for sr25519.
func ExportedSecretLength(scheme Scheme) int {
	switch scheme {
	case Ecdsa:
		return 32
	case Ed25519, Sr25519:
		return 64
	default:
		return 0
	}
}

func (k *Keypair) Scheme() Scheme { return k.scheme }

// Public returns a copy of the public key.
func (k *Keypair) Public() []byte { return append([]byte(nil), k.public...) }

// Seed returns the 32-byte seed the keypair was derived from. Keypairs rebuilt
// from an sr25519 expanded secret have no seed.
func (k *Keypair) Seed() ([]byte, bool) {
	if len(k.seed) == 0 {
		return nil, false
	}
	return append([]byte(nil), k.seed...), true
}

// ExportSecret returns the keyfile secret encoding of the keypair.
func (k *Keypair) ExportSecret() []byte {
	switch k.scheme {
	case Ecdsa:
		return append([]byte(nil), k.seed...)
	case Ed25519:
		return append([]byte(nil), k.ed...)
	default:
		return sr25519Ed25519Bytes(k.srKey, k.srNonce)
	}
}

// AccountID returns the 32-byte identifier addresses are built from.
func (k *Keypair) AccountID() []byte {
	id, _ := AccountID(k.scheme, k.public)
	return id
}

// Address renders the account id under the given network prefix.
func (k *Keypair) Address(prefix uint16) (string, error) {
	return ss58.Encode(k.AccountID(), prefix)
}

// Sign signs message. ed25519 and ecdsa signatures are deterministic; sr25519
// signatures are randomized.
func (k *Keypair) Sign(message []byte) ([]byte, error) {
	switch k.scheme {
	case Ecdsa:
		return ecdsaSign(k.ec, message), nil
	case Ed25519:
		return ed25519.Sign(k.ed, message), nil
	case Sr25519:
		return sr25519Sign(k.sr, message)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, k.scheme)
	}
}

// Verify checks signature against the keypair's own public key.
func (k *Keypair) Verify(message, signature []byte) bool {
	return Verify(k.scheme, k.public, message, signature)
}

// Verify checks signature over message for public under scheme. Malformed
// keys or signatures yield false.
func Verify(scheme Scheme, public, message, signature []byte) bool {
	if len(public) != PublicLength(scheme) || len(signature) != SignatureLength(scheme) {
		return false
	}
	switch scheme {
	case Ecdsa:
		return ecdsaVerify(public, message, signature)
	case Ed25519:
		return ed25519.Verify(ed25519.PublicKey(public), message, signature)
	case Sr25519:
		return sr25519Verify(public, message, signature)
	default:
		return false
	}
}

// AccountID maps a public key to its 32-byte account id. ed25519 and sr25519
// public keys are their own account id; ecdsa keys are hashed.
func AccountID(scheme Scheme, public []byte) ([]byte, error) {
	if len(public) != PublicLength(scheme) {
		return nil, fmt.Errorf("%w: %s expects %d bytes, got %d", ErrInvalidPublicKey, scheme, PublicLength(scheme), len(public))
	}
	switch scheme {
	case Ecdsa:
		return ecdsaAccountID(public), nil
	case Ed25519, Sr25519:
		return append([]byte(nil), public...), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownScheme, scheme)
	}
}

// Zero wipes the secret material held by k. k must not be used afterwards.
func (k *Keypair) Zero() {
	zeroBytes(k.seed)
	zeroBytes(k.ed)
	zeroBytes(k.srKey[:])
	zeroBytes(k.srNonce[:])
	if k.ec != nil {
		k.ec.Zero()
	}
	k.sr = nil
}
