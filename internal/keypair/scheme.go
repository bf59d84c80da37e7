package keypair

import (
	"fmt"
	"strings"
)

// Scheme is one of the signature algorithms a keypair can be built for.
// The set is closed; every switch over it must handle all three variants.
type Scheme uint8

const (
	Ecdsa Scheme = iota + 1
	Ed25519
	Sr25519
)

// Schemes lists every supported scheme in declaration order.
var Schemes = []Scheme{Ecdsa, Ed25519, Sr25519}

func (s Scheme) String() string {
	switch s {
	case Ecdsa:
		return "ecdsa"
	case Ed25519:
		return "ed25519"
	case Sr25519:
		return "sr25519"
	default:
		return fmt.Sprintf("scheme(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the declared schemes.
func (s Scheme) Valid() bool {
	switch s {
	case Ecdsa, Ed25519, Sr25519:
		return true
	default:
		return false
	}
}

// ParseScheme maps a canonical scheme name to its Scheme. Unknown names are an
// error; there is no default scheme.
func ParseScheme(name string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ecdsa":
		return Ecdsa, nil
	case "ed25519":
		return Ed25519, nil
	case "sr25519":
		return Sr25519, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownScheme, name)
	}
}

// SeedLength is the length FromSeed expects for s.
func SeedLength(s Scheme) int {
	switch s {
	case Ecdsa, Ed25519, Sr25519:
		return 32
	default:
		return 0
	}
}

// PublicLength is the length of the public key returned by Keypair.Public.
func PublicLength(s Scheme) int {
	switch s {
	case Ecdsa:
		return ecdsaPublicLength
	case Ed25519, Sr25519:
		return 32
	default:
		return 0
	}
}

// SignatureLength is the length of signatures produced under s.
func SignatureLength(s Scheme) int {
	switch s {
	case Ecdsa:
		return ecdsaSignatureLength
	case Ed25519, Sr25519:
		return 64
	default:
		return 0
	}
}
