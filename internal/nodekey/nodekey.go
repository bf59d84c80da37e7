// Package nodekey creates and inspects libp2p ed25519 node identity keys.
package nodekey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

var ErrInvalidNodeKey = errors.New("invalid node key")

// Format is the encoding of a node key file.
type Format string

const (
	// FormatHex is the hex secret on one line.
	FormatHex Format = "hex"
	// FormatProtobuf is the libp2p private key protobuf.
	FormatProtobuf Format = "protobuf"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatHex, FormatProtobuf:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown key file format %q", ErrInvalidNodeKey, s)
	}
}

// Key is a node identity: a 32-byte ed25519 secret and its peer id.
type Key struct {
	secret [ed25519.SeedSize]byte
	priv   crypto.PrivKey
	id     peer.ID
}

// Generate draws a fresh secret from r, or crypto/rand when r is nil.
func Generate(r io.Reader) (*Key, error) {
	if r == nil {
		r = rand.Reader
	}
	var secret [ed25519.SeedSize]byte
	if _, err := io.ReadFull(r, secret[:]); err != nil {
		return nil, fmt.Errorf("read node key entropy: %w", err)
	}
	return FromSecret(secret[:])
}

func FromSecret(secret []byte) (*Key, error) {
	if len(secret) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidNodeKey, len(secret), ed25519.SeedSize)
	}
	priv, err := crypto.UnmarshalEd25519PrivateKey(ed25519.NewKeyFromSeed(secret))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNodeKey, err)
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNodeKey, err)
	}
	k := &Key{priv: priv, id: id}
	copy(k.secret[:], secret)
	return k, nil
}

// Parse accepts the secret as hex with an optional 0x prefix.
func Parse(s string) (*Key, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	secret, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNodeKey, err)
	}
	return FromSecret(secret)
}

// ReadFile loads a node key file in either format.
func ReadFile(path string) (*Key, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if k, err := Parse(string(raw)); err == nil {
		return k, nil
	}
	k, err := Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s holds neither a hex secret nor a libp2p key", ErrInvalidNodeKey, path)
	}
	return k, nil
}

// Encode renders k as the contents of a key file.
func (k *Key) Encode(f Format) ([]byte, error) {
	switch f {
	case FormatHex:
		return []byte(k.SecretHex() + "\n"), nil
	case FormatProtobuf:
		return k.Marshal()
	default:
		return nil, fmt.Errorf("%w: unknown key file format %q", ErrInvalidNodeKey, f)
	}
}

func (k *Key) SecretHex() string { return hex.EncodeToString(k.secret[:]) }

func (k *Key) PeerID() peer.ID { return k.id }

// Marshal encodes the private key in the libp2p protobuf format.
func (k *Key) Marshal() ([]byte, error) {
	return crypto.MarshalPrivateKey(k.priv)
}

// Multiaddr is the /p2p/<peer id> address of the node.
func (k *Key) Multiaddr() (multiaddr.Multiaddr, error) {
	return multiaddr.NewMultiaddr("/p2p/" + k.id.String())
}

// Unmarshal reverses Marshal for ed25519 keys.
func Unmarshal(data []byte) (*Key, error) {
	priv, err := crypto.UnmarshalPrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNodeKey, err)
	}
	if priv.Type() != crypto.Ed25519 {
		return nil, fmt.Errorf("%w: key type %s", ErrInvalidNodeKey, priv.Type())
	}
	raw, err := priv.Raw()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNodeKey, err)
	}
	return FromSecret(raw[:ed25519.SeedSize])
}
