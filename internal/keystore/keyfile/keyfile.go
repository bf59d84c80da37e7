// Package keyfile reads and writes password-protected JSON keyfiles in the
// browser-extension wallet export format (pkcs8 body, scrypt key derivation,
// xsalsa20-poly1305 encryption).
package keyfile

import (
	"encoding/json"
	"errors"
	"fmt"

	"gear-cli/go-backend/internal/keypair"
)

const (
	// EncodingVersion is the only encoding version this package reads.
	EncodingVersion = "3"

	contentPKCS8      = "pkcs8"
	typeScrypt        = "scrypt"
	typeXSalsa20Poly  = "xsalsa20-poly1305"
	maxKeyfileSize    = 64 << 10
	encodedFieldLimit = 16 << 10
)

var (
	ErrMalformedKeyfile           = errors.New("malformed keyfile")
	ErrUnsupportedEncodingVersion = errors.New("unsupported keyfile encoding")
	// ErrUnsupportedEncoding matches ErrUnsupportedEncodingVersion with errors.Is.
	ErrUnsupportedEncoding     = fmt.Errorf("%w: unsupported algorithm", ErrUnsupportedEncodingVersion)
	ErrSchemeMismatch          = errors.New("keyfile scheme mismatch")
	ErrMalformedBase64         = errors.New("malformed base64 payload")
	ErrTruncatedBuffer         = errors.New("truncated keyfile payload")
	ErrInvalidDerivationParams = errors.New("invalid key derivation parameters")
	ErrAuthenticationFailed    = errors.New("keyfile authentication failed")
	ErrHeaderMismatch          = errors.New("pkcs8 header mismatch")
	ErrDividerMismatch         = errors.New("pkcs8 divider mismatch")
	ErrInvalidSeedLength       = keypair.ErrInvalidSeedLength
	ErrPublicKeyMismatch       = errors.New("keyfile public key mismatch")
)

// EncryptedKeyfile is the JSON document exported by wallet tooling.
type EncryptedKeyfile struct {
	Encoded  string   `json:"encoded"`
	Encoding Encoding `json:"encoding"`
	Address  string   `json:"address"`
	Meta     Meta     `json:"meta"`
}

type Encoding struct {
	Content [2]string `json:"content"`
	Type    [2]string `json:"type"`
	Version string    `json:"version"`
}

type Meta struct {
	GenesisHash string `json:"genesisHash"`
	Name        string `json:"name"`
	WhenCreated int64  `json:"whenCreated"`
}

// Parse validates raw against the keyfile document shape and decodes it.
// It does not touch the encrypted payload.
func Parse(raw []byte) (*EncryptedKeyfile, error) {
	if len(raw) == 0 || len(raw) > maxKeyfileSize {
		return nil, fmt.Errorf("%w: size %d", ErrMalformedKeyfile, len(raw))
	}
	if err := validateDocument(raw); err != nil {
		return nil, err
	}
	var file EncryptedKeyfile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKeyfile, err)
	}
	return &file, nil
}

// Scheme reports the scheme named by the keyfile body.
func (f *EncryptedKeyfile) Scheme() (keypair.Scheme, error) {
	scheme, err := keypair.ParseScheme(f.Encoding.Content[1])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedEncoding, err)
	}
	return scheme, nil
}

// checkEncoding pins the algorithm identifiers before any cryptographic work.
func (f *EncryptedKeyfile) checkEncoding(scheme keypair.Scheme) error {
	enc := f.Encoding
	if enc.Version != EncodingVersion {
		return fmt.Errorf("%w: version %q", ErrUnsupportedEncodingVersion, enc.Version)
	}
	if enc.Type != [2]string{typeScrypt, typeXSalsa20Poly} {
		return fmt.Errorf("%w: type %v", ErrUnsupportedEncoding, enc.Type)
	}
	if enc.Content[0] != contentPKCS8 {
		return fmt.Errorf("%w: content %q", ErrUnsupportedEncoding, enc.Content[0])
	}
	if enc.Content[1] != scheme.String() {
		return fmt.Errorf("%w: keyfile holds %q, requested %s", ErrSchemeMismatch, enc.Content[1], scheme)
	}
	return nil
}
