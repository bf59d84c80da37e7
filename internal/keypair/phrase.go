package keypair

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/pbkdf2"
)

const (
	phraseEntropyBytes = 16 // 12 words
	phraseRounds       = 2048
	passwordDelimiter  = "///"
)

var (
	ErrInvalidPhrase       = errors.New("invalid recovery phrase")
	ErrInvalidSURI         = errors.New("invalid secret uri")
	ErrUnsupportedJunction = errors.New("derivation junctions are not supported")
)

// Generate creates a fresh keypair from entropy read from rand and returns it
// with its recovery phrase.
func Generate(scheme Scheme, rand io.Reader) (*Keypair, string, error) {
	entropy := make([]byte, phraseEntropyBytes)
	defer zeroBytes(entropy)
	if _, err := io.ReadFull(rand, entropy); err != nil {
		return nil, "", err
	}
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", err
	}
	kp, err := FromPhrase(scheme, phrase, "")
	if err != nil {
		return nil, "", err
	}
	return kp, phrase, nil
}

// FromPhrase derives a keypair from a bip39 recovery phrase. The seed is
// derived from the phrase entropy rather than the phrase text, so phrases are
// compatible with other substrate tooling.
func FromPhrase(scheme Scheme, phrase, password string) (*Keypair, error) {
	seed, err := MiniSecretFromPhrase(phrase, password)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(seed)
	return FromSeed(scheme, seed)
}

// MiniSecretFromPhrase returns the 32-byte seed for phrase and password.
func MiniSecretFromPhrase(phrase, password string) ([]byte, error) {
	phrase = strings.Join(strings.Fields(phrase), " ")
	entropy, err := bip39.EntropyFromMnemonic(phrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPhrase, err)
	}
	defer zeroBytes(entropy)
	seed := pbkdf2.Key(entropy, []byte("mnemonic"+password), phraseRounds, 64, sha512.New)
	out := append([]byte(nil), seed[:32]...)
	zeroBytes(seed)
	return out, nil
}

// FromSURI parses a secret uri: either a recovery phrase or a 0x-prefixed hex
// seed, optionally followed by ///password. The password argument is used when
// the uri carries none.
func FromSURI(scheme Scheme, suri, password string) (*Keypair, error) {
	suri = strings.TrimSpace(suri)
	if suri == "" {
		return nil, ErrInvalidSURI
	}
	secret, embedded, hasPassword := strings.Cut(suri, passwordDelimiter)
	if hasPassword {
		password = embedded
	}
	if strings.Contains(secret, "/") {
		return nil, ErrUnsupportedJunction
	}
	secret = strings.TrimSpace(secret)

	if strings.HasPrefix(secret, "0x") {
		seed, err := hex.DecodeString(strings.TrimPrefix(secret, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSURI, err)
		}
		defer zeroBytes(seed)
		return FromSeed(scheme, seed)
	}
	return FromPhrase(scheme, secret, password)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
