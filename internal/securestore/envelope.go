// Package securestore seals small secrets (secret URIs of logged-in accounts)
// at rest under a passphrase.
package securestore

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 1
	saltSize        = 16
	filePrefix      = "GEARSEAL1\n"
	kdfArgon2id     = "argon2id"
)

var (
	ErrAuthFailed   = errors.New("securestore authentication failed")
	ErrInvalid      = errors.New("securestore envelope is invalid")
	ErrNotEnveloped = errors.New("securestore data is not sealed")
)

// Params are the argon2id cost settings written into every envelope.
type Params struct {
	Time     uint32
	MemoryKB uint32
	Threads  uint8
}

// DefaultParams is used when a zero Params is passed to Seal.
var DefaultParams = Params{Time: 2, MemoryKB: 64 * 1024, Threads: 1}

const (
	maxTime     = 16
	maxMemoryKB = 1024 * 1024
)

type Envelope struct {
	Version     uint32 `json:"version"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

// Seal encrypts plaintext and returns the prefixed JSON envelope. aad is bound
// to the ciphertext and must be passed again to Open.
func Seal(passphrase string, plaintext, aad []byte, params Params) ([]byte, error) {
	env, err := SealEnvelope(passphrase, plaintext, aad, params)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append([]byte(filePrefix), raw...), nil
}

func SealEnvelope(passphrase string, plaintext, aad []byte, params Params) (*Envelope, error) {
	if params == (Params{}) {
		params = DefaultParams
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key := deriveKey(passphrase, salt, params)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return &Envelope{
		Version:     envelopeVersion,
		KDF:         kdfArgon2id,
		KDFTime:     params.Time,
		KDFMemoryKB: params.MemoryKB,
		KDFThreads:  params.Threads,
		Salt:        salt,
		Nonce:       nonce,
		Ciphertext:  aead.Seal(nil, nonce, plaintext, aad),
	}, nil
}

// Open reverses Seal. A wrong passphrase, wrong aad or tampered ciphertext all
// yield ErrAuthFailed.
func Open(passphrase string, data, aad []byte) ([]byte, error) {
	if !strings.HasPrefix(string(data), filePrefix) {
		return nil, ErrNotEnveloped
	}
	var env Envelope
	if err := json.Unmarshal(data[len(filePrefix):], &env); err != nil {
		return nil, ErrInvalid
	}
	return OpenEnvelope(passphrase, &env, aad)
}

func OpenEnvelope(passphrase string, env *Envelope, aad []byte) ([]byte, error) {
	if env == nil || env.Version != envelopeVersion || env.KDF != kdfArgon2id {
		return nil, ErrInvalid
	}
	params := Params{Time: env.KDFTime, MemoryKB: env.KDFMemoryKB, Threads: env.KDFThreads}
	if err := params.validate(); err != nil {
		return nil, err
	}
	if len(env.Salt) != saltSize || len(env.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrInvalid
	}
	key := deriveKey(passphrase, env.Salt, params)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, aad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// validate bounds the cost an envelope read from disk can demand.
func (p Params) validate() error {
	if p.Time == 0 || p.Time > maxTime || p.MemoryKB < 8 || p.MemoryKB > maxMemoryKB || p.Threads == 0 {
		return fmt.Errorf("%w: kdf params %+v", ErrInvalid, p)
	}
	return nil
}

func deriveKey(passphrase string, salt []byte, p Params) []byte {
	return argon2.IDKey([]byte(passphrase), salt, p.Time, p.MemoryKB, p.Threads, chacha20poly1305.KeySize)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
