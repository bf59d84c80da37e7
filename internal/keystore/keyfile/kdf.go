package keyfile

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// Layout of the base64-decoded payload.
const (
	saltOffset   = 0
	saltSize     = 32
	paramsOffset = saltOffset + saltSize
	paramNOffset = paramsOffset
	paramPOffset = paramsOffset + 4
	paramROffset = paramsOffset + 8
	paramsSize   = 12
	nonceOffset  = paramsOffset + paramsSize
	nonceSize    = 24
	boxOffset    = nonceOffset + nonceSize
	minPayload   = boxOffset + secretbox.Overhead
)

// Pinned scrypt parameters. Other values are rejected, not honoured.
const (
	ScryptN       = 1 << 15
	ScryptP       = 1
	ScryptR       = 8
	derivedKeyLen = 64
	cipherKeyLen  = 32
)

type scryptParams struct {
	N, P, R uint32
}

func readParams(payload []byte) (scryptParams, error) {
	if len(payload) < paramsOffset+paramsSize {
		return scryptParams{}, fmt.Errorf("%w: %d bytes, need %d for parameters", ErrTruncatedBuffer, len(payload), paramsOffset+paramsSize)
	}
	p := scryptParams{
		N: binary.LittleEndian.Uint32(payload[paramNOffset:]),
		P: binary.LittleEndian.Uint32(payload[paramPOffset:]),
		R: binary.LittleEndian.Uint32(payload[paramROffset:]),
	}
	if p != (scryptParams{N: ScryptN, P: ScryptP, R: ScryptR}) {
		return scryptParams{}, fmt.Errorf("%w: n=%d p=%d r=%d", ErrInvalidDerivationParams, p.N, p.P, p.R)
	}
	return p, nil
}

func putParams(dst []byte) {
	binary.LittleEndian.PutUint32(dst[paramNOffset:], ScryptN)
	binary.LittleEndian.PutUint32(dst[paramPOffset:], ScryptP)
	binary.LittleEndian.PutUint32(dst[paramROffset:], ScryptR)
}

// deriveKey runs scrypt and returns the 32-byte secretbox key. The caller
// must zero the result.
func deriveKey(passphrase, salt []byte, p scryptParams) (*[cipherKeyLen]byte, error) {
	derived, err := scrypt.Key(passphrase, salt, int(p.N), int(p.R), int(p.P), derivedKeyLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDerivationParams, err)
	}
	var key [cipherKeyLen]byte
	copy(key[:], derived[:cipherKeyLen])
	zeroBytes(derived)
	return &key, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
