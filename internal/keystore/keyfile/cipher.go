package keyfile

import (
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

func openBox(key *[cipherKeyLen]byte, payload []byte) ([]byte, error) {
	if len(payload) < minPayload {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrTruncatedBuffer, len(payload), minPayload)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], payload[nonceOffset:boxOffset])
	plain, ok := secretbox.Open(nil, payload[boxOffset:], &nonce, key)
	if !ok {
		return nil, ErrAuthenticationFailed
	}
	return plain, nil
}

func sealBox(dst []byte, key *[cipherKeyLen]byte, nonce *[nonceSize]byte, plain []byte) []byte {
	return secretbox.Seal(dst, plain, nonce, key)
}
