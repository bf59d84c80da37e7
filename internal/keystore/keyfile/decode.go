package keyfile

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"

	"gear-cli/go-backend/internal/keypair"
	"gear-cli/go-backend/internal/ss58"
)

// derive is swapped in tests to observe when key derivation runs.
var derive = deriveKey

// Decode unlocks file with passphrase and returns the keypair it holds. Each
// step fails with its own sentinel error and nothing is returned on failure.
func Decode(file *EncryptedKeyfile, passphrase string, scheme keypair.Scheme) (*keypair.Keypair, error) {
	if file == nil {
		return nil, ErrMalformedKeyfile
	}
	if !scheme.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedEncoding, keypair.ErrUnknownScheme)
	}
	if err := file.checkEncoding(scheme); err != nil {
		return nil, err
	}

	if len(file.Encoded) > encodedFieldLimit {
		return nil, fmt.Errorf("%w: encoded field is %d bytes", ErrMalformedBase64, len(file.Encoded))
	}
	payload, err := base64.StdEncoding.DecodeString(file.Encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBase64, err)
	}

	if len(payload) < paramsOffset {
		return nil, fmt.Errorf("%w: %d bytes, need %d for salt", ErrTruncatedBuffer, len(payload), paramsOffset)
	}
	params, err := readParams(payload)
	if err != nil {
		return nil, err
	}
	if len(payload) < minPayload {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrTruncatedBuffer, len(payload), minPayload)
	}

	key, err := derive([]byte(passphrase), payload[saltOffset:paramsOffset], params)
	if err != nil {
		return nil, err
	}
	plain, err := openBox(key, payload)
	zeroBytes(key[:])
	if err != nil {
		return nil, err
	}
	defer zeroBytes(plain)

	secret, public, err := splitRecord(plain, scheme)
	if err != nil {
		return nil, err
	}
	kp, err := keypair.FromExportedSecret(scheme, secret)
	if err != nil {
		if errors.Is(err, keypair.ErrInvalidSecret) || errors.Is(err, keypair.ErrInvalidSeed) {
			return nil, fmt.Errorf("%w: %v", ErrPublicKeyMismatch, err)
		}
		return nil, err
	}
	if err := checkPublic(file.Address, scheme, public, kp); err != nil {
		kp.Zero()
		return nil, err
	}
	return kp, nil
}

// checkPublic compares the address, the embedded public key and the key
// derived from the secret.
func checkPublic(address string, scheme keypair.Scheme, embedded []byte, kp *keypair.Keypair) error {
	if !bytes.Equal(embedded, kp.Public()) {
		return fmt.Errorf("%w: embedded public key does not match secret", ErrPublicKeyMismatch)
	}
	addressAccount, err := ss58.DecodeAccountID(address)
	if err != nil {
		return fmt.Errorf("%w: address: %v", ErrPublicKeyMismatch, err)
	}
	embeddedAccount, err := keypair.AccountID(scheme, embedded)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublicKeyMismatch, err)
	}
	if !bytes.Equal(addressAccount, embeddedAccount) || !bytes.Equal(addressAccount, kp.AccountID()) {
		return fmt.Errorf("%w: address %s", ErrPublicKeyMismatch, address)
	}
	return nil
}

// DecodeJSON parses raw and decodes it. When scheme is zero the scheme named
// by the keyfile is used.
func DecodeJSON(raw []byte, passphrase string, scheme keypair.Scheme) (*keypair.Keypair, error) {
	file, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if scheme == 0 {
		if scheme, err = file.Scheme(); err != nil {
			return nil, err
		}
	}
	return Decode(file, passphrase, scheme)
}
