package securestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SealJSON marshals v and seals it under passphrase, bound to aad.
func SealJSON(passphrase string, aad []byte, params Params, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(payload)
	return Seal(passphrase, payload, aad, params)
}

// OpenJSON opens data and unmarshals the plaintext into v. A plaintext that
// is not JSON is reported as ErrInvalid.
func OpenJSON(passphrase string, data, aad []byte, v any) error {
	plain, err := Open(passphrase, data, aad)
	if err != nil {
		return err
	}
	defer zeroBytes(plain)
	if err := json.Unmarshal(plain, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// WritePrivateFile writes data through a temp file and rename. The parent
// directory is created 0700 and the file ends up 0600.
func WritePrivateFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
