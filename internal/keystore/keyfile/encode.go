package keyfile

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gear-cli/go-backend/internal/keypair"
	"gear-cli/go-backend/internal/ss58"
)

type EncodeOptions struct {
	Prefix      uint16
	Name        string
	GenesisHash string
	// WhenCreated defaults to the current time.
	WhenCreated time.Time
	// Rand defaults to crypto/rand.
	Rand io.Reader
}

// Encode seals kp under passphrase into a keyfile that Decode accepts.
func Encode(kp *keypair.Keypair, passphrase string, opts EncodeOptions) (*EncryptedKeyfile, error) {
	if kp == nil {
		return nil, fmt.Errorf("keyfile: nil keypair")
	}
	scheme := kp.Scheme()
	address, err := kp.Address(opts.Prefix)
	if err != nil {
		return nil, err
	}
	random := opts.Rand
	if random == nil {
		random = rand.Reader
	}
	created := opts.WhenCreated
	if created.IsZero() {
		created = time.Now()
	}

	secret := kp.ExportSecret()
	record := buildRecord(secret, kp.Public())
	zeroBytes(secret)
	defer zeroBytes(record)

	header := make([]byte, boxOffset)
	if _, err := io.ReadFull(random, header[saltOffset:paramsOffset]); err != nil {
		return nil, fmt.Errorf("keyfile: read salt: %w", err)
	}
	putParams(header)
	if _, err := io.ReadFull(random, header[nonceOffset:boxOffset]); err != nil {
		return nil, fmt.Errorf("keyfile: read nonce: %w", err)
	}

	params := scryptParams{N: ScryptN, P: ScryptP, R: ScryptR}
	key, err := derive([]byte(passphrase), header[saltOffset:paramsOffset], params)
	if err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	copy(nonce[:], header[nonceOffset:boxOffset])
	payload := sealBox(header, key, &nonce, record)
	zeroBytes(key[:])

	return &EncryptedKeyfile{
		Encoded: base64.StdEncoding.EncodeToString(payload),
		Encoding: Encoding{
			Content: [2]string{contentPKCS8, scheme.String()},
			Type:    [2]string{typeScrypt, typeXSalsa20Poly},
			Version: EncodingVersion,
		},
		Address: address,
		Meta: Meta{
			GenesisHash: opts.GenesisHash,
			Name:        opts.Name,
			WhenCreated: created.UnixMilli(),
		},
	}, nil
}

// Marshal renders the keyfile as indented JSON.
func (f *EncryptedKeyfile) Marshal() ([]byte, error) {
	return json.MarshalIndent(f, "", "  ")
}

// AccountID decodes the address field.
func (f *EncryptedKeyfile) AccountID() ([]byte, error) {
	return ss58.DecodeAccountID(f.Address)
}
