package keyfile

import (
	"bytes"
	"fmt"

	"gear-cli/go-backend/internal/keypair"
)

// The decrypted record reuses a PKCS#8 ed25519 prefix positionally:
// header ‖ secret ‖ divider ‖ public. No DER parsing is involved.
var (
	pkcs8Header  = []byte{48, 83, 2, 1, 1, 48, 5, 6, 3, 43, 101, 112, 4, 34, 4, 32}
	pkcs8Divider = []byte{161, 35, 3, 33, 0}
)

const (
	headerOffset = 0
	headerSize   = 16
	secretOffset = headerOffset + headerSize
	dividerSize  = 5
)

// recordLayout holds the scheme-dependent offsets of a decrypted record.
type recordLayout struct {
	secretSize    int
	dividerOffset int
	publicOffset  int
	publicSize    int
}

func layoutFor(scheme keypair.Scheme) recordLayout {
	secretSize := keypair.ExportedSecretLength(scheme)
	dividerOffset := secretOffset + secretSize
	return recordLayout{
		secretSize:    secretSize,
		dividerOffset: dividerOffset,
		publicOffset:  dividerOffset + dividerSize,
		publicSize:    keypair.PublicLength(scheme),
	}
}

func (l recordLayout) size() int { return l.publicOffset + l.publicSize }

// splitRecord checks the fixed constants and returns views of the secret and
// public regions.
func splitRecord(plain []byte, scheme keypair.Scheme) (secret, public []byte, err error) {
	l := layoutFor(scheme)
	if len(plain) < secretOffset {
		return nil, nil, fmt.Errorf("%w: record is %d bytes", ErrTruncatedBuffer, len(plain))
	}
	if !bytes.Equal(plain[headerOffset:secretOffset], pkcs8Header) {
		return nil, nil, ErrHeaderMismatch
	}
	if len(plain) < l.publicOffset {
		return nil, nil, fmt.Errorf("%w: %s record is %d bytes, want %d", ErrInvalidSeedLength, scheme, len(plain), l.size())
	}
	if !bytes.Equal(plain[l.dividerOffset:l.publicOffset], pkcs8Divider) {
		return nil, nil, ErrDividerMismatch
	}
	if len(plain) != l.size() {
		return nil, nil, fmt.Errorf("%w: %s record is %d bytes, want %d", ErrTruncatedBuffer, scheme, len(plain), l.size())
	}
	return plain[secretOffset:l.dividerOffset], plain[l.publicOffset:], nil
}

func buildRecord(secret, public []byte) []byte {
	out := make([]byte, 0, headerSize+len(secret)+dividerSize+len(public))
	out = append(out, pkcs8Header...)
	out = append(out, secret...)
	out = append(out, pkcs8Divider...)
	return append(out, public...)
}
