// Package ss58 maps 32-byte account ids to and from their checksummed base58 form.
package ss58

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	// DefaultPrefix is the generic substrate network prefix.
	DefaultPrefix uint16 = 42

	AccountIDLength = 32
	checksumLength  = 2
	maxPrefix       = 16383
)

var checksumPreimage = []byte("SS58PRE")

var (
	ErrInvalidAddress  = errors.New("invalid ss58 address")
	ErrInvalidChecksum = errors.New("invalid ss58 checksum")
	ErrInvalidPrefix   = errors.New("invalid ss58 prefix")
	ErrInvalidAccount  = errors.New("invalid account id length")
)

// Encode renders accountID under the given network prefix.
func Encode(accountID []byte, prefix uint16) (string, error) {
	if len(accountID) != AccountIDLength {
		return "", fmt.Errorf("%w: %d", ErrInvalidAccount, len(accountID))
	}
	ident, err := prefixBytes(prefix)
	if err != nil {
		return "", err
	}
	body := make([]byte, 0, len(ident)+AccountIDLength+checksumLength)
	body = append(body, ident...)
	body = append(body, accountID...)
	sum := checksum(body)
	body = append(body, sum[:checksumLength]...)
	return base58.Encode(body), nil
}

// Decode returns the account id and network prefix carried by address.
func Decode(address string) (accountID []byte, prefix uint16, err error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) < 1 {
		return nil, 0, ErrInvalidAddress
	}

	var prefixLen int
	switch {
	case raw[0] < 64:
		prefixLen = 1
		prefix = uint16(raw[0])
	case raw[0] < 128:
		if len(raw) < 2 {
			return nil, 0, ErrInvalidAddress
		}
		prefixLen = 2
		lower := (raw[0] << 2) | (raw[1] >> 6)
		upper := raw[1] & 0b0011_1111
		prefix = uint16(lower) | uint16(upper)<<8
	default:
		return nil, 0, fmt.Errorf("%w: leading byte %d", ErrInvalidPrefix, raw[0])
	}

	if len(raw) != prefixLen+AccountIDLength+checksumLength {
		return nil, 0, fmt.Errorf("%w: length %d", ErrInvalidAddress, len(raw))
	}
	body := raw[:prefixLen+AccountIDLength]
	sum := checksum(body)
	if !bytes.Equal(sum[:checksumLength], raw[prefixLen+AccountIDLength:]) {
		return nil, 0, ErrInvalidChecksum
	}
	return append([]byte(nil), raw[prefixLen:prefixLen+AccountIDLength]...), prefix, nil
}

// DecodeAccountID is Decode without the prefix.
func DecodeAccountID(address string) ([]byte, error) {
	id, _, err := Decode(address)
	return id, err
}

func prefixBytes(prefix uint16) ([]byte, error) {
	switch {
	case prefix == 46 || prefix == 47:
		return nil, fmt.Errorf("%w: %d is reserved", ErrInvalidPrefix, prefix)
	case prefix < 64:
		return []byte{byte(prefix)}, nil
	case prefix <= maxPrefix:
		first := byte((prefix&0b0000_0000_1111_1100)>>2) | 0b0100_0000
		second := byte(prefix>>8) | byte((prefix&0b0000_0000_0000_0011)<<6)
		return []byte{first, second}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidPrefix, prefix)
	}
}

func checksum(body []byte) [blake2b.Size]byte {
	preimage := make([]byte, 0, len(checksumPreimage)+len(body))
	preimage = append(preimage, checksumPreimage...)
	preimage = append(preimage, body...)
	return blake2b.Sum512(preimage)
}
