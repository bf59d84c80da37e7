package keypair

import (
	"crypto/sha512"
	"fmt"

	"github.com/ChainSafe/go-schnorrkel"
)

var sr25519SigningContext = []byte("substrate")

// sr25519FromSeed expands a mini secret with ed25519-style clamping, matching
// schnorrkel's ExpandEd25519.
func sr25519FromSeed(seed []byte) (*Keypair, error) {
	h := sha512.Sum512(seed)
	var key, nonce [32]byte
	copy(key[:], h[:32])
	key[0] &= 248
	key[31] &= 63
	key[31] |= 64
	divideScalarByCofactor(key[:])
	copy(nonce[:], h[32:])
	zeroBytes(h[:])
	return sr25519FromParts(key, nonce)
}

// sr25519FromEd25519Bytes loads the 64-byte secret format where the scalar is
// stored multiplied by the cofactor, followed by the signing nonce.
func sr25519FromEd25519Bytes(secret []byte) (*Keypair, error) {
	var key, nonce [32]byte
	copy(key[:], secret[:32])
	divideScalarByCofactor(key[:])
	copy(nonce[:], secret[32:64])
	return sr25519FromParts(key, nonce)
}

func sr25519FromParts(key, nonce [32]byte) (*Keypair, error) {
	sk := schnorrkel.NewSecretKey(key, nonce)
	pub, err := sk.Public()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	encoded := pub.Encode()
	return &Keypair{
		scheme:  Sr25519,
		public:  encoded[:],
		sr:      sk,
		srKey:   key,
		srNonce: nonce,
	}, nil
}

func sr25519Ed25519Bytes(key, nonce [32]byte) []byte {
	out := make([]byte, 64)
	copy(out[:32], key[:])
	multiplyScalarByCofactor(out[:32])
	copy(out[32:], nonce[:])
	return out
}

func sr25519Sign(sk *schnorrkel.SecretKey, message []byte) ([]byte, error) {
	sig, err := sk.Sign(schnorrkel.NewSigningContext(sr25519SigningContext, message))
	if err != nil {
		return nil, err
	}
	encoded := sig.Encode()
	return encoded[:], nil
}

func sr25519Verify(public, message, signature []byte) bool {
	var pubBytes [schnorrkel.PublicKeySize]byte
	copy(pubBytes[:], public)
	pub, err := schnorrkel.NewPublicKey(pubBytes)
	if err != nil {
		return false
	}

	var sigBytes [schnorrkel.SignatureSize]byte
	copy(sigBytes[:], signature)
	sig := new(schnorrkel.Signature)
	if err := sig.Decode(sigBytes); err != nil {
		return false
	}

	ok, err := pub.Verify(sig, schnorrkel.NewSigningContext(sr25519SigningContext, message))
	return err == nil && ok
}

func divideScalarByCofactor(s []byte) {
	low := byte(0)
	for i := len(s) - 1; i >= 0; i-- {
		r := s[i] & 0b0000_0111
		s[i] >>= 3
		s[i] += low
		low = r << 5
	}
}

func multiplyScalarByCofactor(s []byte) {
	high := byte(0)
	for i := range s {
		r := s[i] & 0b1110_0000
		s[i] <<= 3
		s[i] += high
		high = r >> 5
	}
}
