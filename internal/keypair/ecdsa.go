package keypair

import (
	"bytes"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/blake2b"
)

const (
	ecdsaPublicLength    = 33
	ecdsaSignatureLength = 65

	// Compact signatures from the secp256k1 package lead with
	// 27 + recovery id, plus 4 when the key is compressed.
	compactRecoveryOffset = 27 + 4
)

func ecdsaFromSeed(seed []byte) (*Keypair, error) {
	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(seed); overflow || scalar.IsZero() {
		return nil, fmt.Errorf("%w: scalar out of range", ErrInvalidSeed)
	}
	priv := secp256k1.NewPrivateKey(&scalar)
	return &Keypair{
		scheme: Ecdsa,
		public: priv.PubKey().SerializeCompressed(),
		ec:     priv,
	}, nil
}

// ecdsaSign returns r‖s‖v over blake2b-256(message), v being the recovery id.
func ecdsaSign(priv *secp256k1.PrivateKey, message []byte) []byte {
	digest := blake2b.Sum256(message)
	compact := ecdsa.SignCompact(priv, digest[:], true)
	out := make([]byte, ecdsaSignatureLength)
	copy(out, compact[1:])
	out[64] = compact[0] - compactRecoveryOffset
	return out
}

func ecdsaVerify(public, message, signature []byte) bool {
	recovery := signature[64]
	if recovery > 3 {
		return false
	}
	compact := make([]byte, ecdsaSignatureLength)
	compact[0] = recovery + compactRecoveryOffset
	copy(compact[1:], signature[:64])

	digest := blake2b.Sum256(message)
	recovered, compressed, err := ecdsa.RecoverCompact(compact, digest[:])
	if err != nil || !compressed {
		return false
	}
	return bytes.Equal(recovered.SerializeCompressed(), public)
}

func ecdsaAccountID(public []byte) []byte {
	sum := blake2b.Sum256(public)
	return sum[:]
}
