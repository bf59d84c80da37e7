package keypair

import "crypto/ed25519"

func ed25519FromSeed(seed []byte) *Keypair {
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Keypair{
		scheme: Ed25519,
		public: append([]byte(nil), pub...),
		ed:     priv,
	}
}
