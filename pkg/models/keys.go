package models

import "time"

const (
	AccountKindKeyfile = "keyfile"
	AccountKindSURI    = "suri"
)

// Account describes a logged-in signing account. It never carries secrets.
type Account struct {
	Address   string    `json:"address"`
	Scheme    string    `json:"scheme"`
	Kind      string    `json:"kind"`
	Name      string    `json:"name,omitempty"`
	PublicKey string    `json:"public_key,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Current   bool      `json:"current,omitempty"`
}

// KeyInfo is the printable view of a keypair. SecretPhrase and SecretSeed are
// only set when the caller asked for them.
type KeyInfo struct {
	Scheme       string `json:"scheme"`
	SecretPhrase string `json:"secret_phrase,omitempty"`
	SecretSeed   string `json:"secret_seed,omitempty"`
	PublicKey    string `json:"public_key"`
	AccountID    string `json:"account_id"`
	SS58Address  string `json:"ss58_address"`
}

type Signature struct {
	Scheme    string `json:"scheme"`
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

type Verification struct {
	Scheme    string `json:"scheme"`
	PublicKey string `json:"public_key"`
	Valid     bool   `json:"valid"`
}

type NodeKey struct {
	Secret    string `json:"secret,omitempty"`
	PeerID    string `json:"peer_id"`
	Multiaddr string `json:"multiaddr"`
}
