package nodekey

import (
	"bytes"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const (
	testSecret = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	testPeerID = "12D3KooWA4Xop1JaT3MHxwYMkCepYsv4iPVopMXwCz5iHYdBfeSB"
)

func TestParseKnownKey(t *testing.T) {
	for _, in := range []string{testSecret, "0x" + testSecret, " " + testSecret + "\n"} {
		k, err := Parse(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got := k.PeerID().String(); got != testPeerID {
			t.Fatalf("peer id = %s, want %s", got, testPeerID)
		}
		if k.SecretHex() != testSecret {
			t.Fatalf("secret = %s", k.SecretHex())
		}
		ma, err := k.Multiaddr()
		if err != nil {
			t.Fatalf("multiaddr: %v", err)
		}
		if ma.String() != "/p2p/"+testPeerID {
			t.Fatalf("multiaddr = %s", ma)
		}
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "zz", testSecret[:62], testSecret + "00"} {
		if _, err := Parse(in); !errors.Is(err, ErrInvalidNodeKey) {
			t.Fatalf("parse %q: expected ErrInvalidNodeKey, got %v", in, err)
		}
	}
}

func TestGenerateIsFreshAndRoundTrips(t *testing.T) {
	a, err := Generate(rand.Reader)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := Generate(nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a.PeerID() == b.PeerID() {
		t.Fatal("two generated keys share a peer id")
	}
	raw, err := a.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.PeerID() != a.PeerID() || back.SecretHex() != a.SecretHex() {
		t.Fatal("marshal round trip changed the key")
	}
}

func TestGenerateShortEntropy(t *testing.T) {
	if _, err := Generate(bytes.NewReader(make([]byte, 8))); err == nil {
		t.Fatal("expected error on short entropy")
	}
}

func TestReadFileEitherFormat(t *testing.T) {
	k, err := Parse(testSecret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	dir := t.TempDir()
	for _, f := range []Format{FormatHex, FormatProtobuf} {
		t.Run(string(f), func(t *testing.T) {
			data, err := k.Encode(f)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			path := filepath.Join(dir, string(f)+".key")
			if err := os.WriteFile(path, data, 0o600); err != nil {
				t.Fatalf("write: %v", err)
			}
			back, err := ReadFile(path)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if back.PeerID().String() != testPeerID {
				t.Fatalf("peer id = %s", back.PeerID())
			}
		})
	}

	junk := filepath.Join(dir, "junk.key")
	if err := os.WriteFile(junk, []byte{0x08, 0x01, 0x12, 0x02, 0xff}, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadFile(junk); !errors.Is(err, ErrInvalidNodeKey) {
		t.Fatalf("expected ErrInvalidNodeKey, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"hex": FormatHex, " Protobuf ": FormatProtobuf} {
		if got, err := ParseFormat(in); err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("pem"); !errors.Is(err, ErrInvalidNodeKey) {
		t.Fatalf("expected ErrInvalidNodeKey, got %v", err)
	}
}
