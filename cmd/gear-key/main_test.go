package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gear-cli/go-backend/internal/keystore"
	"gear-cli/go-backend/internal/keystore/keyfile"
	"gear-cli/go-backend/internal/testutil/fsperm"
	"gear-cli/go-backend/pkg/models"
)

const (
	devPhrase     = "bottom drive obey lake curtain smoke basket hold race lonely fit walk"
	devSr25519    = "5DfhGyQdFobKM8NsWvEeAKk5EQQgYe9AydgJ7rMB6E1EqRzV"
	goldenAddress = "5Hax9tpSjfiX1nYrqhFf8F3sLiaa2ZfPv2VeDQzPBLzKNjRq"
	goldenKeyfile = `{"encoded":"X/sAaS3pNejnqvbHk0lne8tcXXmTu2gPQgXvtbf3azgAgAAAAQAAAAgAAABxGGfnP+9PCbP7Gp0+7jxxl8twTthzIq4pLfC0m6NvA8hk557A4dkDapszVKhlyDhTvnQQE2WwhqzkfDwvq0XtFl9PDW6ShvVM/lSVLkZTF6QGnTzRZ2dwT7+X5v+gjFIJftI5z3vLFg7NM+NXy7kxU039iooVTxYDqzCnMSjXMBtnY2cqNedlGUcrbDGE0lNdWqu3MWT9J27kmysC","encoding":{"content":["pkcs8","sr25519"],"type":["scrypt","xsalsa20-poly1305"],"version":"3"},"address":"5Hax9tpSjfiX1nYrqhFf8F3sLiaa2ZfPv2VeDQzPBLzKNjRq","meta":{"genesisHash":"","name":"GEAR","whenCreated":1659544420591}}`
)

type cliEnv struct {
	dir      string
	passFile string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("GEAR_CLI_CONFIG", "")
	t.Setenv("GEAR_CLI_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("GEAR_CLI_SS58_PREFIX", "")
	t.Setenv("GEAR_CLI_SCHEME", "")
	t.Setenv("GEAR_CLI_LOG_LEVEL", "")
	passFile := filepath.Join(dir, "pass")
	if err := os.WriteFile(passFile, []byte("000000\n"), 0o600); err != nil {
		t.Fatalf("write passphrase: %v", err)
	}
	return cliEnv{dir: dir, passFile: passFile}
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func decodeOut[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	return v
}

func TestInspectDevPhrase(t *testing.T) {
	newCLIEnv(t)
	code, out, errOut := runCLI(t, "inspect", devPhrase)
	if code != exitOK {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	info := decodeOut[models.KeyInfo](t, out)
	if info.SS58Address != devSr25519 || info.Scheme != "sr25519" {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.SecretSeed == "" {
		t.Fatal("inspect should show the secret seed")
	}
}

func TestUnknownSchemeRejected(t *testing.T) {
	newCLIEnv(t)
	if code, _, _ := runCLI(t, "inspect", "-scheme", "rsa", devPhrase); code != exitInvalidInput {
		t.Fatalf("exit %d, want %d", code, exitInvalidInput)
	}
	if code, _, _ := runCLI(t, "bogus"); code != exitInvalidInput {
		t.Fatalf("unknown command exit %d", code)
	}
	if code, _, _ := runCLI(t); code != exitInvalidInput {
		t.Fatalf("no command exit %d", code)
	}
}

func TestGenerateAndInspectAgree(t *testing.T) {
	newCLIEnv(t)
	for _, scheme := range []string{"sr25519", "ed25519", "ecdsa"} {
		code, out, errOut := runCLI(t, "generate", "-scheme", scheme)
		if code != exitOK {
			t.Fatalf("%s generate exit %d: %s", scheme, code, errOut)
		}
		gen := decodeOut[models.KeyInfo](t, out)
		if len(strings.Fields(gen.SecretPhrase)) != 12 {
			t.Fatalf("unexpected phrase %q", gen.SecretPhrase)
		}
		code, out, errOut = runCLI(t, "inspect", "-scheme", scheme, gen.SecretPhrase)
		if code != exitOK {
			t.Fatalf("%s inspect exit %d: %s", scheme, code, errOut)
		}
		if got := decodeOut[models.KeyInfo](t, out); got.PublicKey != gen.PublicKey {
			t.Fatalf("%s: inspect public %s, generate public %s", scheme, got.PublicKey, gen.PublicKey)
		}
	}
}

func TestSignVerifyWithSURI(t *testing.T) {
	newCLIEnv(t)
	code, out, errOut := runCLI(t, "sign", "-scheme", "ed25519", "-suri", devPhrase, "hello")
	if code != exitOK {
		t.Fatalf("sign exit %d: %s", code, errOut)
	}
	sig := decodeOut[models.Signature](t, out)

	code, out, _ = runCLI(t, "inspect", "-scheme", "ed25519", devPhrase)
	if code != exitOK {
		t.Fatalf("inspect exit %d", code)
	}
	pub := decodeOut[models.KeyInfo](t, out).PublicKey

	code, out, errOut = runCLI(t, "verify", "-scheme", "ed25519", "-public", pub, sig.Signature, "hello")
	if code != exitOK || !decodeOut[models.Verification](t, out).Valid {
		t.Fatalf("verify exit %d: %s %s", code, out, errOut)
	}
	code, _, _ = runCLI(t, "verify", "-scheme", "ed25519", "-public", pub, sig.Signature, "hellO")
	if code != exitVerifyFailed {
		t.Fatalf("tampered message exit %d, want %d", code, exitVerifyFailed)
	}
	code, _, _ = runCLI(t, "verify", "-scheme", "ed25519", "-public", pub, "0x00", "hello")
	if code != exitVerifyFailed {
		t.Fatalf("short signature exit %d, want %d", code, exitVerifyFailed)
	}
}

func TestKeyfileLoginFlow(t *testing.T) {
	env := newCLIEnv(t)
	path := filepath.Join(env.dir, "gear.json")
	if err := os.WriteFile(path, []byte(goldenKeyfile), 0o600); err != nil {
		t.Fatalf("write keyfile: %v", err)
	}

	wrong := filepath.Join(env.dir, "wrong")
	if err := os.WriteFile(wrong, []byte("123456"), 0o600); err != nil {
		t.Fatalf("write passphrase: %v", err)
	}
	if code, _, _ := runCLI(t, "login", "-keyfile", path, "-passphrase-file", wrong); code != exitAuthFailed {
		t.Fatalf("login with wrong passphrase exit %d, want %d", code, exitAuthFailed)
	}

	code, out, errOut := runCLI(t, "login", "-keyfile", path, "-passphrase-file", env.passFile)
	if code != exitOK {
		t.Fatalf("login exit %d: %s", code, errOut)
	}
	if acct := decodeOut[models.Account](t, out); acct.Address != goldenAddress {
		t.Fatalf("login account %+v", acct)
	}

	code, out, _ = runCLI(t, "whoami")
	if code != exitOK || decodeOut[models.Account](t, out).Address != goldenAddress {
		t.Fatalf("whoami exit %d: %s", code, out)
	}

	metrics := filepath.Join(env.dir, "metrics.prom")
	code, out, errOut = runCLI(t, "-metrics-file", metrics, "sign", "-passphrase-file", env.passFile, "0x68656c6c6f")
	if code != exitOK {
		t.Fatalf("sign exit %d: %s", code, errOut)
	}
	sig := decodeOut[models.Signature](t, out)
	if sig.Signer != goldenAddress {
		t.Fatalf("signer %s", sig.Signer)
	}
	prom, err := os.ReadFile(metrics)
	if err != nil || !strings.Contains(string(prom), `gear_keystore_unlock_total{result="ok"} 1`) {
		t.Fatalf("metrics file: %v %s", err, prom)
	}

	code, out, errOut = runCLI(t, "verify", sig.Signature, "hello")
	if code != exitOK || !decodeOut[models.Verification](t, out).Valid {
		t.Fatalf("verify against logged-in account exit %d: %s %s", code, out, errOut)
	}

	if code, _, _ := runCLI(t, "logout"); code != exitOK {
		t.Fatalf("logout exit %d", code)
	}
	if code, _, _ := runCLI(t, "whoami"); code != exitNotLoggedIn {
		t.Fatalf("whoami after logout exit %d, want %d", code, exitNotLoggedIn)
	}
}

func TestSURILoginAndAccounts(t *testing.T) {
	env := newCLIEnv(t)
	code, out, errOut := runCLI(t, "login", "-suri", devPhrase, "-passphrase-file", env.passFile)
	if code != exitOK {
		t.Fatalf("login exit %d: %s", code, errOut)
	}
	if acct := decodeOut[models.Account](t, out); acct.Address != devSr25519 || acct.Kind != models.AccountKindSURI {
		t.Fatalf("login account %+v", acct)
	}
	code, out, _ = runCLI(t, "accounts")
	if code != exitOK {
		t.Fatalf("accounts exit %d", code)
	}
	accounts := decodeOut[[]models.Account](t, out)
	if len(accounts) != 1 || !accounts[0].Current {
		t.Fatalf("accounts %+v", accounts)
	}
	if code, _, _ := runCLI(t, "login", "-suri", devPhrase, "-keyfile", "x"); code != exitInvalidInput {
		t.Fatalf("login with both sources exit %d", code)
	}
}

func TestDecodeCommand(t *testing.T) {
	env := newCLIEnv(t)
	path := filepath.Join(env.dir, "gear.json")
	if err := os.WriteFile(path, []byte(goldenKeyfile), 0o600); err != nil {
		t.Fatalf("write keyfile: %v", err)
	}
	code, out, errOut := runCLI(t, "decode", "-passphrase-file", env.passFile, path)
	if code != exitOK {
		t.Fatalf("decode exit %d: %s", code, errOut)
	}
	if info := decodeOut[models.KeyInfo](t, out); info.SS58Address != goldenAddress || info.SecretSeed != "" {
		t.Fatalf("decode info %+v", info)
	}
	if code, _, _ := runCLI(t, "decode", "-scheme", "ed25519", "-passphrase-file", env.passFile, path); code != exitKeyfileInvalid {
		t.Fatalf("scheme mismatch exit %d, want %d", code, exitKeyfileInvalid)
	}
}

func TestNodeKeyCommands(t *testing.T) {
	env := newCLIEnv(t)
	out := filepath.Join(env.dir, "node.key")
	code, stdout, errOut := runCLI(t, "generate-node-key", "-out", out)
	if code != exitOK {
		t.Fatalf("generate exit %d: %s", code, errOut)
	}
	gen := decodeOut[models.NodeKey](t, stdout)
	if gen.Secret != "" || !strings.HasPrefix(gen.Multiaddr, "/p2p/") {
		t.Fatalf("generate output %+v", gen)
	}
	code, stdout, _ = runCLI(t, "inspect-node-key", "-file", out)
	if code != exitOK || decodeOut[models.NodeKey](t, stdout).PeerID != gen.PeerID {
		t.Fatalf("inspect exit %d: %s", code, stdout)
	}
	code, stdout, _ = runCLI(t, "inspect-node-key", "0x000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	if code != exitOK || decodeOut[models.NodeKey](t, stdout).PeerID != "12D3KooWA4Xop1JaT3MHxwYMkCepYsv4iPVopMXwCz5iHYdBfeSB" {
		t.Fatalf("inspect exit %d: %s", code, stdout)
	}
	if code, _, _ := runCLI(t, "inspect-node-key", "abc"); code != exitInvalidInput {
		t.Fatalf("bad secret exit %d", code)
	}

	pb := filepath.Join(env.dir, "node.pb")
	code, stdout, errOut = runCLI(t, "generate-node-key", "-out", pb, "-format", "protobuf")
	if code != exitOK {
		t.Fatalf("generate protobuf exit %d: %s", code, errOut)
	}
	gen = decodeOut[models.NodeKey](t, stdout)
	fsperm.AssertPrivateFilePerm(t, pb)
	code, stdout, _ = runCLI(t, "inspect-node-key", "-file", pb)
	if code != exitOK || decodeOut[models.NodeKey](t, stdout).PeerID != gen.PeerID {
		t.Fatalf("inspect protobuf exit %d: %s", code, stdout)
	}
	if code, _, _ := runCLI(t, "generate-node-key", "-format", "pem"); code != exitInvalidInput {
		t.Fatalf("unknown format exit %d", code)
	}
}

func TestDecodeThrottlesAcrossRuns(t *testing.T) {
	env := newCLIEnv(t)
	path := filepath.Join(env.dir, "gear.json")
	if err := os.WriteFile(path, []byte(goldenKeyfile), 0o600); err != nil {
		t.Fatalf("write keyfile: %v", err)
	}
	wrong := filepath.Join(env.dir, "wrong")
	if err := os.WriteFile(wrong, []byte("123456"), 0o600); err != nil {
		t.Fatalf("write passphrase: %v", err)
	}

	// Defaults allow a burst of three.
	for i := 0; i < 3; i++ {
		if code, _, errOut := runCLI(t, "decode", "-passphrase-file", wrong, path); code != exitAuthFailed {
			t.Fatalf("attempt %d exit %d, want %d: %s", i, code, exitAuthFailed, errOut)
		}
	}
	code, _, errOut := runCLI(t, "decode", "-passphrase-file", wrong, path)
	if code != exitThrottled || !strings.Contains(errOut, keystore.ErrThrottled.Error()) {
		t.Fatalf("4th attempt exit %d, want %d: %s", code, exitThrottled, errOut)
	}
	if code, _, _ := runCLI(t, "decode", "-passphrase-file", env.passFile, path); code != exitThrottled {
		t.Fatalf("correct passphrase while throttled exit %d, want %d", code, exitThrottled)
	}
	fsperm.AssertPrivateFilePerm(t, filepath.Join(env.dir, "data", "keystore", keystore.AttemptLogFile))
}

func TestExitCodes(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{keyfile.ErrAuthenticationFailed, exitAuthFailed},
		{fmt.Errorf("%w: retry in 10s", keystore.ErrThrottled), exitThrottled},
		{context.Canceled, exitCanceled},
		{fmt.Errorf("unlock: %w", context.DeadlineExceeded), exitCanceled},
		{keyfile.ErrTruncatedBuffer, exitKeyfileInvalid},
		{keystore.ErrNotLoggedIn, exitNotLoggedIn},
		{errors.New("disk on fire"), exitIOFailed},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Fatalf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
