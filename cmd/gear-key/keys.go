package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gear-cli/go-backend/internal/keypair"
	"gear-cli/go-backend/internal/keystore/keyfile"
	"gear-cli/go-backend/pkg/models"
)

func (a *app) runGenerate(args []string) int {
	fs := a.flagSet("generate")
	schemeName := a.schemeFlag(fs)
	password := fs.String("password", "", "optional phrase password")
	out := fs.String("out", "", "also write an encrypted keyfile to this path")
	passFile := fs.String("passphrase-file", "", "file holding the keyfile passphrase (with -out)")
	name := fs.String("name", "", "keyfile account name (with -out)")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	scheme, err := keypair.ParseScheme(*schemeName)
	if err != nil {
		return a.fail(err)
	}

	kp, phrase, err := keypair.Generate(scheme, a.rand)
	if err != nil {
		return a.fail(err)
	}
	defer kp.Zero()
	if *password != "" {
		if kp, err = keypair.FromPhrase(scheme, phrase, *password); err != nil {
			return a.fail(err)
		}
		defer kp.Zero()
	}
	if *out != "" {
		passphrase, err := readPassphrase(*passFile)
		if err != nil {
			return a.fail(fmt.Errorf("%w: %v", errInvalidInput, err))
		}
		if err := a.writeKeyfile(kp, passphrase, *name, *out); err != nil {
			return a.fail(err)
		}
	}
	info, err := a.keyInfo(kp, true)
	if err != nil {
		return a.fail(err)
	}
	info.SecretPhrase = phrase
	return a.printJSON(info)
}

func (a *app) runInspect(args []string) int {
	fs := a.flagSet("inspect")
	schemeName := a.schemeFlag(fs)
	password := fs.String("password", "", "phrase password")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	if fs.NArg() != 1 {
		return a.fail(fmt.Errorf("%w: inspect takes one secret uri", errInvalidInput))
	}
	scheme, err := keypair.ParseScheme(*schemeName)
	if err != nil {
		return a.fail(err)
	}
	kp, err := keypair.FromSURI(scheme, fs.Arg(0), *password)
	if err != nil {
		return a.fail(err)
	}
	defer kp.Zero()
	info, err := a.keyInfo(kp, true)
	if err != nil {
		return a.fail(err)
	}
	return a.printJSON(info)
}

func (a *app) runSign(args []string) int {
	fs := a.flagSet("sign")
	schemeName := a.schemeFlag(fs)
	suri := fs.String("suri", "", "secret uri; defaults to the logged-in account")
	password := fs.String("password", "", "phrase password")
	passFile := fs.String("passphrase-file", "", "file holding the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	if fs.NArg() != 1 {
		return a.fail(fmt.Errorf("%w: sign takes one message", errInvalidInput))
	}
	message, err := parseMessage(fs.Arg(0))
	if err != nil {
		return a.fail(err)
	}

	var kp *keypair.Keypair
	if *suri != "" {
		scheme, err := keypair.ParseScheme(*schemeName)
		if err != nil {
			return a.fail(err)
		}
		if kp, err = keypair.FromSURI(scheme, *suri, *password); err != nil {
			return a.fail(err)
		}
	} else {
		if kp, err = a.loadCurrent(*passFile); err != nil {
			return a.fail(err)
		}
	}
	defer kp.Zero()

	sig, err := kp.Sign(message)
	if err != nil {
		return a.fail(err)
	}
	signer, err := kp.Address(a.cfg.SS58Prefix)
	if err != nil {
		return a.fail(err)
	}
	a.logger.Info("message signed", "signer", signer, "scheme", kp.Scheme().String(), "bytes", len(message))
	return a.printJSON(models.Signature{
		Scheme:    kp.Scheme().String(),
		Signer:    signer,
		Signature: "0x" + hex.EncodeToString(sig),
	})
}

func (a *app) runVerify(args []string) int {
	fs := a.flagSet("verify")
	schemeName := a.schemeFlag(fs)
	public := fs.String("public", "", "signer public key (hex); defaults to the logged-in account")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	if fs.NArg() != 2 {
		return a.fail(fmt.Errorf("%w: verify takes a signature and a message", errInvalidInput))
	}
	sig, err := decodeHex(fs.Arg(0))
	if err != nil {
		return a.fail(err)
	}
	message, err := parseMessage(fs.Arg(1))
	if err != nil {
		return a.fail(err)
	}

	scheme, err := keypair.ParseScheme(*schemeName)
	if err != nil {
		return a.fail(err)
	}
	pub := *public
	if pub == "" {
		store, err := a.openStore()
		if err != nil {
			return a.fail(err)
		}
		acct, err := store.Current()
		if err != nil {
			return a.fail(err)
		}
		if acct.PublicKey == "" {
			return a.fail(fmt.Errorf("%w: account %s has no stored public key, pass -public", errInvalidInput, acct.Address))
		}
		if scheme, err = keypair.ParseScheme(acct.Scheme); err != nil {
			return a.fail(err)
		}
		pub = acct.PublicKey
	}
	pubBytes, err := decodeHex(pub)
	if err != nil {
		return a.fail(err)
	}

	valid := keypair.Verify(scheme, pubBytes, message, sig)
	if code := a.printJSON(models.Verification{
		Scheme:    scheme.String(),
		PublicKey: "0x" + hex.EncodeToString(pubBytes),
		Valid:     valid,
	}); code != exitOK {
		return code
	}
	if !valid {
		return exitVerifyFailed
	}
	return exitOK
}

func (a *app) runDecode(args []string) int {
	fs := a.flagSet("decode")
	schemeName := fs.String("scheme", "", "expected scheme; defaults to the one named by the keyfile")
	passFile := fs.String("passphrase-file", "", "file holding the keyfile passphrase")
	showSecret := fs.Bool("show-secret", false, "include the secret seed in the output")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	if fs.NArg() != 1 {
		return a.fail(fmt.Errorf("%w: decode takes one keyfile path", errInvalidInput))
	}
	var scheme keypair.Scheme
	if *schemeName != "" {
		var err error
		if scheme, err = keypair.ParseScheme(*schemeName); err != nil {
			return a.fail(err)
		}
	}
	raw, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return a.fail(err)
	}
	file, err := keyfile.Parse(raw)
	if err != nil {
		return a.fail(err)
	}
	passphrase, err := readPassphrase(*passFile)
	if err != nil {
		return a.fail(fmt.Errorf("%w: %v", errInvalidInput, err))
	}
	unlocker, err := a.unlocker()
	if err != nil {
		return a.fail(err)
	}
	ctx, cancel := a.unlockContext()
	defer cancel()
	kp, err := unlocker.Decode(ctx, file, passphrase, scheme)
	if err != nil {
		return a.fail(err)
	}
	defer kp.Zero()
	info, err := a.keyInfo(kp, *showSecret)
	if err != nil {
		return a.fail(err)
	}
	return a.printJSON(info)
}

func (a *app) writeKeyfile(kp *keypair.Keypair, passphrase, name, path string) error {
	file, err := keyfile.Encode(kp, passphrase, keyfile.EncodeOptions{
		Prefix: a.cfg.SS58Prefix,
		Name:   name,
		Rand:   a.rand,
	})
	if err != nil {
		return err
	}
	raw, err := file.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o600)
}

// keyInfo renders kp. The seed is included only when withSecret is set and
// the keypair still knows it.
func (a *app) keyInfo(kp *keypair.Keypair, withSecret bool) (models.KeyInfo, error) {
	address, err := kp.Address(a.cfg.SS58Prefix)
	if err != nil {
		return models.KeyInfo{}, err
	}
	info := models.KeyInfo{
		Scheme:      kp.Scheme().String(),
		PublicKey:   "0x" + hex.EncodeToString(kp.Public()),
		AccountID:   "0x" + hex.EncodeToString(kp.AccountID()),
		SS58Address: address,
	}
	if withSecret {
		if seed, ok := kp.Seed(); ok {
			info.SecretSeed = "0x" + hex.EncodeToString(seed)
		}
	}
	return info, nil
}

// parseMessage treats 0x-prefixed input as hex and anything else as raw bytes.
func parseMessage(s string) ([]byte, error) {
	if strings.HasPrefix(s, "0x") {
		return decodeHex(s)
	}
	return []byte(s), nil
}

func decodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidInput, err)
	}
	return b, nil
}
