package main

import (
	"fmt"
	"os"

	"gear-cli/go-backend/internal/keypair"
	"gear-cli/go-backend/internal/keystore/keyfile"
)

func (a *app) runLogin(args []string) int {
	fs := a.flagSet("login")
	schemeName := a.schemeFlag(fs)
	keyfilePath := fs.String("keyfile", "", "encrypted json keyfile to log in with")
	suri := fs.String("suri", "", "secret uri to log in with")
	password := fs.String("password", "", "phrase password for -suri")
	name := fs.String("name", "", "account name for -suri")
	passFile := fs.String("passphrase-file", "", "file holding the passphrase")
	check := fs.Bool("check", true, "unlock a keyfile once before storing it")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	if (*keyfilePath == "") == (*suri == "") {
		return a.fail(fmt.Errorf("%w: pass exactly one of -keyfile or -suri", errInvalidInput))
	}
	store, err := a.openStore()
	if err != nil {
		return a.fail(err)
	}

	if *keyfilePath != "" {
		raw, err := os.ReadFile(*keyfilePath)
		if err != nil {
			return a.fail(err)
		}
		if *check {
			if code := a.checkKeyfile(raw, *passFile); code != exitOK {
				return code
			}
		}
		acct, err := store.ImportKeyfile(raw)
		if err != nil {
			return a.fail(err)
		}
		return a.printJSON(acct)
	}

	scheme, err := keypair.ParseScheme(*schemeName)
	if err != nil {
		return a.fail(err)
	}
	passphrase, err := readPassphrase(*passFile)
	if err != nil {
		return a.fail(fmt.Errorf("%w: %v", errInvalidInput, err))
	}
	acct, err := store.ImportSURI(scheme, *suri, *password, passphrase, *name, a.cfg.SS58Prefix)
	if err != nil {
		return a.fail(err)
	}
	return a.printJSON(acct)
}

// checkKeyfile proves the passphrase opens raw before it is stored.
func (a *app) checkKeyfile(raw []byte, passFile string) int {
	file, err := keyfile.Parse(raw)
	if err != nil {
		return a.fail(err)
	}
	passphrase, err := readPassphrase(passFile)
	if err != nil {
		return a.fail(fmt.Errorf("%w: %v", errInvalidInput, err))
	}
	unlocker, err := a.unlocker()
	if err != nil {
		return a.fail(err)
	}
	ctx, cancel := a.unlockContext()
	defer cancel()
	kp, err := unlocker.Decode(ctx, file, passphrase, 0)
	if err != nil {
		return a.fail(err)
	}
	kp.Zero()
	return exitOK
}

func (a *app) runWhoami(args []string) int {
	fs := a.flagSet("whoami")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	store, err := a.openStore()
	if err != nil {
		return a.fail(err)
	}
	acct, err := store.Current()
	if err != nil {
		return a.fail(err)
	}
	return a.printJSON(acct)
}

func (a *app) runAccounts(args []string) int {
	fs := a.flagSet("accounts")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	store, err := a.openStore()
	if err != nil {
		return a.fail(err)
	}
	accounts, err := store.List()
	if err != nil {
		return a.fail(err)
	}
	return a.printJSON(accounts)
}

func (a *app) runLogout(args []string) int {
	fs := a.flagSet("logout")
	if err := fs.Parse(args); err != nil {
		return exitInvalidInput
	}
	store, err := a.openStore()
	if err != nil {
		return a.fail(err)
	}
	acct, err := store.Logout()
	if err != nil {
		return a.fail(err)
	}
	return a.printJSON(acct)
}

// loadCurrent unlocks the logged-in account.
func (a *app) loadCurrent(passFile string) (*keypair.Keypair, error) {
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	if _, err := store.Current(); err != nil {
		return nil, err
	}
	passphrase, err := readPassphrase(passFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidInput, err)
	}
	ctx, cancel := a.unlockContext()
	defer cancel()
	return store.Load(ctx, passphrase)
}
