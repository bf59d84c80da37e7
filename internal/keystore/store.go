// Package keystore keeps the logged-in signing account on disk and unlocks
// it on demand.
package keystore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gear-cli/go-backend/internal/keypair"
	"gear-cli/go-backend/internal/keystore/keyfile"
	"gear-cli/go-backend/internal/securestore"
	"gear-cli/go-backend/internal/ss58"
	"gear-cli/go-backend/pkg/models"
)

var (
	ErrNotLoggedIn    = errors.New("no account is logged in")
	ErrUnknownAccount = errors.New("unknown account")
	ErrCorruptStore   = errors.New("keystore entry is corrupt")
)

const (
	currentFile   = "current"
	keyfileSuffix = ".json"
	suriSuffix    = ".suri"
)

// sealedSURI is the on-disk form of a secret-URI login. Only Sealed is
// secret; it is bound to Address.
type sealedSURI struct {
	Address   string    `json:"address"`
	Scheme    string    `json:"scheme"`
	Name      string    `json:"name,omitempty"`
	PublicKey string    `json:"public_key"`
	CreatedAt time.Time `json:"created_at"`
	Sealed    []byte    `json:"sealed"`
}

type suriSecret struct {
	SURI     string `json:"suri"`
	Password string `json:"password,omitempty"`
}

type Options struct {
	Unlocker   *Unlocker
	SealParams securestore.Params
	Logger     *slog.Logger
}

type Store struct {
	dir        string
	unlocker   *Unlocker
	sealParams securestore.Params
	logger     *slog.Logger
	now        func() time.Time
}

func NewStore(dir string, opts Options) (*Store, error) {
	return newStoreWithClock(dir, opts, time.Now)
}

func newStoreWithClock(dir string, opts Options, now func() time.Time) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("keystore: empty directory")
	}
	unlocker := opts.Unlocker
	if unlocker == nil {
		var err error
		if unlocker, err = NewUnlocker(UnlockerOptions{Logger: opts.Logger}); err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{dir: dir, unlocker: unlocker, sealParams: opts.SealParams, logger: logger, now: now}, nil
}

func (s *Store) Dir() string { return s.dir }

// ImportKeyfile stores an encrypted keyfile as the current account. The
// passphrase is not needed and not checked here.
func (s *Store) ImportKeyfile(raw []byte) (models.Account, error) {
	file, err := keyfile.Parse(raw)
	if err != nil {
		return models.Account{}, err
	}
	scheme, err := file.Scheme()
	if err != nil {
		return models.Account{}, err
	}
	if _, err := file.AccountID(); err != nil {
		return models.Account{}, fmt.Errorf("%w: %v", keyfile.ErrMalformedKeyfile, err)
	}
	if err := securestore.WritePrivateFile(s.path(file.Address, keyfileSuffix), raw); err != nil {
		return models.Account{}, err
	}
	if err := s.removeIfExists(s.path(file.Address, suriSuffix)); err != nil {
		return models.Account{}, err
	}
	if err := s.setCurrent(file.Address); err != nil {
		return models.Account{}, err
	}
	s.logger.Info("account imported", "address", file.Address, "kind", models.AccountKindKeyfile)
	acct := keyfileAccount(file, scheme)
	acct.Current = true
	return acct, nil
}

// ImportSURI derives the account from suri, seals the secret URI under
// passphrase and makes it the current account.
func (s *Store) ImportSURI(scheme keypair.Scheme, suri, password, passphrase, name string, prefix uint16) (models.Account, error) {
	kp, err := keypair.FromSURI(scheme, suri, password)
	if err != nil {
		return models.Account{}, err
	}
	defer kp.Zero()
	address, err := kp.Address(prefix)
	if err != nil {
		return models.Account{}, err
	}

	sealed, err := securestore.SealJSON(passphrase, []byte(address), s.sealParams, suriSecret{SURI: suri, Password: password})
	if err != nil {
		return models.Account{}, err
	}
	rec := sealedSURI{
		Address:   address,
		Scheme:    scheme.String(),
		Name:      name,
		PublicKey: hex.EncodeToString(kp.Public()),
		CreatedAt: s.now().UTC(),
		Sealed:    sealed,
	}
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return models.Account{}, err
	}
	if err := securestore.WritePrivateFile(s.path(address, suriSuffix), raw); err != nil {
		return models.Account{}, err
	}
	if err := s.removeIfExists(s.path(address, keyfileSuffix)); err != nil {
		return models.Account{}, err
	}
	if err := s.setCurrent(address); err != nil {
		return models.Account{}, err
	}
	s.logger.Info("account imported", "address", address, "kind", models.AccountKindSURI)
	acct := rec.account()
	acct.Current = true
	return acct, nil
}

func (s *Store) Current() (models.Account, error) {
	address, err := s.currentAddress()
	if err != nil {
		return models.Account{}, err
	}
	acct, err := s.account(address)
	if err != nil {
		return models.Account{}, err
	}
	acct.Current = true
	return acct, nil
}

// List returns every stored account ordered by address.
func (s *Store) List() ([]models.Account, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	current, err := s.currentAddress()
	if err != nil && !errors.Is(err, ErrNotLoggedIn) {
		return nil, err
	}
	seen := make(map[string]struct{})
	out := make([]models.Account, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		address := strings.TrimSuffix(strings.TrimSuffix(name, keyfileSuffix), suriSuffix)
		if address == name {
			continue
		}
		if _, ok := seen[address]; ok {
			continue
		}
		seen[address] = struct{}{}
		acct, err := s.account(address)
		if err != nil {
			s.logger.Warn("skipping keystore entry", "address", address, "error", err)
			continue
		}
		acct.Current = address == current
		out = append(out, acct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// Logout forgets the current account and deletes its stored key.
func (s *Store) Logout() (models.Account, error) {
	acct, err := s.Current()
	if err != nil {
		return models.Account{}, err
	}
	for _, p := range []string{
		s.path(acct.Address, keyfileSuffix),
		s.path(acct.Address, suriSuffix),
		filepath.Join(s.dir, currentFile),
	} {
		if err := s.removeIfExists(p); err != nil {
			return models.Account{}, err
		}
	}
	s.logger.Info("account logged out", "address", acct.Address)
	acct.Current = false
	return acct, nil
}

// Load unlocks the current account with passphrase.
func (s *Store) Load(ctx context.Context, passphrase string) (*keypair.Keypair, error) {
	address, err := s.currentAddress()
	if err != nil {
		return nil, err
	}
	if raw, err := os.ReadFile(s.path(address, keyfileSuffix)); err == nil {
		file, err := keyfile.Parse(raw)
		if err != nil {
			return nil, err
		}
		return s.unlocker.Decode(ctx, file, passphrase, 0)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	rec, err := s.readSURI(address)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scheme, err := keypair.ParseScheme(rec.Scheme)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	var secret suriSecret
	if err := securestore.OpenJSON(passphrase, rec.Sealed, []byte(address), &secret); err != nil {
		if errors.Is(err, securestore.ErrInvalid) {
			return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
		}
		return nil, err
	}
	kp, err := keypair.FromSURI(scheme, secret.SURI, secret.Password)
	if err != nil {
		return nil, err
	}
	if hex.EncodeToString(kp.Public()) != rec.PublicKey {
		kp.Zero()
		return nil, fmt.Errorf("%w: public key changed for %s", ErrCorruptStore, address)
	}
	return kp, nil
}

func (s *Store) account(address string) (models.Account, error) {
	raw, err := os.ReadFile(s.path(address, keyfileSuffix))
	if err == nil {
		file, err := keyfile.Parse(raw)
		if err != nil {
			return models.Account{}, err
		}
		scheme, err := file.Scheme()
		if err != nil {
			return models.Account{}, err
		}
		return keyfileAccount(file, scheme), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return models.Account{}, err
	}
	rec, err := s.readSURI(address)
	if err != nil {
		return models.Account{}, err
	}
	return rec.account(), nil
}

func (s *Store) readSURI(address string) (*sealedSURI, error) {
	raw, err := os.ReadFile(s.path(address, suriSuffix))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, address)
		}
		return nil, err
	}
	var rec sealedSURI
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	if rec.Address != address {
		return nil, fmt.Errorf("%w: %s holds %s", ErrCorruptStore, address, rec.Address)
	}
	return &rec, nil
}

func (s *Store) currentAddress() (string, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, currentFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotLoggedIn
		}
		return "", err
	}
	address := strings.TrimSpace(string(raw))
	if address == "" {
		return "", ErrNotLoggedIn
	}
	if _, _, err := ss58.Decode(address); err != nil {
		return "", fmt.Errorf("%w: current: %v", ErrCorruptStore, err)
	}
	return address, nil
}

func (s *Store) setCurrent(address string) error {
	return securestore.WritePrivateFile(filepath.Join(s.dir, currentFile), []byte(address+"\n"))
}

// path joins a stored entry name. Addresses are base58 so they cannot escape
// the directory.
func (s *Store) path(address, suffix string) string {
	return filepath.Join(s.dir, filepath.Base(address)+suffix)
}

func (s *Store) removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func keyfileAccount(file *keyfile.EncryptedKeyfile, scheme keypair.Scheme) models.Account {
	acct := models.Account{
		Address: file.Address,
		Scheme:  scheme.String(),
		Kind:    models.AccountKindKeyfile,
		Name:    file.Meta.Name,
	}
	if file.Meta.WhenCreated > 0 {
		acct.CreatedAt = time.UnixMilli(file.Meta.WhenCreated).UTC()
	}
	if scheme != keypair.Ecdsa {
		if id, err := file.AccountID(); err == nil {
			acct.PublicKey = hex.EncodeToString(id)
		}
	}
	return acct
}

func (r *sealedSURI) account() models.Account {
	return models.Account{
		Address:   r.Address,
		Scheme:    r.Scheme,
		Kind:      models.AccountKindSURI,
		Name:      r.Name,
		PublicKey: r.PublicKey,
		CreatedAt: r.CreatedAt,
	}
}
