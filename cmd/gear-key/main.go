package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"gear-cli/go-backend/internal/config"
	"gear-cli/go-backend/internal/keypair"
	"gear-cli/go-backend/internal/keystore"
	"gear-cli/go-backend/internal/keystore/keyfile"
	"gear-cli/go-backend/internal/nodekey"
	"gear-cli/go-backend/internal/platform/privacylog"
	"gear-cli/go-backend/internal/securestore"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	exitOK             = 0
	exitInvalidInput   = 10
	exitAuthFailed     = 20
	exitKeyfileInvalid = 30
	exitVerifyFailed   = 40
	exitNotLoggedIn    = 50
	exitIOFailed       = 60
	exitThrottled      = 70
	exitCanceled       = 80

	envPassphrase = "GEAR_CLI_PASSPHRASE"
)

type command struct {
	name  string
	usage string
	run   func(*app, []string) int
}

var commands = []command{
	{"generate", "generate a random account", (*app).runGenerate},
	{"inspect", "show the public key and address of a secret uri", (*app).runInspect},
	{"sign", "sign a message with a secret uri or the logged-in account", (*app).runSign},
	{"verify", "verify a signature", (*app).runVerify},
	{"login", "log in with a keyfile or a secret uri", (*app).runLogin},
	{"whoami", "show the logged-in account", (*app).runWhoami},
	{"accounts", "list stored accounts", (*app).runAccounts},
	{"logout", "forget the logged-in account", (*app).runLogout},
	{"decode", "unlock a keyfile and show its account", (*app).runDecode},
	{"generate-node-key", "generate a random libp2p node key", (*app).runGenerateNodeKey},
	{"inspect-node-key", "print the peer id of a node key", (*app).runInspectNodeKey},
}

type app struct {
	ctx    context.Context
	stdout io.Writer
	stderr io.Writer
	rand   io.Reader

	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	unlock   *keystore.Unlocker
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{ctx: ctx, stdout: stdout, stderr: stderr, rand: rand.Reader}

	global := flag.NewFlagSet("gear-key", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "config file path")
	metricsFile := global.String("metrics-file", "", "write unlock metrics in prometheus text format to this file")
	global.Usage = func() { a.printUsage() }
	if err := global.Parse(args); err != nil {
		return exitInvalidInput
	}
	rest := global.Args()
	if len(rest) == 0 {
		a.printUsage()
		return exitInvalidInput
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return a.fail(err)
	}
	a.cfg = cfg
	a.logger = privacylog.NewLogger(stderr, cfg.LogLevel)
	a.registry = prometheus.NewRegistry()

	for _, c := range commands {
		if c.name != rest[0] {
			continue
		}
		code := c.run(a, rest[1:])
		if *metricsFile != "" {
			if err := prometheus.WriteToTextfile(*metricsFile, a.registry); err != nil {
				a.writeStderrf("error: write metrics: %v\n", err)
			}
		}
		return code
	}
	a.printUsage()
	return exitInvalidInput
}

func (a *app) printUsage() {
	a.writeStderrf("usage: gear-key [-config path] [-metrics-file path] <command> [flags]\n\ncommands:\n")
	for _, c := range commands {
		a.writeStderrf("  %-18s %s\n", c.name, c.usage)
	}
	a.writeStderrf("\nexit codes: 0 ok, 10 invalid input, 20 wrong passphrase, 30 keyfile rejected,\n" +
		"  40 bad signature, 50 not logged in, 60 i/o error, 70 throttled, 80 canceled or timed out\n")
}

// flagSet returns a subcommand flag set that reports errors instead of
// exiting.
func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func (a *app) schemeFlag(fs *flag.FlagSet) *string {
	return fs.String("scheme", a.cfg.Scheme.String(), "signature scheme: ecdsa, ed25519 or sr25519")
}

// unlocker is built once per process so its metrics register once.
func (a *app) unlocker() (*keystore.Unlocker, error) {
	if a.unlock != nil {
		return a.unlock, nil
	}
	u, err := keystore.NewUnlocker(keystore.UnlockerOptions{
		Concurrency:       a.cfg.Unlock.Concurrency,
		AttemptsPerMinute: a.cfg.Unlock.AttemptsPerMinute,
		Burst:             a.cfg.Unlock.Burst,
		AttemptLog:        filepath.Join(a.cfg.KeystoreDir(), keystore.AttemptLogFile),
		Registerer:        a.registry,
		Logger:            a.logger,
	})
	if err != nil {
		return nil, err
	}
	a.unlock = u
	return u, nil
}

func (a *app) openStore() (*keystore.Store, error) {
	unlocker, err := a.unlocker()
	if err != nil {
		return nil, err
	}
	return keystore.NewStore(a.cfg.KeystoreDir(), keystore.Options{
		Unlocker: unlocker,
		Logger:   a.logger,
	})
}

// unlockContext bounds an unlock by the configured timeout.
func (a *app) unlockContext() (context.Context, context.CancelFunc) {
	if a.cfg.Unlock.Timeout <= 0 {
		return context.WithCancel(a.ctx)
	}
	return context.WithTimeout(a.ctx, a.cfg.Unlock.Timeout)
}

// readPassphrase takes the passphrase from a file or the environment. It is
// never accepted as a plain flag value.
func readPassphrase(file string) (string, error) {
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(raw), "\r\n"), nil
	}
	if v, ok := os.LookupEnv(envPassphrase); ok {
		return v, nil
	}
	return "", fmt.Errorf("passphrase required: use -passphrase-file or %s", envPassphrase)
}

func (a *app) printJSON(v any) int {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return a.fail(err)
	}
	return exitOK
}

// fail reports err on stderr and maps it to an exit code.
func (a *app) fail(err error) int {
	a.writeStderrf("error: %v\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, keystore.ErrThrottled):
		return exitThrottled
	case errors.Is(err, keyfile.ErrAuthenticationFailed),
		errors.Is(err, securestore.ErrAuthFailed):
		return exitAuthFailed
	case errors.Is(err, keyfile.ErrMalformedKeyfile),
		errors.Is(err, keyfile.ErrUnsupportedEncodingVersion),
		errors.Is(err, keyfile.ErrSchemeMismatch),
		errors.Is(err, keyfile.ErrMalformedBase64),
		errors.Is(err, keyfile.ErrTruncatedBuffer),
		errors.Is(err, keyfile.ErrInvalidDerivationParams),
		errors.Is(err, keyfile.ErrHeaderMismatch),
		errors.Is(err, keyfile.ErrDividerMismatch),
		errors.Is(err, keyfile.ErrPublicKeyMismatch),
		errors.Is(err, keystore.ErrCorruptStore):
		return exitKeyfileInvalid
	case errors.Is(err, keystore.ErrNotLoggedIn), errors.Is(err, keystore.ErrUnknownAccount):
		return exitNotLoggedIn
	case errors.Is(err, keypair.ErrUnknownScheme),
		errors.Is(err, keypair.ErrInvalidSeedLength),
		errors.Is(err, keypair.ErrInvalidSeed),
		errors.Is(err, keypair.ErrInvalidPhrase),
		errors.Is(err, keypair.ErrInvalidSURI),
		errors.Is(err, keypair.ErrUnsupportedJunction),
		errors.Is(err, keypair.ErrInvalidPublicKey),
		errors.Is(err, nodekey.ErrInvalidNodeKey),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, errInvalidInput):
		return exitInvalidInput
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return exitCanceled
	default:
		return exitIOFailed
	}
}

var errInvalidInput = errors.New("invalid input")

func (a *app) writeStderrf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.stderr, format, args...)
}
