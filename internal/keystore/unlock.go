package keystore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gear-cli/go-backend/internal/keypair"
	"gear-cli/go-backend/internal/keystore/keyfile"
	"gear-cli/go-backend/internal/platform/ratelimiter"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"
)

var ErrThrottled = errors.New("too many unlock attempts")

const (
	resultOK         = "ok"
	resultAuthFailed = "auth_failed"
	resultInvalid    = "invalid"
	resultThrottled  = "throttled"
	resultCanceled   = "canceled"
)

type decodeFunc func(*keyfile.EncryptedKeyfile, string, keypair.Scheme) (*keypair.Keypair, error)

type UnlockerOptions struct {
	// Concurrency bounds simultaneous key derivations. Defaults to 1.
	Concurrency       int
	AttemptsPerMinute float64
	Burst             int
	// AttemptLog, when set, is the file unlock attempts are recorded in so
	// throttling holds across processes.
	AttemptLog string
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

// Unlocker runs keyfile decoding off the caller's goroutine with bounded
// concurrency and per-account throttling.
//
// Key derivation cannot be interrupted. When ctx ends first Decode returns
// ctx.Err() while the derivation finishes in the background and its result
// is discarded; it keeps holding its concurrency slot until then.
type Unlocker struct {
	sem     *semaphore.Weighted
	limiter *ratelimiter.MapLimiter
	log     *attemptLog
	decode  decodeFunc
	now     func() time.Time
	logger  *slog.Logger

	attempts *prometheus.CounterVec
	duration prometheus.Histogram
}

func NewUnlocker(opts UnlockerOptions) (*Unlocker, error) {
	return newUnlocker(opts, keyfile.Decode, time.Now)
}

func newUnlocker(opts UnlockerOptions, decode decodeFunc, now func() time.Time) (*Unlocker, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	u := &Unlocker{
		sem:     semaphore.NewWeighted(int64(opts.Concurrency)),
		limiter: ratelimiter.New(opts.AttemptsPerMinute/60, opts.Burst, 30*time.Minute),
		decode:  decode,
		now:     now,
		logger:  logger,
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gear",
			Subsystem: "keystore",
			Name:      "unlock_total",
			Help:      "Keyfile unlock attempts by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gear",
			Subsystem: "keystore",
			Name:      "unlock_seconds",
			Help:      "Time spent decoding keyfiles.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
	}
	if opts.AttemptLog != "" && u.limiter != nil {
		u.log = &attemptLog{path: opts.AttemptLog, window: u.limiter.Window()}
		if err := u.log.restore(u.limiter, now()); err != nil {
			if !errors.Is(err, ErrCorruptStore) {
				return nil, fmt.Errorf("load unlock attempts: %w", err)
			}
			logger.Warn("discarding unlock attempt log", "error", err)
		}
	}
	tracked := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "gear",
		Subsystem: "keystore",
		Name:      "unlock_tracked_accounts",
		Help:      "Accounts with recent unlock attempts.",
	}, func() float64 { return float64(u.limiter.Len()) })
	if opts.Registerer != nil {
		for _, c := range []prometheus.Collector{u.attempts, u.duration, tracked} {
			if err := opts.Registerer.Register(c); err != nil {
				return nil, fmt.Errorf("register unlock metrics: %w", err)
			}
		}
	}
	return u, nil
}

type decodeResult struct {
	kp  *keypair.Keypair
	err error
}

// Decode unlocks file with passphrase. scheme zero selects the scheme named by
// the keyfile.
func (u *Unlocker) Decode(ctx context.Context, file *keyfile.EncryptedKeyfile, passphrase string, scheme keypair.Scheme) (*keypair.Keypair, error) {
	if err := ctx.Err(); err != nil {
		u.attempts.WithLabelValues(resultCanceled).Inc()
		return nil, err
	}
	if file == nil {
		return nil, keyfile.ErrMalformedKeyfile
	}
	if scheme == 0 {
		var err error
		if scheme, err = file.Scheme(); err != nil {
			u.attempts.WithLabelValues(resultInvalid).Inc()
			return nil, err
		}
	}
	if ok, wait := u.limiter.Allow(file.Address, u.now()); !ok {
		u.attempts.WithLabelValues(resultThrottled).Inc()
		u.logger.Warn("unlock throttled", "address", file.Address, "retry_after", wait.Round(time.Second))
		return nil, fmt.Errorf("%w: retry in %s", ErrThrottled, wait.Round(time.Second))
	}
	if u.log != nil {
		if err := u.log.add(file.Address, u.now()); err != nil {
			u.logger.Warn("record unlock attempt", "address", file.Address, "error", err)
		}
	}
	if err := u.sem.Acquire(ctx, 1); err != nil {
		u.attempts.WithLabelValues(resultCanceled).Inc()
		return nil, err
	}

	done := make(chan decodeResult, 1)
	go func() {
		defer u.sem.Release(1)
		start := time.Now()
		kp, err := u.decode(file, passphrase, scheme)
		u.duration.Observe(time.Since(start).Seconds())
		done <- decodeResult{kp: kp, err: err}
	}()

	select {
	case res := <-done:
		u.record(file.Address, scheme, res.err)
		return res.kp, res.err
	case <-ctx.Done():
		u.attempts.WithLabelValues(resultCanceled).Inc()
		go func() {
			if res := <-done; res.kp != nil {
				res.kp.Zero()
			}
		}()
		return nil, ctx.Err()
	}
}

func (u *Unlocker) record(address string, scheme keypair.Scheme, err error) {
	switch {
	case err == nil:
		u.limiter.Reset(address)
		if u.log != nil {
			if err := u.log.clear(address, u.now()); err != nil {
				u.logger.Warn("clear unlock attempts", "address", address, "error", err)
			}
		}
		u.attempts.WithLabelValues(resultOK).Inc()
		u.logger.Info("keyfile unlocked", "address", address, "scheme", scheme.String())
	case errors.Is(err, keyfile.ErrAuthenticationFailed):
		u.attempts.WithLabelValues(resultAuthFailed).Inc()
		u.logger.Warn("keyfile unlock failed", "address", address, "error", err)
	default:
		u.attempts.WithLabelValues(resultInvalid).Inc()
		u.logger.Warn("keyfile rejected", "address", address, "error", err)
	}
}
