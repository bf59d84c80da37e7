package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"gear-cli/go-backend/internal/platform/ratelimiter"
	"gear-cli/go-backend/internal/securestore"
)

// AttemptLogFile is the name of the unlock attempt log inside the keystore
// directory. The leading dot keeps it out of account listings.
const AttemptLogFile = ".unlock-attempts.json"

// attemptLog records unlock attempts per address on disk so throttling
// carries across processes. Each update re-reads the file.
type attemptLog struct {
	path   string
	window time.Duration

	mu sync.Mutex
}

type attemptRecord struct {
	// Unix milliseconds, oldest first.
	Attempts map[string][]int64 `json:"attempts"`
}

func (l *attemptLog) load() (attemptRecord, error) {
	rec := attemptRecord{Attempts: make(map[string][]int64)}
	raw, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rec, nil
		}
		return rec, err
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		return attemptRecord{Attempts: make(map[string][]int64)}, fmt.Errorf("%w: %s: %v", ErrCorruptStore, AttemptLogFile, err)
	}
	if rec.Attempts == nil {
		rec.Attempts = make(map[string][]int64)
	}
	return rec, nil
}

func (l *attemptLog) save(rec attemptRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return securestore.WritePrivateFile(l.path, raw)
}

// prune drops attempts older than the window and addresses left empty.
func (l *attemptLog) prune(rec attemptRecord, now time.Time) {
	cutoff := now.Add(-l.window).UnixMilli()
	for addr, at := range rec.Attempts {
		kept := at[:0]
		for _, ms := range at {
			if ms > cutoff {
				kept = append(kept, ms)
			}
		}
		if len(kept) == 0 {
			delete(rec.Attempts, addr)
			continue
		}
		rec.Attempts[addr] = kept
	}
}

// restore feeds recent attempts into limiter.
func (l *attemptLog) restore(limiter *ratelimiter.MapLimiter, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, err := l.load()
	if err != nil {
		return err
	}
	l.prune(rec, now)
	for addr, at := range rec.Attempts {
		times := make([]time.Time, len(at))
		for i, ms := range at {
			times[i] = time.UnixMilli(ms)
		}
		limiter.Restore(addr, times)
	}
	return nil
}

func (l *attemptLog) add(address string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, err := l.load()
	if err != nil && !errors.Is(err, ErrCorruptStore) {
		return err
	}
	l.prune(rec, now)
	rec.Attempts[address] = append(rec.Attempts[address], now.UnixMilli())
	return l.save(rec)
}

func (l *attemptLog) clear(address string, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, err := l.load()
	if err != nil && !errors.Is(err, ErrCorruptStore) {
		return err
	}
	if _, ok := rec.Attempts[address]; !ok && err == nil {
		return nil
	}
	delete(rec.Attempts, address)
	l.prune(rec, now)
	return l.save(rec)
}
