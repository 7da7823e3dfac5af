package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrLockTimeout is returned when the cross-process lock could not be
// obtained within the configured attempt budget. Writers treat it as
// "skip caching", never as a failure of the surrounding operation.
var ErrLockTimeout = errors.New("cache lock acquisition timed out")

// LockConfig tunes the cross-process lock-file protocol.
type LockConfig struct {
	// Timeout bounds the total time spent waiting on a held lock.
	Timeout time.Duration
	// RetryInterval is the fixed wait between acquisition attempts.
	RetryInterval time.Duration
	// StaleAfter is the age past which a held lock is considered abandoned
	// by a dead process and force-removed.
	StaleAfter time.Duration
}

// DefaultLockConfig returns the production lock parameters.
func DefaultLockConfig() LockConfig {
	return LockConfig{
		Timeout:       30 * time.Second,
		RetryInterval: 500 * time.Millisecond,
		StaleAfter:    time.Minute,
	}
}

// lockInfo is the JSON body of a lock file, identifying the holder for
// human inspection and staleness checks.
type lockInfo struct {
	PID       int    `json:"pid"`
	Timestamp int64  `json:"timestamp"` // epoch millis
	Hostname  string `json:"hostname"`
}

// withExclusiveLock runs fn while holding the sibling lock file for path.
// The lock is released on every exit path, including fn panics. Returns
// ErrLockTimeout when the lock stayed contended past cfg.Timeout.
func withExclusiveLock(path string, cfg LockConfig, fn func() error) error {
	lockPath := path + ".lock"
	if err := acquireLock(lockPath, cfg); err != nil {
		return err
	}
	defer os.Remove(lockPath)
	return fn()
}

func acquireLock(lockPath string, cfg LockConfig) error {
	deadline := time.Now().Add(cfg.Timeout)
	for {
		err := tryCreateLock(lockPath)
		if err == nil {
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("failed to create lock file: %w", err)
		}
		if lockIsStale(lockPath, cfg.StaleAfter) {
			// Abandoned by a dead process; take it over.
			os.Remove(lockPath)
			continue
		}
		if time.Now().After(deadline) {
			return ErrLockTimeout
		}
		time.Sleep(cfg.RetryInterval)
	}
}

func tryCreateLock(lockPath string) error {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	hostname, _ := os.Hostname()
	info := lockInfo{
		PID:       os.Getpid(),
		Timestamp: time.Now().UnixMilli(),
		Hostname:  hostname,
	}
	// Holder info is advisory; the O_EXCL create is what provides mutual
	// exclusion, so an encode failure is not fatal.
	_ = json.NewEncoder(f).Encode(info)
	return nil
}

// lockIsStale inspects an existing lock's recorded timestamp, falling back
// to file mtime when the body is unreadable.
func lockIsStale(lockPath string, staleAfter time.Duration) bool {
	raw, err := os.ReadFile(lockPath)
	if err == nil {
		var info lockInfo
		if jsonErr := json.Unmarshal(raw, &info); jsonErr == nil && info.Timestamp > 0 {
			return time.Since(time.UnixMilli(info.Timestamp)) > staleAfter
		}
	}
	st, err := os.Stat(lockPath)
	if err != nil {
		// Already gone; next create attempt will settle it.
		return false
	}
	return time.Since(st.ModTime()) > staleAfter
}
