package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harunnryd/kakunin/internal/config"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"
)

const lockFileName = "workspace.lock"

var errLockBusy = errors.New("workspace lock busy")

// FileLock keeps a second kakunin process from opening the same workspace.
type FileLock struct {
	fileLock    *flock.Flock
	lockPath    string
	workspaceID string
	acquiredAt  time.Time
	mu          sync.RWMutex
}

type FileLockConfig struct {
	LockTimeout  time.Duration
	LockRetry    time.Duration
	LockMaxRetry int
}

func DefaultFileLockConfig() *FileLockConfig {
	lockTimeout, _ := config.DurationOrDefault("", config.DefaultStoreLockTimeout)
	lockRetry, _ := config.DurationOrDefault("", config.DefaultStoreLockRetry)

	return &FileLockConfig{
		LockTimeout:  lockTimeout,
		LockRetry:    lockRetry,
		LockMaxRetry: config.DefaultStoreLockMaxRetry,
	}
}

func NewFileLock(workspaceID, basePath string, cfg *FileLockConfig) (*FileLock, error) {
	if cfg == nil {
		cfg = DefaultFileLockConfig()
	}

	lockPath := filepath.Join(basePath, lockFileName)
	fl := &FileLock{
		fileLock:    flock.New(lockPath),
		lockPath:    lockPath,
		workspaceID: workspaceID,
	}

	if err := fl.acquire(cfg); err != nil {
		return nil, err
	}

	fl.acquiredAt = time.Now()
	slog.Info("File lock acquired", "workspace", workspaceID, "path", lockPath)
	return fl, nil
}

// acquire polls TryLock at a constant interval until it wins, the retry
// budget is spent or the timeout passes.
func (fl *FileLock) acquire(cfg *FileLockConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.LockTimeout)
	defer cancel()

	retries := cfg.LockMaxRetry - 1
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.LockRetry), uint64(retries)),
		ctx,
	)

	err := backoff.Retry(func() error {
		locked, err := fl.fileLock.TryLock()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to attempt lock: %w", err))
		}
		if !locked {
			return errLockBusy
		}
		return nil
	}, policy)
	if errors.Is(err, errLockBusy) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("workspace %s is locked by another instance (timeout after %v)", fl.workspaceID, cfg.LockTimeout)
	}
	return err
}

func (fl *FileLock) Unlock() {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.fileLock == nil {
		slog.Warn("FileLock already unlocked", "workspace", fl.workspaceID)
		return
	}

	if err := fl.fileLock.Unlock(); err != nil {
		slog.Error("Failed to release file lock", "workspace", fl.workspaceID, "path", fl.lockPath, "error", err)
	} else {
		slog.Info("File lock released", "workspace", fl.workspaceID, "held_duration_ms", time.Since(fl.acquiredAt).Milliseconds())
	}
	fl.fileLock = nil
}

func (fl *FileLock) IsLocked() bool {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	return fl.fileLock != nil
}

func (fl *FileLock) HeldDuration() time.Duration {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	if fl.acquiredAt.IsZero() {
		return 0
	}
	return time.Since(fl.acquiredAt)
}

// CleanupStaleLocks removes a workspace lock file older than maxAge when
// force is set. Without force it only reports the stale file.
func CleanupStaleLocks(basePath string, maxAge time.Duration, force bool) error {
	lockPath := filepath.Join(basePath, lockFileName)
	info, err := os.Stat(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	age := time.Since(info.ModTime())
	if age <= maxAge {
		return nil
	}

	slog.Warn("Found stale lock file", "path", lockPath, "age", age, "max_age", maxAge)
	if !force {
		slog.Info("Stale lock detected but not cleaning (use --force-clean-locks to remove)", "path", lockPath)
		return nil
	}

	if err := os.Remove(lockPath); err != nil {
		return fmt.Errorf("remove stale lock %s: %w", lockPath, err)
	}
	slog.Info("Stale lock file removed", "path", lockPath)
	return nil
}
