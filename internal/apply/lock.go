package apply

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// LockPath returns the lock file guarding a config file.
func LockPath(configPath string) string {
	return configPath + ".hkbridge.lock"
}

// fileLock is an exclusive advisory lock held for one apply cycle.
type fileLock struct {
	file *os.File
}

// acquireLock takes a non-blocking exclusive flock. A held lock returns ErrBusy.
func acquireLock(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w (lock %s)", ErrBusy, path)
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	// PID is informational only; the flock is what excludes.
	if err := f.Truncate(0); err == nil {
		fmt.Fprintf(f, "%d\n", os.Getpid())
	}

	return &fileLock{file: f}, nil
}

func (l *fileLock) release() error {
	defer l.file.Close()
	return unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
}
