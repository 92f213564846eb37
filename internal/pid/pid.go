// Package pid guards against two daemons driving the same hardware.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/swervectl/internal/errors"
)

const (
	pidFile = "swervectl.pid"
)

// DefaultPath is the PID file location used when none is configured.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), pidFile)
}

// Write writes the current process ID to path. It fails with
// ErrAlreadyRunning when path names a live process; a stale file is
// replaced.
func Write(path string) error {
	errFactory := errors.New()
	if path == "" {
		path = DefaultPath()
	}

	if bytes, err := os.ReadFile(path); err == nil {
		if running(strings.TrimSpace(string(bytes))) {
			return errFactory.WithData(errors.ErrAlreadyRunning, path)
		}
	} else if !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600)
	if err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

func running(content string) bool {
	pid, err := strconv.Atoi(content)
	if err != nil || pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}

// Remove removes the PID file.
func Remove(path string) error {
	errFactory := errors.New()
	if path == "" {
		path = DefaultPath()
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}
