package transcript

import (
	"errors"
	"os"
	"syscall"
	"time"
)

// ErrLockTimeout reports that the transcript lock could not be acquired
// within the bounded wait.
var ErrLockTimeout = errors.New("transcript: lock acquisition timed out")

const (
	lockWait = 5 * time.Second
	lockPoll = 50 * time.Millisecond
)

// lockPath takes an exclusive flock on a sidecar lock file, polling for
// up to wait before giving up with ErrLockTimeout.
func lockPath(path string, wait time.Duration) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(wait)
	for {
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return f, nil
		}
		if err != syscall.EWOULDBLOCK && err != syscall.EAGAIN {
			_ = f.Close()
			return nil, err
		}
		if time.Now().After(deadline) {
			_ = f.Close()
			return nil, ErrLockTimeout
		}
		time.Sleep(lockPoll)
	}
}

func unlock(f *os.File) {
	if f == nil {
		return
	}
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	_ = f.Close()
}
