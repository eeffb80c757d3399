package uploader

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/jacobsa/daemonize"

	"github.com/darinkishore/hurry/hlog"
	"github.com/darinkishore/hurry/targetfs"
)

var logger = hlog.Tag("uploader")

// endpointPath is the file recording the worker's loopback address. The
// file is not removed when the worker exits, so its presence alone does not
// mean a worker is running. lockPath guards worker startup (spec.md §4.6
// "At-most-one concurrent worker invariant").
func endpointPath(cacheDir string) string { return filepath.Join(cacheDir, "worker.endpoint") }
func lockPath(cacheDir string) string     { return filepath.Join(cacheDir, "worker.lock") }
func logPath(cacheDir string) string      { return filepath.Join(cacheDir, "worker.log") }

// EnsureWorker starts the background upload worker if one is not already
// running for cacheDir, daemonizing it via the same fork-and-detach
// mechanism the teacher's go.mod already carries a dependency for
// (jacobsa/daemonize): Run forks selfPath re-executed with the hidden
// "__worker" subcommand, waits for the child to call SignalOutcome once its
// listener is up, then returns — the parent never blocks on the worker's
// subsequent lifetime.
func EnsureWorker(cacheDir, selfPath string) error {
	lock, err := targetfs.TryLock(lockPath(cacheDir))
	if err != nil {
		// Lock contention means another invocation is starting a worker
		// right now; nothing to do.
		return nil
	}
	defer lock.Unlock()

	if addr, err := os.ReadFile(endpointPath(cacheDir)); err == nil {
		if conn, err := net.DialTimeout("tcp", string(addr), time.Second); err == nil {
			conn.Close()
			return nil
		}
	}

	logFile, err := os.OpenFile(logPath(cacheDir), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()

	args := []string{"__worker", "--cache-dir", cacheDir}
	env := os.Environ()
	if err := daemonize.Run(selfPath, args, env, logFile); err != nil {
		return fmt.Errorf("uploader: failed to start worker: %w", err)
	}
	logger.Infof("worker started for cache dir %s", cacheDir)
	return nil
}

// RunWorkerProcess is the entry point the re-exec'd "__worker" subcommand
// calls. It signals the parent (that called EnsureWorker/daemonize.Run) of
// the outcome of startup, then blocks serving the upload queue until it has
// been idle for DefaultWorkerQuietPeriod.
func RunWorkerProcess(cacheDir string, w *Worker) error {
	addr, err := w.Listen()
	if err != nil {
		_ = daemonize.SignalOutcome(err)
		return err
	}
	if err := os.WriteFile(endpointPath(cacheDir), []byte(addr), 0o644); err != nil {
		_ = daemonize.SignalOutcome(err)
		return err
	}
	if err := daemonize.SignalOutcome(nil); err != nil {
		return err
	}
	return w.Serve()
}

// selfExecPath re-execs the same binary that is already running; grounded
// on the standard os.Executable/exec.LookPath pattern for self re-exec.
func selfExecPath() (string, error) {
	if p, err := os.Executable(); err == nil {
		return p, nil
	}
	return exec.LookPath(os.Args[0])
}
