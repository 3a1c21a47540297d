// Package sentinel supervises a child process running the same binary. The
// child is restarted with exponential backoff when it exits and replaced
// when the binary on disk changes.
package sentinel

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tiation/riggerhire/pkg/backoff"
)

const (
	// GracePeriod is the time to wait after SIGTERM before sending SIGKILL.
	GracePeriod = 10 * time.Second

	// SuccessRunTime is how long the child must run before backoff resets.
	SuccessRunTime = 30 * time.Second

	// DebounceInterval is the delay after an fsnotify event before checking the checksum.
	DebounceInterval = 100 * time.Millisecond
)

type Config struct {
	// BinaryPath defaults to the running executable.
	BinaryPath string
	// Args are passed to the child, e.g. []string{"serve"}.
	Args           []string
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Sentinel struct {
	cfg      Config
	mu       sync.Mutex
	lastHash [sha256.Size]byte
	backoff  *backoff.Backoff
}

func New(cfg Config) (*Sentinel, error) {
	if cfg.BinaryPath == "" {
		p, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve executable path: %w", err)
		}
		cfg.BinaryPath = p
	}
	p, err := filepath.EvalSymlinks(cfg.BinaryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve symlinks for binary: %w", err)
	}
	cfg.BinaryPath = p

	h, err := HashFile(p)
	if err != nil {
		return nil, err
	}
	return &Sentinel{
		cfg:      cfg,
		lastHash: h,
		backoff:  backoff.New(cfg.InitialBackoff, cfg.MaxBackoff),
	}, nil
}

// Run blocks until ctx is cancelled, keeping one child alive.
func (s *Sentinel) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "starting sentinel", "binary", s.cfg.BinaryPath, "args", s.cfg.Args, "hash", fmt.Sprintf("%x", s.lastHash[:8]))

	updateCh := make(chan struct{}, 1)
	go s.watchBinary(ctx, updateCh)

	for {
		if ctx.Err() != nil {
			return nil
		}
		child, err := s.startChild(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to start child", "error", err)
			if !s.sleep(ctx, s.backoff.Next()) {
				return nil
			}
			continue
		}

		startTime := time.Now()
		childDone := make(chan error, 1)
		go func() {
			childDone <- child.Wait()
		}()

		select {
		case err := <-childDone:
			elapsed := time.Since(startTime)
			if elapsed >= SuccessRunTime {
				s.backoff.Reset()
			}
			slog.WarnContext(ctx, "child exited", "elapsed", elapsed, "error", err)
			if !s.sleep(ctx, s.backoff.Next()) {
				return nil
			}

		case <-updateCh:
			slog.InfoContext(ctx, "binary update detected, restarting child")
			s.stopChild(ctx, child)
			<-childDone
			if h, err := HashFile(s.cfg.BinaryPath); err == nil {
				s.mu.Lock()
				s.lastHash = h
				s.mu.Unlock()
			}
			s.backoff.Reset()

		case <-ctx.Done():
			slog.InfoContext(ctx, "stopping child and exiting")
			s.stopChild(ctx, child)
			<-childDone
			return nil
		}
	}
}

func (s *Sentinel) startChild(ctx context.Context) (*exec.Cmd, error) {
	cmd := exec.Command(s.cfg.BinaryPath, s.cfg.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("exec %s: %w", s.cfg.BinaryPath, err)
	}
	slog.InfoContext(ctx, "started child process", "pid", cmd.Process.Pid)
	return cmd, nil
}

// stopChild sends SIGTERM and escalates to SIGKILL after GracePeriod. The
// caller drains Wait.
func (s *Sentinel) stopChild(ctx context.Context, cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		slog.WarnContext(ctx, "failed to send SIGTERM", "pid", pid, "error", err)
		return
	}
	time.AfterFunc(GracePeriod, func() {
		if err := cmd.Process.Signal(syscall.Signal(0)); err == nil {
			slog.Warn("grace period expired, killing child", "pid", pid)
			_ = cmd.Process.Kill()
		}
	})
}

func (s *Sentinel) sleep(ctx context.Context, d time.Duration) bool {
	slog.InfoContext(ctx, "waiting before restart", "backoff", d)
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// watchBinary watches the binary's directory, since deploys usually replace
// the file by rename.
func (s *Sentinel) watchBinary(ctx context.Context, updateCh chan<- struct{}) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.ErrorContext(ctx, "failed to create fsnotify watcher", "error", err)
		return
	}
	defer watcher.Close()

	watchDir := filepath.Dir(s.cfg.BinaryPath)
	binaryName := filepath.Base(s.cfg.BinaryPath)
	if err := watcher.Add(watchDir); err != nil {
		slog.ErrorContext(ctx, "failed to watch directory", "dir", watchDir, "error", err)
		return
	}

	var debounceTimer *time.Timer
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != binaryName {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(DebounceInterval, func() {
				newHash, err := HashFile(s.cfg.BinaryPath)
				if err != nil {
					return
				}
				s.mu.Lock()
				unchanged := newHash == s.lastHash
				s.mu.Unlock()
				if unchanged {
					return
				}
				select {
				case updateCh <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.WarnContext(ctx, "fsnotify error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}

// HashFile computes the SHA256 hash of the file at the given path.
func HashFile(path string) ([sha256.Size]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [sha256.Size]byte{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return [sha256.Size]byte{}, fmt.Errorf("hash %s: %w", path, err)
	}

	var result [sha256.Size]byte
	copy(result[:], h.Sum(nil))
	return result, nil
}
