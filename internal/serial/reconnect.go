package serial

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// realWatcher adapts *fsnotify.Watcher to the Watcher interface.
type realWatcher struct {
	w *fsnotify.Watcher
}

func (r *realWatcher) Events() <-chan fsnotify.Event { return r.w.Events }
func (r *realWatcher) Close() error                  { return r.w.Close() }

func defaultWatch(dir string) (Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &realWatcher{w: w}, nil
}

// handleIOFault transitions UP -> ERROR -> (watching for reconnect). It
// removes the dead reader (the readLoop goroutine that called this has
// already decided to return), closes the handle, and arms a filesystem
// watch on the device's parent directory so a device-recreation event can
// trigger an eager reconnect. The Scheduler drives the periodic poll side
// of reconnection; this method only arms the eager path and performs the
// state transition.
func (s *Supervisor) handleIOFault(ctx context.Context, ioErr error) {
	s.cfg.Logger.Error("serial: I/O fault, entering reconnect state", "path", s.cfg.DevicePath, "error", ioErr.Error())

	s.mu.Lock()
	if s.port != nil {
		_ = s.port.Close()
		s.port = nil
	}
	s.up = false
	s.mu.Unlock()

	watch := s.cfg.Watch
	if watch == nil {
		watch = defaultWatch
	}

	dir := filepath.Dir(s.cfg.DevicePath)
	w, err := watch(dir)
	if err != nil {
		s.cfg.Logger.Error("serial: failed to arm filesystem watch", "dir", dir, "error", err.Error())
		return
	}

	go s.watchLoop(ctx, w)
}

// watchLoop waits for a Create event matching the configured device path,
// then attempts a reconnect. It exits on ctx cancellation, a successful
// reconnect (whether triggered by this watch or a concurrent periodic poll
// from the Scheduler, which it notices within one ReconnectInterval), or
// watcher closure.
func (s *Supervisor) watchLoop(ctx context.Context, w Watcher) {
	defer w.Close()

	ticker := time.NewTicker(s.cfg.ReconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.IsUp() {
				return
			}
		case ev, open := <-w.Events():
			if !open {
				return
			}
			if ev.Op&fsnotify.Create == 0 {
				continue
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.cfg.DevicePath) {
				continue
			}
			if s.Reconnect(ctx) {
				return
			}
		}
	}
}

// Reconnect attempts to reopen the serial device. It is safe to call
// concurrently from both the Scheduler's periodic poll job and the
// Supervisor's own filesystem watch: beginReconnect admits only one caller
// past the up/reconnecting check at a time, so only the first successful
// attempt ever opens a port or starts a reader.
func (s *Supervisor) Reconnect(ctx context.Context) bool {
	if !s.beginReconnect() {
		return s.IsUp()
	}
	defer s.endReconnect()

	if err := s.open(); err != nil {
		return false
	}

	go s.readLoop(ctx)
	return true
}

// beginReconnect reports whether the caller may proceed to attempt a
// reconnect: it fails if the link is already up or another reconnect
// attempt is in flight, and otherwise claims the in-flight flag atomically
// with that check.
func (s *Supervisor) beginReconnect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.up || s.reconnecting {
		return false
	}
	s.reconnecting = true
	return true
}

func (s *Supervisor) endReconnect() {
	s.mu.Lock()
	s.reconnecting = false
	s.mu.Unlock()
}
