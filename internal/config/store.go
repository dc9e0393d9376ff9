package config

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joshuapassos/dbranch/internal/utils"
	"github.com/spf13/afero"
)

// pollInterval is the hot-reload fallback cadence when fsnotify events are
// unavailable or get coalesced, per spec §4.7.
const pollInterval = 2 * time.Second

// Store holds the live in-memory document, reloaded from disk on change
// (fsnotify-driven) or on a fixed poll, and written back synchronously on
// every mutation.
type Store struct {
	fsys afero.Fs
	path string

	mu  sync.RWMutex
	doc *Document
}

// Open loads path (creating it with defaults if absent) and returns a
// Store wrapping it.
func Open(fsys afero.Fs, path string) (*Store, error) {
	doc, err := Load(fsys, path)
	if err != nil {
		return nil, err
	}
	return &Store{fsys: fsys, path: path, doc: doc}, nil
}

// Snapshot returns a copy of the current document, safe to read without
// holding the store's lock.
func (s *Store) Snapshot() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.doc
}

// Mutate applies fn to a copy of the current document under lock, then
// persists the result to disk before swapping it in, so a failed save
// never leaves the in-memory and on-disk copies diverged.
func (s *Store) Mutate(fn func(*Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := *s.doc
	next.Branches = append([]Branch(nil), s.doc.Branches...)
	if err := fn(&next); err != nil {
		return err
	}
	if err := Save(s.fsys, s.path, &next); err != nil {
		return err
	}
	s.doc = &next
	return nil
}

// reload re-reads the document from disk, swapping it in on success. A
// transient read or parse failure is logged and otherwise ignored, per
// spec §4.7's "log-and-continue" hot-reload policy.
func (s *Store) reload() {
	doc, err := Load(s.fsys, s.path)
	if err != nil {
		utils.Warning("config reload failed, keeping previous document: %v", err)
		return
	}
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
}

// Watch runs the hot-reload loop until ctx is cancelled: an fsnotify
// watch on the config file's directory for immediate pickup, backstopped
// by a fixed poll in case the watch is dropped (e.g. the file is replaced
// by a tool that doesn't preserve the inode, or fsnotify isn't supported
// on the filesystem afero.Fs maps to).
func (s *Store) Watch(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		utils.Warning("config file watcher unavailable, falling back to polling only: %v", err)
		s.pollLoop(ctx)
		return
	}
	defer watcher.Close()

	dir := dirOf(s.path)
	if err := watcher.Add(dir); err != nil {
		utils.Warning("failed to watch config directory %s: %v", dir, err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name == s.path {
				s.reload()
			}
		case <-watcher.Errors:
			continue
		case <-ticker.C:
			s.reload()
		}
	}
}

// pollLoop is the poll-only fallback used when fsnotify itself can't be
// set up (e.g. inotify exhausted, or unsupported by the underlying fs).
func (s *Store) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reload()
		}
	}
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

// Path returns the path resolution this store was opened with.
func (s *Store) Path() string {
	return s.path
}
