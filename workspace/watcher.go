// Copyright (C) 2025 Lanternworks OSS (dev@lanternworks.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package workspace

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ChangeFunc receives the workspace-relative path of an externally modified
// file. Called from the watcher goroutine.
type ChangeFunc func(relPath string)

// Watcher reports external writes to watched files inside a workspace.
//
// # Description
//
// Used to detect that a file referenced by a pending proposal drifted after
// the proposal was generated (for example, the user edited it in another
// editor). The watcher only observes; reacting to drift is the caller's
// decision.
//
// # Thread Safety
//
// Safe for concurrent use.
type Watcher struct {
	ws     *Workspace
	fsw    *fsnotify.Watcher
	onChg  ChangeFunc
	logger *slog.Logger

	mu      sync.Mutex
	watched map[string]struct{} // relative paths
}

// NewWatcher creates a watcher over the given workspace.
func NewWatcher(ws *Workspace, onChange ChangeFunc, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		ws:      ws,
		fsw:     fsw,
		onChg:   onChange,
		logger:  logger,
		watched: make(map[string]struct{}),
	}, nil
}

// Watch registers a relative file path. The containing directory is watched
// because editors replace files via rename on most platforms.
func (w *Watcher) Watch(rel string) error {
	full, err := w.ws.Resolve(rel)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.watched[filepath.ToSlash(rel)] = struct{}{}
	w.mu.Unlock()
	return w.fsw.Add(filepath.Dir(full))
}

// Unwatch removes a relative file path from the watch set.
func (w *Watcher) Unwatch(rel string) {
	w.mu.Lock()
	delete(w.watched, filepath.ToSlash(rel))
	w.mu.Unlock()
}

// Run processes filesystem events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = w.fsw.Close()
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			rel, err := filepath.Rel(w.ws.Root(), ev.Name)
			if err != nil || strings.HasPrefix(rel, "..") {
				continue
			}
			rel = filepath.ToSlash(rel)
			w.mu.Lock()
			_, hit := w.watched[rel]
			w.mu.Unlock()
			if hit && w.onChg != nil {
				w.onChg(rel)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err.Error())
		}
	}
}
