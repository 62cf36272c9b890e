// Copyright 2026 The Shift Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events an editor produces
// when saving a file.
const DefaultDebounce = 100 * time.Millisecond

// Watch calls onChange with the path of each watched file that was
// written, created, or renamed into place, after events settle for
// debounce. Watches are placed on the parent directories so replacing a
// file by rename is seen. Watch blocks until ctx is done.
func Watch(ctx context.Context, paths []string, debounce time.Duration, logger *slog.Logger, onChange func(path string)) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	wanted := make(map[string]bool)
	directories := make(map[string]bool)
	for _, path := range paths {
		if path == "" {
			continue
		}
		absolute, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", path, err)
		}
		wanted[absolute] = true
		directory := filepath.Dir(absolute)
		if directories[directory] {
			continue
		}
		if err := watcher.Add(directory); err != nil {
			return fmt.Errorf("watching %s: %w", directory, err)
		}
		directories[directory] = true
	}

	debounceTimer := time.NewTimer(debounce)
	if !debounceTimer.Stop() {
		<-debounceTimer.C
	}
	defer debounceTimer.Stop()
	pending := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name := filepath.Clean(event.Name)
			if !wanted[name] {
				continue
			}
			pending[name] = true
			debounceTimer.Reset(debounce)

		case <-debounceTimer.C:
			changed := pending
			pending = make(map[string]bool)
			for path := range changed {
				logger.Debug("watched file changed", "path", path)
				onChange(path)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("file watcher error", "error", err)
		}
	}
}
