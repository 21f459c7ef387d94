/*
 * Copyright (C) 2020-2022, IrineSistiana
 *
 * This file is part of nsrouter.
 *
 * nsrouter is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * nsrouter is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package suffix

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/IrineSistiana/nsrouter/pkg/nsname"
	"github.com/IrineSistiana/nsrouter/pkg/safeclose"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileResolver resolves against a private suffix list loaded from a file.
// The file has one suffix per line, "#" starts a comment. A name's base
// domain is the longest matching suffix plus one label. Names under an
// unlisted TLD fall back to the last label as the suffix.
//
// When autoReload is set the file is watched with fsnotify and reloaded on
// change. A load error keeps the previous rule set.
type FileResolver struct {
	logger *zap.Logger
	file   string
	sc     *safeclose.Closer

	mu       sync.RWMutex
	suffixes map[string]struct{}
}

func NewFileResolver(logger *zap.Logger, file string, autoReload bool) (*FileResolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &FileResolver{
		logger: logger,
		file:   file,
		sc:     safeclose.NewCloser(),
	}
	if err := r.loadFromDisk(); err != nil {
		return nil, err
	}
	if autoReload {
		if err := r.startFsWatcher(); err != nil {
			return nil, fmt.Errorf("failed to start fs watcher, %w", err)
		}
	}
	return r, nil
}

func (r *FileResolver) Close() {
	r.sc.Done()
	r.sc.CloseWait()
}

func (r *FileResolver) BaseDomain(name string) (string, error) {
	name = nsname.Normalize(name)
	labels := nsname.Labels(name)
	if len(labels) < 2 {
		return "", fmt.Errorf("no registrable domain for %s", name)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	// Longest listed suffix wins. The suffix must be a proper suffix of
	// the name so that at least one label is left for the base.
	for i := 1; i < len(labels); i++ {
		if _, ok := r.suffixes[strings.Join(labels[i:], ".")]; ok {
			return strings.Join(labels[i-1:], "."), nil
		}
	}
	return strings.Join(labels[len(labels)-2:], "."), nil
}

func (r *FileResolver) loadFromDisk() error {
	b, err := os.ReadFile(r.file)
	if err != nil {
		return err
	}
	suffixes := make(map[string]struct{})
	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		suffixes[nsname.Normalize(line)] = struct{}{}
	}

	r.mu.Lock()
	r.suffixes = suffixes
	r.mu.Unlock()
	return nil
}

func (r *FileResolver) startFsWatcher() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(r.file); err != nil {
		_ = w.Close()
		return err
	}

	r.sc.Go(func(closing <-chan struct{}) {
		defer w.Close()

		var delayReloadTimer *time.Timer
		for {
			select {
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				r.logger.Debug(
					"fs event",
					zap.Stringer("event", e.Op),
					zap.String("file", e.Name),
				)

				if delayReloadTimer != nil {
					delayReloadTimer.Stop()
				}
				delayReloadTimer = time.AfterFunc(time.Second, func() {
					if e.Op&fsnotify.Remove == fsnotify.Remove {
						_ = w.Remove(r.file)
						if err := w.Add(r.file); err != nil {
							r.logger.Error(
								"failed to re-watch file, auto reload may not work anymore",
								zap.String("file", r.file),
								zap.Error(err),
							)
						}
					}

					if err := r.loadFromDisk(); err != nil {
						r.logger.Error(
							"failed to reload file",
							zap.String("file", r.file),
							zap.Error(err),
						)
					} else {
						r.logger.Info(
							"suffix file reloaded",
							zap.String("file", r.file),
						)
					}
				})

			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.logger.Error("fs notify error", zap.Error(err))
			case <-closing:
				return
			}
		}
	})
	return nil
}
