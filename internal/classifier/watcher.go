// Copyright 2026 The careroute Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package classifier

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch reloads the rule tables whenever one of the configured rule files
// changes on disk. It is a no-op when both paths are embedded defaults.
// The returned stop function closes the watcher.
func (c *Classifier) Watch() (stop func(), err error) {
	paths := make([]string, 0, 2)
	if c.opts.EmergencyPatternsPath != "" {
		paths = append(paths, c.opts.EmergencyPatternsPath)
	}
	if c.opts.HandlerRulesPath != "" {
		paths = append(paths, c.opts.HandlerRulesPath)
	}
	if len(paths) == 0 {
		return func() {}, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	watched := make(map[string]bool, len(paths))
	for _, p := range paths {
		// Watch the directory: editors replace files on save, which drops
		// a watch registered on the file itself.
		if err := watcher.Add(filepath.Dir(p)); err != nil {
			watcher.Close()
			return nil, err
		}
		watched[filepath.Clean(p)] = true
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !watched[filepath.Clean(event.Name)] {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := c.Reload(); err != nil {
					log.Errorf("Rule reload failed, keeping previous tables: %v", err)
				} else {
					log.Infof("Reloaded classifier rules (version %d)", c.RuleVersion())
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("Rule watcher error: %v", err)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = watcher.Close()
	}, nil
}
