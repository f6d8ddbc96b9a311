// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/gogpu/cluster"
)

// Watcher keeps a cluster description current while its file changes.
//
// Every successful reload replaces the current description with a new
// value and hands it to the registered callbacks. A file that fails to
// parse or validate is logged and ignored; the previous description stays
// current.
type Watcher struct {
	v    *viper.Viper
	path string

	mu        sync.RWMutex
	current   *Cluster
	callbacks []func(*Cluster)
	watching  bool
}

// NewWatcher loads path and returns a watcher for it. Call Start to begin
// watching.
func NewWatcher(path string) (*Watcher, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	c, err := decode(v)
	if err != nil {
		return nil, err
	}
	return &Watcher{v: v, path: path, current: c}, nil
}

// Current returns the latest valid description.
func (w *Watcher) Current() *Cluster {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers fn to receive every reloaded description. Callbacks
// run on the watcher's goroutine.
func (w *Watcher) OnChange(fn func(*Cluster)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Start begins watching the file. Calling Start again has no effect.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watching {
		return
	}
	w.v.OnConfigChange(w.handle)
	w.v.WatchConfig()
	w.watching = true
}

func (w *Watcher) handle(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	cluster.Logger().Debug("config: change detected", "op", e.Op.String(), "file", e.Name)
	if err := w.reload(); err != nil {
		cluster.Logger().Warn("config: reload failed, keeping previous description",
			"file", w.path, "err", err)
	}
}

// reload rereads the file and notifies callbacks on success.
func (w *Watcher) reload() error {
	w.mu.Lock()
	if err := w.v.ReadInConfig(); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("config: read %s: %w", w.path, err)
	}
	c, err := decode(w.v)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.current = c
	callbacks := make([]func(*Cluster), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	cluster.Logger().Info("config: reloaded", "file", w.path, "nodes", len(c.Nodes))
	for _, fn := range callbacks {
		fn(c)
	}
	return nil
}
