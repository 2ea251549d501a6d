// Package config implements the hot-reloading YAML configuration agent
// used by every bot binary, grounded on kubernetes-sigs-prow's
// configAgent pattern (cmd/horologium/main.go's
// o.config.ConfigAgent()) generalized to watch an arbitrary YAML file
// with fsnotify instead of a prow-specific config type.
package config

import (
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"sigs.k8s.io/yaml"
)

// Bot is the shape common to every bot's --config-path file. Bots that
// need their own sections (the sandbox list, the monthly category
// templates, the talk pages to archive) embed Bot in their own config
// struct and pass it as Agent's type parameter.
type Bot struct {
	// DelayBeforeRequests and DelayBetweenEdits tune the wiki client's
	// inter-request throttling (see spec.md §6).
	DelayBeforeRequestsSeconds int `json:"delayBeforeRequestsSeconds"`
	DelayBetweenEditsSeconds   int `json:"delayBetweenEditsSeconds"`
	// EmergencyStopGracePeriodSeconds is the window of pre-activation
	// edits the default emergency-stop predicate ignores.
	EmergencyStopGracePeriodSeconds int64 `json:"emergencyStopGracePeriodSeconds"`
}

// Agent holds the most recently loaded configuration of type T and
// keeps it current by watching the backing file for changes.
type Agent[T any] struct {
	mu  sync.RWMutex
	cfg T
	log *logrus.Entry
}

// NewAgent loads path once and starts watching it for subsequent
// changes. Watch failures are logged, not fatal: the process keeps
// running on its last-loaded config.
func NewAgent[T any](path string, log *logrus.Entry) (*Agent[T], error) {
	a := &Agent[T]{log: log}
	if err := a.load(path); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Warn("could not start config watcher; hot reload disabled")
		return a, nil
	}
	if err := watcher.Add(path); err != nil {
		log.WithError(err).Warn("could not watch config path; hot reload disabled")
		watcher.Close()
		return a, nil
	}
	go a.watch(watcher, path)
	return a, nil
}

func (a *Agent[T]) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var cfg T
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	return nil
}

func (a *Agent[T]) watch(watcher *fsnotify.Watcher, path string) {
	defer watcher.Close()
	for event := range watcher.Events {
		if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			continue
		}
		if err := a.load(path); err != nil {
			a.log.WithError(err).Error("failed to reload config")
			continue
		}
		a.log.Info("reloaded config")
	}
}

// Config returns a snapshot of the current configuration.
func (a *Agent[T]) Config() T {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}
