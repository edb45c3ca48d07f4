package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Store holds the live configuration and swaps it atomically on reload, so
// channel options can change without a restart. Secrets and model settings
// are read once at startup; only the guild/channel option layers are
// consulted through the store at runtime.
type Store struct {
	path string
	cfg  atomic.Pointer[Config]
}

func NewStore(cfg *Config, path string) *Store {
	s := &Store{path: path}
	s.cfg.Store(cfg)
	return s
}

// Current returns the live configuration snapshot.
func (s *Store) Current() *Config {
	return s.cfg.Load()
}

// Resolve resolves channel options against the live configuration.
func (s *Store) Resolve(guildID, channelID, categoryID string) (ChannelOptions, bool) {
	return s.Current().Resolve(guildID, channelID, categoryID)
}

// Watch reloads the config file on change until ctx is done. Editors often
// replace files via rename, so the parent directory is watched and events
// are debounced before reloading.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return err
	}

	var debounce *time.Timer
	reload := func() {
		cfg, err := Load(s.path)
		if err != nil {
			slog.Warn("config reload failed, keeping previous config", "path", s.path, "error", err)
			return
		}
		s.cfg.Store(cfg)
		slog.Info("config reloaded", "path", s.path, "guilds", len(cfg.Guilds))
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}
