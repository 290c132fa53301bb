package websocket

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gojuon-server/models"
	"gojuon-server/utils"
)

// Editors often emit several writes for one save
const coalesceWindow = 100 * time.Millisecond

// AssetWatcher watches the static root recursively and tells connected
// pages which asset changed.
type AssetWatcher struct {
	hub     *Hub
	root    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	// Track last change time per file to coalesce bursts
	lastChange map[string]time.Time

	mu sync.Mutex
}

func NewAssetWatcher(root string, hub *Hub, logger *slog.Logger) (*AssetWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	aw := &AssetWatcher{
		hub:        hub,
		root:       root,
		watcher:    watcher,
		logger:     logger,
		lastChange: make(map[string]time.Time),
	}

	if err := aw.addTree(root); err != nil {
		watcher.Close()
		return nil, err
	}

	go aw.run()
	return aw, nil
}

// Close stops watching. Pending events are discarded.
func (aw *AssetWatcher) Close() error {
	return aw.watcher.Close()
}

func (aw *AssetWatcher) run() {
	for {
		select {
		case event, ok := <-aw.watcher.Events:
			if !ok {
				return
			}
			aw.handleEvent(event)

		case err, ok := <-aw.watcher.Errors:
			if !ok {
				return
			}
			aw.logger.Warn("watcher error", "err", err)
		}
	}
}

func (aw *AssetWatcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	if utils.IsTemporaryFile(filepath.Base(path)) {
		return
	}

	// New directories are watched, not reported
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !utils.ShouldIgnoreDir(info.Name()) {
				if err := aw.addTree(path); err != nil {
					aw.logger.Warn("failed to watch directory", "path", path, "err", err)
				}
			}
			return
		}
	}

	var eventType string
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		eventType = models.AssetRemoved
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		eventType = models.AssetChanged
	default:
		return
	}

	now := time.Now()

	aw.mu.Lock()
	if eventType == models.AssetRemoved {
		delete(aw.lastChange, path)
	} else {
		if now.Sub(aw.lastChange[path]) < coalesceWindow {
			aw.mu.Unlock()
			return
		}
		aw.lastChange[path] = now
	}
	aw.mu.Unlock()

	rel := utils.RelativePath(aw.root, path)
	aw.logger.Debug("asset event", "type", eventType, "path", rel)

	aw.hub.Broadcast(models.AssetEvent{
		Type:      eventType,
		Path:      rel,
		Timestamp: now.UnixMilli(),
	})
}

// addTree watches root and every directory below it that is not ignored
func (aw *AssetWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil // Skip unreadable entries
		}

		if !d.IsDir() {
			return nil
		}
		if path != root && utils.ShouldIgnoreDir(d.Name()) {
			return filepath.SkipDir
		}

		if err := aw.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
