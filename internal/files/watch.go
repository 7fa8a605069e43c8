package files

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch follows the disk store's directories and reports payloads that
// disappear while their record is still registered. Removals done through
// Registry.Delete are not reported because the record is gone first. The
// watcher stops when ctx is cancelled.
func Watch(ctx context.Context, reg *Registry, disk *DiskStore, onVanished func(FileRecord)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	for _, sub := range []string{imagesDir, filesDir} {
		if err := watcher.Add(filepath.Join(disk.Dir(), sub)); err != nil {
			watcher.Close()
			return fmt.Errorf("failed to watch upload directory: %w", err)
		}
	}
	logger := reg.logger.With().Str("watch", disk.Dir()).Logger()

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				id, ok := idFromPath(event.Name)
				if !ok {
					continue
				}
				rec, err := reg.Get(id)
				if err != nil {
					continue
				}
				logger.Warn().Str("id", id).Str("path", event.Name).Msg("payload removed outside the registry")
				if onVanished != nil {
					onVanished(rec)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error().Err(err).Msg("watcher error")
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}
