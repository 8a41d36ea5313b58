package toolbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/freitascorp/deskclaw/pkg/logger"
)

// MaxWatchDuration caps watch_file_changes.
const MaxWatchDuration = 300 * time.Second

// Change is one observed filesystem event.
type Change struct {
	Time string `json:"time"`
	Type string `json:"type"`
	Path string `json:"path"`
}

func changeType(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "created"
	case op.Has(fsnotify.Remove):
		return "deleted"
	case op.Has(fsnotify.Rename):
		return "renamed"
	case op.Has(fsnotify.Write):
		return "modified"
	default:
		return "attributes"
	}
}

// Watch reports changes to path until d elapses or ctx ends. A file is
// watched through its parent directory so that editors which replace the
// file are still seen.
func Watch(ctx context.Context, path string, d time.Duration) ([]Change, error) {
	if d <= 0 {
		return nil, fmt.Errorf("duration must be positive")
	}
	d = min(d, MaxWatchDuration)
	target := clean(path)
	fi, err := os.Stat(target)
	if err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	dir, only := target, ""
	if !fi.IsDir() {
		dir, only = filepath.Dir(target), target
	}
	if err := w.Add(dir); err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	logger.DebugCF("toolbox", "Watching path", map[string]any{"path": target, "duration": d.String()})

	timer := time.NewTimer(d)
	defer timer.Stop()

	changes := []Change{}
	for {
		select {
		case <-ctx.Done():
			return changes, nil
		case <-timer.C:
			return changes, nil
		case ev, ok := <-w.Events:
			if !ok {
				return changes, nil
			}
			if only != "" && filepath.Clean(ev.Name) != only {
				continue
			}
			changes = append(changes, Change{
				Time: time.Now().Format(timeLayout),
				Type: changeType(ev.Op),
				Path: ev.Name,
			})
		case err, ok := <-w.Errors:
			if !ok {
				return changes, nil
			}
			logger.WarnCF("toolbox", "Watcher error", map[string]any{"error": err.Error()})
		}
	}
}
