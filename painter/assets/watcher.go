package assets

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/fresco/painter/core"
)

// ShaderEvent reports that the file behind a registered shader identity
// changed. ModTime carries the file's modification time so consumers can
// treat duplicate and out-of-order deliveries as no-ops.
type ShaderEvent struct {
	Name    string
	ModTime time.Time
}

// start pumps filesystem notifications into the bounded event channel. It
// runs until Close; delivery is fire-and-forget so a slow consumer can
// never stall the watcher goroutine.
func (l *Library) start() {
	for {
		select {
		case e, ok := <-l.fsnotify.Events:
			if !ok {
				return
			}
			// Saves arrive as Write in place or as Create/Rename when the
			// editor replaces the file.
			if e.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			l.handleFileEvent(e.Name)

		case e, ok := <-l.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(e.Error())

		case <-l.done:
			l.fsnotify.Close()
			close(l.events)
			return
		}
	}
}

func (l *Library) handleFileEvent(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}

	l.mutex.RLock()
	name, registered := l.names[abs]
	l.mutex.RUnlock()
	if !registered {
		return
	}

	modTime := time.Now()
	if info, err := os.Stat(abs); err == nil {
		modTime = info.ModTime()
	}

	select {
	case l.events <- ShaderEvent{Name: name, ModTime: modTime}:
	default:
		core.LogWarn("shader event channel full, dropping change for %s", name)
	}
}
