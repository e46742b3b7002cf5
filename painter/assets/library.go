// Package assets maps shader identities to files on disk, loads their
// binaries and watches them for live edits. It knows nothing about
// pipelines; it only reports that a registered file changed.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/fresco/painter/core"
)

const (
	defaultEventBuffer = 64
	maxEventBuffer     = 1024
)

type LibraryConfig struct {
	// WatchShaders enables the filesystem watcher. Without it Register
	// still works and Events never delivers.
	WatchShaders bool
	// EventBuffer bounds the change-event channel. A full channel drops
	// the event with a warning; a later save fires again.
	EventBuffer int
}

// Library is the shader registry: identity to path, binary loading and the
// watch bridge. One instance per painter.
type Library struct {
	config *LibraryConfig

	mutex   sync.RWMutex
	paths   map[string]string // identity -> absolute path
	names   map[string]string // absolute path -> identity
	watched map[string]bool   // directories added to the watcher

	fsnotify *fsnotify.Watcher
	events   chan ShaderEvent
	done     chan struct{}
	isClosed bool
}

func NewLibrary(config *LibraryConfig) (*Library, error) {
	if config == nil {
		config = &LibraryConfig{}
	}
	buffer := config.EventBuffer
	if buffer == 0 {
		buffer = defaultEventBuffer
	}
	buffer = core.Clamp(buffer, 1, maxEventBuffer)

	l := &Library{
		config:  config,
		paths:   make(map[string]string),
		names:   make(map[string]string),
		watched: make(map[string]bool),
		events:  make(chan ShaderEvent, buffer),
		done:    make(chan struct{}),
	}

	if config.WatchShaders {
		fsWatch, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, err
		}
		l.fsnotify = fsWatch
		go l.start()
	}

	return l, nil
}

// Register binds a shader identity to a file. The file must exist; editors
// replace files on save, so the watcher tracks the parent directory and
// filters events down to registered paths.
func (l *Library) Register(name, path string) error {
	if name == "" {
		err := fmt.Errorf("func Register - shader name must not be empty")
		core.LogError(err.Error())
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		core.LogError("shader %s not found at %s", name, abs)
		return err
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.isClosed {
		return errors.New("shader library already closed")
	}
	if prev, exists := l.paths[name]; exists && prev != abs {
		core.LogWarn("shader %s re-registered from %s to %s", name, prev, abs)
		delete(l.names, prev)
	}
	l.paths[name] = abs
	l.names[abs] = name

	if l.fsnotify != nil {
		dir := filepath.Dir(abs)
		if !l.watched[dir] {
			if err := l.fsnotify.Add(dir); err != nil {
				return err
			}
			l.watched[dir] = true
		}
	}
	return nil
}

// Load reads the current binary of a registered shader.
func (l *Library) Load(name string) ([]byte, error) {
	l.mutex.RLock()
	path, exists := l.paths[name]
	l.mutex.RUnlock()
	if !exists {
		err := fmt.Errorf("shader not registered: %s", name)
		core.LogError(err.Error())
		return nil, err
	}
	return os.ReadFile(path)
}

// Path returns the registered file of a shader identity.
func (l *Library) Path(name string) (string, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	path, exists := l.paths[name]
	return path, exists
}

// Events delivers one ShaderEvent per observed change of a registered file.
// The channel is bounded; consumers drain it at frame start.
func (l *Library) Events() <-chan ShaderEvent {
	return l.events
}

func (l *Library) Close() error {
	l.mutex.Lock()
	if l.isClosed {
		l.mutex.Unlock()
		return nil
	}
	l.isClosed = true
	l.mutex.Unlock()

	if l.fsnotify != nil {
		close(l.done)
		return nil
	}
	close(l.events)
	return nil
}
