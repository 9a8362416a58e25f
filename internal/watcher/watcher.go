// Package watcher ingests files dropped into configured folders, one folder
// per chatbot, using fsnotify with debouncing.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Folder binds one watched directory to the chatbot its files are ingested
// into.
type Folder struct {
	ChatbotID  string
	Directory  string
	Extensions []string
}

// DropFunc is called once per settled file with the owning chatbot.
type DropFunc func(chatbotID, path string)

// Watcher watches drop folders and invokes the drop callback when a file is
// created or finishes being written.
type Watcher struct {
	folders  []Folder
	onDrop   DropFunc
	debounce time.Duration
	watcher  *fsnotify.Watcher
	logger   *zap.Logger

	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
}

// NewWatcher creates a watcher over the given folders. Folders with an empty
// directory or chatbot ID are skipped.
func NewWatcher(folders []Folder, onDrop DropFunc, logger *zap.Logger) *Watcher {
	kept := make([]Folder, 0, len(folders))
	for _, f := range folders {
		if f.Directory == "" || f.ChatbotID == "" {
			continue
		}
		f.Directory = filepath.Clean(f.Directory)
		kept = append(kept, f)
	}
	return &Watcher{
		folders:     kept,
		onDrop:      onDrop,
		debounce:    defaultDebounce,
		logger:      logger,
		debounceMap: make(map[string]*time.Timer),
		done:        make(chan struct{}),
	}
}

// Start begins watching. Missing folders are created. It runs until ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = fsw
	w.started = true
	for _, f := range w.folders {
		if err := os.MkdirAll(f.Directory, 0755); err != nil {
			_ = fsw.Close()
			w.watcher = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
		if err := fsw.Add(f.Directory); err != nil {
			_ = fsw.Close()
			w.watcher = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
		w.logger.Info("watching drop folder",
			zap.String("directory", f.Directory),
			zap.String("chatbot_id", f.ChatbotID))
	}
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op != fsnotify.Create && ev.Op != fsnotify.Write {
		if ev.Op == fsnotify.Remove {
			w.cancelDebounce(ev.Name)
		}
		return
	}
	folder, ok := w.folderFor(ev.Name)
	if !ok {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil || info.IsDir() {
		return
	}
	if !matchExtension(ev.Name, folder.Extensions) {
		return
	}
	w.debounceDrop(folder.ChatbotID, ev.Name)
}

func (w *Watcher) folderFor(path string) (Folder, bool) {
	dir := filepath.Dir(filepath.Clean(path))
	for _, f := range w.folders {
		if f.Directory == dir {
			return f, true
		}
	}
	return Folder{}, false
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// debounceDrop defers the callback until writes to the file settle, so a
// slowly copied file is not ingested half-written.
func (w *Watcher) debounceDrop(chatbotID, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	w.debounceMap[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.logger.Debug("drop folder file settled",
			zap.String("path", path),
			zap.String("chatbot_id", chatbotID))
		if w.onDrop != nil {
			w.onDrop(chatbotID, path)
		}
	})
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

// SyncExistingFiles invokes the drop callback for files already present in
// the watched folders. Call after Start to pick up files dropped while the
// process was down.
func (w *Watcher) SyncExistingFiles() {
	for _, f := range w.folders {
		folder := f
		filepath.WalkDir(folder.Directory, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			if matchExtension(path, folder.Extensions) && w.onDrop != nil {
				w.onDrop(folder.ChatbotID, path)
			}
			return nil
		})
	}
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
