package views

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps the store's rows in sync with a directory of CSV row files,
// one file per view (the file base name is the view ID). File writes play the
// role the worksheet change events had in the original front end: every saved
// edit triggers a reload, which in turn triggers reconciliation through the
// store's change callbacks.
type Watcher struct {
	dir    string
	store  *Store
	logger *slog.Logger
	fsw    *fsnotify.Watcher
	done   chan struct{}
}

// NewWatcher creates a watcher over dir feeding store.
func NewWatcher(dir string, store *Store, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	return &Watcher{
		dir:    dir,
		store:  store,
		logger: logger,
		fsw:    fsw,
		done:   make(chan struct{}),
	}, nil
}

// Start performs an initial scan of the directory, then watches for changes
// until Close is called.
func (w *Watcher) Start() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("scan rows dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		w.loadFile(filepath.Join(w.dir, e.Name()))
	}

	if err := w.fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch rows dir: %w", err)
	}
	go w.loop()
	w.logger.Info("Row file watcher started", "dir", w.dir)
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			viewID, isCSV := viewIDForPath(event.Name)
			if !isCSV {
				continue
			}
			switch {
			case event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create):
				w.loadFile(event.Name)
			case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
				w.logger.Info("Row file removed", "view", viewID)
				w.store.SetRows(viewID, nil)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Row file watcher error", "error", err)
		}
	}
}

// loadFile reloads one row file into the store. Files without a configured
// view are ignored; a view mapping must exist before its rows are consumed.
func (w *Watcher) loadFile(path string) {
	viewID, isCSV := viewIDForPath(path)
	if !isCSV {
		return
	}
	cfg, _, ok := w.store.View(viewID)
	if !ok {
		w.logger.Warn("Row file has no configured view, skipping", "view", viewID)
		return
	}
	rows, err := ReadRowFile(path, cfg)
	if err != nil {
		w.logger.Error("Failed to read row file", "view", viewID, "error", err)
		return
	}
	w.logger.Info("Row file loaded", "view", viewID, "rows", len(rows))
	w.store.SetRows(viewID, rows)
}

func viewIDForPath(path string) (string, bool) {
	base := filepath.Base(path)
	if !strings.EqualFold(filepath.Ext(base), ".csv") {
		return "", false
	}
	return strings.TrimSuffix(base, filepath.Ext(base)), true
}
