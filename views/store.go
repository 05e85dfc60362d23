package views

import (
	"log/slog"
	"sort"
	"sync"
)

// ChangeCallback is invoked after a view's configuration or rows change.
type ChangeCallback func(viewID string)

// Store is a thread-safe registry of view configurations and their current
// rows. Optionally backed by SQLite for config persistence via SetDB.
type Store struct {
	mu       sync.RWMutex
	configs  map[string]Config
	rows     map[string][]Row
	onChange []ChangeCallback
	db       *DB
	logger   *slog.Logger
}

// NewStore creates an empty view store.
func NewStore() *Store {
	return &Store{
		configs: make(map[string]Config),
		rows:    make(map[string][]Row),
		logger:  slog.Default(),
	}
}

// SetLogger sets the logger for DB error reporting.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetDB enables write-through persistence of view configs.
func (s *Store) SetDB(db *DB) {
	s.db = db
}

// OnChange registers a callback fired after any view mutation.
func (s *Store) OnChange(cb ChangeCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, cb)
}

// LoadFromDB populates configs from the database.
func (s *Store) LoadFromDB() error {
	if s.db == nil {
		return nil
	}
	configs, err := s.db.LoadConfigs()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for viewID, cfg := range configs {
		s.configs[viewID] = cfg
	}
	return nil
}

// SetConfig stores a view's column mapping and notifies observers.
func (s *Store) SetConfig(viewID string, cfg Config) {
	s.mu.Lock()
	s.configs[viewID] = cfg
	callbacks := s.callbacksLocked()
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.SaveConfig(viewID, cfg); err != nil {
			s.logger.Error("Failed to persist view config", "view", viewID, "error", err)
		}
	}
	for _, cb := range callbacks {
		cb(viewID)
	}
}

// DeleteConfig removes a view entirely.
func (s *Store) DeleteConfig(viewID string) {
	s.mu.Lock()
	delete(s.configs, viewID)
	delete(s.rows, viewID)
	callbacks := s.callbacksLocked()
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.DeleteConfig(viewID); err != nil {
			s.logger.Error("Failed to delete persisted view config", "view", viewID, "error", err)
		}
	}
	for _, cb := range callbacks {
		cb(viewID)
	}
}

// SetRows replaces a view's current rows and notifies observers.
func (s *Store) SetRows(viewID string, rows []Row) {
	s.mu.Lock()
	if rows == nil {
		delete(s.rows, viewID)
	} else {
		s.rows[viewID] = rows
	}
	callbacks := s.callbacksLocked()
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(viewID)
	}
}

// View returns a view's config and a copy of its current rows.
func (s *Store) View(viewID string) (Config, []Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[viewID]
	if !ok {
		return Config{}, nil, false
	}
	rows := make([]Row, len(s.rows[viewID]))
	copy(rows, s.rows[viewID])
	return cfg, rows, true
}

// ViewIDs returns all configured view IDs in stable order.
func (s *Store) ViewIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.configs))
	for id := range s.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of configured views.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.configs)
}

// callbacksLocked snapshots the callback list; callers must hold s.mu.
func (s *Store) callbacksLocked() []ChangeCallback {
	out := make([]ChangeCallback, len(s.onChange))
	copy(out, s.onChange)
	return out
}
