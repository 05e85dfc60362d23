package views

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB provides SQLite persistence for view configurations, so a restarted
// process comes back with the same view mappings.
type DB struct {
	db *sql.DB
}

// OpenDB opens (or creates) the SQLite database at path and ensures tables exist.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS view_configs (
    view_id       TEXT PRIMARY KEY,
    figi_col      TEXT NOT NULL DEFAULT '',
    cusip_col     TEXT NOT NULL DEFAULT '',
    isin_col      TEXT NOT NULL DEFAULT '',
    side_col      TEXT NOT NULL,
    quantity_col  TEXT NOT NULL,
    rfq_label_col TEXT NOT NULL,
    ats_col       TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);`
	if _, err := db.Exec(ddl); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &DB{db: db}, nil
}

// LoadConfigs reads all view configurations keyed by view ID.
func (d *DB) LoadConfigs() (map[string]Config, error) {
	rows, err := d.db.Query(`SELECT view_id, figi_col, cusip_col, isin_col,
		side_col, quantity_col, rfq_label_col, ats_col FROM view_configs`)
	if err != nil {
		return nil, fmt.Errorf("query view configs: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Config)
	for rows.Next() {
		var viewID string
		var cfg Config
		if err := rows.Scan(&viewID, &cfg.FIGI, &cfg.CUSIP, &cfg.ISIN,
			&cfg.Side, &cfg.Quantity, &cfg.RFQLabel, &cfg.ATS); err != nil {
			return nil, fmt.Errorf("scan view config: %w", err)
		}
		out[viewID] = cfg
	}
	return out, rows.Err()
}

// SaveConfig inserts or replaces a view configuration.
func (d *DB) SaveConfig(viewID string, cfg Config) error {
	_, err := d.db.Exec(`INSERT OR REPLACE INTO view_configs
		(view_id, figi_col, cusip_col, isin_col, side_col, quantity_col, rfq_label_col, ats_col, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		viewID, cfg.FIGI, cfg.CUSIP, cfg.ISIN,
		cfg.Side, cfg.Quantity, cfg.RFQLabel, cfg.ATS,
		time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save view config: %w", err)
	}
	return nil
}

// DeleteConfig removes a view configuration.
func (d *DB) DeleteConfig(viewID string) error {
	_, err := d.db.Exec(`DELETE FROM view_configs WHERE view_id = ?`, viewID)
	if err != nil {
		return fmt.Errorf("delete view config: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}
