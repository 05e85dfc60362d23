// Package figi resolves CUSIP and ISIN identifiers to canonical FIGIs using
// a published bond-data map.
package figi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultDataURL is the published bond-data JSON location.
const DefaultDataURL = "https://s3.amazonaws.com/deepmm.public/bond_data.json"

// Identifier kinds Resolve accepts.
const (
	KindFIGI  = "figi"
	KindCUSIP = "cusip"
	KindISIN  = "isin"
)

// entry is one record of the bond-data file.
type entry struct {
	FIGI  string `json:"F"`
	CUSIP string `json:"C"`
	ISIN  string `json:"I"`
}

// Resolver maps identifiers to FIGIs. The bond-data map is fetched lazily on
// first use and kept for the life of the process; a failed fetch is retried
// on the next lookup.
type Resolver struct {
	url    string
	client *http.Client
	logger *slog.Logger

	mu     sync.Mutex
	loaded bool
	cusip  map[string]string
	isin   map[string]string
}

// New creates a resolver fetching the bond-data map from url.
func New(url string, logger *slog.Logger) *Resolver {
	if url == "" {
		url = DefaultDataURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
		cusip:  make(map[string]string),
		isin:   make(map[string]string),
	}
}

// NewStatic creates a resolver with fixed mappings and no HTTP fetch, for
// tests and offline runs. Keys and values are upper-cased.
func NewStatic(cusip, isin map[string]string) *Resolver {
	r := &Resolver{
		logger: slog.Default(),
		loaded: true,
		cusip:  make(map[string]string, len(cusip)),
		isin:   make(map[string]string, len(isin)),
	}
	for k, v := range cusip {
		r.cusip[strings.ToUpper(k)] = strings.ToUpper(v)
	}
	for k, v := range isin {
		r.isin[strings.ToUpper(k)] = strings.ToUpper(v)
	}
	return r
}

// Resolve maps an identifier of the given kind to a FIGI, returning "" when
// the value is unknown or the kind unsupported. FIGI values pass through
// upper-cased.
func (r *Resolver) Resolve(kind, value string) string {
	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	if kind == KindFIGI {
		return value
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLoadedLocked()

	var figi string
	switch kind {
	case KindCUSIP:
		figi = r.cusip[value]
	case KindISIN:
		figi = r.isin[value]
	default:
		r.logger.Error("Unknown identifier kind", "kind", kind)
		return ""
	}
	if figi == "" {
		r.logger.Warn("No FIGI mapping found", "kind", kind, "identifier", value)
	}
	return figi
}

// ensureLoadedLocked fetches and indexes the bond-data map once.
func (r *Resolver) ensureLoadedLocked() {
	if r.loaded {
		return
	}
	if err := r.load(); err != nil {
		r.logger.Error("Failed to load bond data", "url", r.url, "error", err)
		return
	}
	r.loaded = true
	r.logger.Info("Bond data loaded", "cusips", len(r.cusip), "isins", len(r.isin))
}

func (r *Resolver) load() error {
	resp, err := r.client.Get(r.url)
	if err != nil {
		return fmt.Errorf("fetch bond data: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch bond data: unexpected status %s", resp.Status)
	}

	var entries []entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return fmt.Errorf("parse bond data: %w", err)
	}
	for _, e := range entries {
		if e.FIGI == "" {
			continue
		}
		figi := strings.ToUpper(e.FIGI)
		if e.CUSIP != "" {
			r.cusip[strings.ToUpper(e.CUSIP)] = figi
		}
		if e.ISIN != "" {
			r.isin[strings.ToUpper(e.ISIN)] = figi
		}
	}
	return nil
}
