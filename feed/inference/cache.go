package inference

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/deepmm/inference-feed/feed/subs"
)

// Observation holds the most recently received array of one inference kind.
type Observation struct {
	Date   string
	Values []float64
}

// Entry keeps the latest observation per inference kind for one subscription
// key. Entries are updated in place by the receive path and read by the flush
// path; they are never deleted except on session reset.
type Entry struct {
	Price  *Observation
	Spread *Observation
	YTM    *Observation
}

// Slot returns the observation for the given kind, nil when none arrived yet.
func (e *Entry) Slot(kind subs.Label) *Observation {
	switch kind {
	case subs.LabelPrice:
		return e.Price
	case subs.LabelSpread:
		return e.Spread
	case subs.LabelYTM:
		return e.YTM
	}
	return nil
}

func (e *Entry) setSlot(kind subs.Label, obs *Observation) {
	switch kind {
	case subs.LabelPrice:
		e.Price = obs
	case subs.LabelSpread:
		e.Spread = obs
	case subs.LabelYTM:
		e.YTM = obs
	}
}

// Item is one element of an inbound inference push.
type Item struct {
	FIGI         string    `json:"figi"`
	Side         string    `json:"side"`
	Quantity     *float64  `json:"quantity"`
	ATSIndicator string    `json:"ats_indicator"`
	Price        []float64 `json:"price,omitempty"`
	Spread       []float64 `json:"spread,omitempty"`
	YTM          []float64 `json:"ytm,omitempty"`
	Date         string    `json:"date"`
}

// message is the inbound push frame shape.
type message struct {
	Inference []Item `json:"inference"`
}

// Cache stores the latest inference per subscription key.
type Cache struct {
	mu      sync.RWMutex
	entries map[subs.Key]*Entry
	logger  *slog.Logger
}

// NewCache creates an empty inference cache.
func NewCache(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries: make(map[subs.Key]*Entry),
		logger:  logger,
	}
}

// Ingest parses one inbound frame and stores every valid inference item,
// skipping invalid items individually. It reports how many items were stored
// and whether the frame was an inference push at all (only pushes warrant a
// flush being scheduled).
func (c *Cache) Ingest(raw json.RawMessage) (stored int, isPush bool) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Error("Malformed inference frame", "error", err)
		return 0, false
	}
	if msg.Inference == nil {
		// control or heartbeat frame
		return 0, false
	}

	for _, item := range msg.Inference {
		key, kind, values, ok := c.validate(item)
		if !ok {
			continue
		}
		obs := &Observation{Date: item.Date, Values: values}

		c.mu.Lock()
		entry, exists := c.entries[key]
		if !exists {
			entry = &Entry{}
			c.entries[key] = entry
		}
		entry.setSlot(kind, obs)
		c.mu.Unlock()
		stored++
	}
	return stored, true
}

// validate applies the per-item rules: canonical id, side, integral quantity
// and ATS flag required, and exactly the populated array determines the kind.
func (c *Cache) validate(item Item) (subs.Key, subs.Label, []float64, bool) {
	figi := strings.ToUpper(strings.TrimSpace(item.FIGI))
	if figi == "" {
		c.logger.Warn("Inference item missing FIGI, skipping")
		return subs.Key{}, "", nil, false
	}
	side := strings.ToLower(strings.TrimSpace(item.Side))
	if side == "" || item.Quantity == nil {
		c.logger.Warn("Inference item missing side or quantity, skipping", "figi", figi)
		return subs.Key{}, "", nil, false
	}
	quantity := int(*item.Quantity)
	if float64(quantity) != *item.Quantity {
		c.logger.Warn("Inference item quantity is not an integer, skipping", "figi", figi)
		return subs.Key{}, "", nil, false
	}

	var kind subs.Label
	var values []float64
	switch {
	case len(item.Price) > 0:
		kind, values = subs.LabelPrice, item.Price
	case len(item.Spread) > 0:
		kind, values = subs.LabelSpread, item.Spread
	case len(item.YTM) > 0:
		kind, values = subs.LabelYTM, item.YTM
	default:
		c.logger.Warn("Inference item has no inference array, skipping", "figi", figi)
		return subs.Key{}, "", nil, false
	}

	ats, ok := subs.ParseATS(item.ATSIndicator)
	if !ok {
		c.logger.Warn("Inference item has invalid ATS flag, skipping", "figi", figi)
		return subs.Key{}, "", nil, false
	}

	key := subs.Key{
		FIGI:     figi,
		Quantity: quantity,
		Label:    kind,
		Side:     subs.Side(side),
		ATS:      ats,
	}
	return key, kind, values, true
}

// Get returns a copy of the entry for key.
func (c *Cache) Get(key subs.Key) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry; used on session reset.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[subs.Key]*Entry)
}
