package inference

import (
	"log/slog"
	"time"

	"github.com/deepmm/inference-feed/feed/subs"
)

// ValueColumns is the fixed number of formatted value columns per patch row;
// a timestamp column precedes them.
const ValueColumns = 19

// RowPatch is one rendered row destined for a view's display surface.
// Values always has ValueColumns elements; positions beyond the received
// array are empty strings.
type RowPatch struct {
	Row       int      `json:"row"`
	Timestamp string   `json:"timestamp"`
	Values    []string `json:"values"`
}

// KeyedRow ties a view row number to its computed subscription key.
type KeyedRow struct {
	Row int
	Key subs.Key
}

// BuildViewPatch builds patches for every row whose key has a cached
// observation of the row's configured kind. Rows without fresh data are
// omitted, leaving their display untouched. A value that fails to format
// leaves its single cell empty without aborting the rest of the batch.
func BuildViewPatch(cache *Cache, rows []KeyedRow, logger *slog.Logger) []RowPatch {
	if logger == nil {
		logger = slog.Default()
	}
	var patches []RowPatch
	for _, kr := range rows {
		entry, ok := cache.Get(kr.Key)
		if !ok {
			continue
		}
		obs := entry.Slot(kr.Key.Label)
		if obs == nil {
			continue
		}

		values := obs.Values
		if reversed(kr.Key.Label, kr.Key.Side) {
			values = reverse(values)
		}

		cells := make([]string, ValueColumns)
		for i := 0; i < ValueColumns && i < len(values); i++ {
			formatted, err := Format(values[i], kr.Key.Label)
			if err != nil {
				logger.Warn("Failed to format inference value", "key", kr.Key.String(), "error", err)
				continue
			}
			cells[i] = formatted
		}

		patches = append(patches, RowPatch{
			Row:       kr.Row,
			Timestamp: formatTimestamp(obs.Date, logger),
			Values:    cells,
		})
	}
	return patches
}

// reversed reports whether the quote array must be flipped before display.
// Arrays arrive ordered best-to-worst for one side; price arrays on the offer
// side and non-price arrays on the bid side read backwards.
func reversed(label subs.Label, side subs.Side) bool {
	if label == subs.LabelPrice {
		return side == subs.SideOffer
	}
	return side == subs.SideBid
}

func reverse(in []float64) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}

func formatTimestamp(date string, logger *slog.Logger) string {
	if date == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, date)
	if err != nil {
		logger.Warn("Failed to parse inference date", "date", date, "error", err)
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
