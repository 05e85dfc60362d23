package subs

import (
	"math"
	"strconv"
	"strings"
	"sync"
)

// AllowedQuantities are the sizes the server accepts, ascending.
var AllowedQuantities = []int{
	1_000, 10_000, 100_000, 250_000, 500_000,
	1_000_000, 2_000_000, 3_000_000, 4_000_000, 5_000_000,
}

// quantityCache memoizes snapping by raw input. Pure speedup: row files
// repeat the same handful of sizes thousands of times per session.
var quantityCache = struct {
	sync.RWMutex
	m map[string]int // 0 = known invalid
}{m: make(map[string]int)}

// NormalizeQuantity coerces a raw value to the nearest allowed size.
// Non-integral numbers are rounded to the nearest whole number first; the
// nearest allowed size by absolute distance wins, ties going to the smaller
// size. Returns ok=false for non-numeric input.
func NormalizeQuantity(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}

	quantityCache.RLock()
	cached, hit := quantityCache.m[raw]
	quantityCache.RUnlock()
	if hit {
		return cached, cached != 0
	}

	snapped := 0
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		snapped = snapQuantity(int(math.Round(f)))
	}

	quantityCache.Lock()
	quantityCache.m[raw] = snapped
	quantityCache.Unlock()
	return snapped, snapped != 0
}

func snapQuantity(q int) int {
	best := AllowedQuantities[0]
	bestDist := math.Abs(float64(q - best))
	for _, allowed := range AllowedQuantities[1:] {
		// strict less keeps the smaller size on ties
		if dist := math.Abs(float64(q - allowed)); dist < bestDist {
			best, bestDist = allowed, dist
		}
	}
	return best
}
