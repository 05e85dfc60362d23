package views

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{FIGI: "figi", Side: "side", Quantity: "quantity", RFQLabel: "rfq_label", ATS: "ats"}
}

func TestStoreSetConfigAndView(t *testing.T) {
	s := NewStore()
	s.SetConfig("sheet1", validConfig())

	cfg, rows, ok := s.View("sheet1")
	require.True(t, ok)
	assert.Equal(t, validConfig(), cfg)
	assert.Empty(t, rows)
	assert.Equal(t, 1, s.Count())

	_, _, ok = s.View("missing")
	assert.False(t, ok)
}

func TestStoreSetRows(t *testing.T) {
	s := NewStore()
	s.SetConfig("sheet1", validConfig())
	s.SetRows("sheet1", []Row{{Num: 2, Identifier: "BBG000000001"}})

	_, rows, ok := s.View("sheet1")
	require.True(t, ok)
	require.Len(t, rows, 1)
	assert.Equal(t, "BBG000000001", rows[0].Identifier)

	// nil clears
	s.SetRows("sheet1", nil)
	_, rows, _ = s.View("sheet1")
	assert.Empty(t, rows)
}

func TestStoreViewReturnsCopy(t *testing.T) {
	s := NewStore()
	s.SetConfig("sheet1", validConfig())
	s.SetRows("sheet1", []Row{{Num: 2, Identifier: "BBG000000001"}})

	_, rows, _ := s.View("sheet1")
	rows[0].Identifier = "mutated"

	_, again, _ := s.View("sheet1")
	assert.Equal(t, "BBG000000001", again[0].Identifier)
}

func TestStoreOnChange(t *testing.T) {
	s := NewStore()
	var fired []string
	s.OnChange(func(viewID string) { fired = append(fired, viewID) })

	s.SetConfig("sheet1", validConfig())
	s.SetRows("sheet1", []Row{{Num: 2}})
	s.DeleteConfig("sheet1")

	assert.Equal(t, []string{"sheet1", "sheet1", "sheet1"}, fired)
	assert.Zero(t, s.Count())
}

func TestStoreViewIDsSorted(t *testing.T) {
	s := NewStore()
	s.SetConfig("zeta", validConfig())
	s.SetConfig("alpha", validConfig())
	s.SetConfig("mid", validConfig())

	assert.Equal(t, []string{"alpha", "mid", "zeta"}, s.ViewIDs())
}
