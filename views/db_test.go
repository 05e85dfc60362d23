package views

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestViewConfigCRUD(t *testing.T) {
	db := openTestDB(t)

	cfg := Config{CUSIP: "cusip", Side: "side", Quantity: "qty", RFQLabel: "label", ATS: "ats"}
	require.NoError(t, db.SaveConfig("sheet1", cfg))

	configs, err := db.LoadConfigs()
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, cfg, configs["sheet1"])

	// Upsert
	cfg.Quantity = "size"
	require.NoError(t, db.SaveConfig("sheet1", cfg))
	configs, err = db.LoadConfigs()
	require.NoError(t, err)
	require.Len(t, configs, 1)
	assert.Equal(t, "size", configs["sheet1"].Quantity)

	// Delete
	require.NoError(t, db.DeleteConfig("sheet1"))
	configs, err = db.LoadConfigs()
	require.NoError(t, err)
	assert.Empty(t, configs)
}

func TestStoreWriteThroughPersistence(t *testing.T) {
	db := openTestDB(t)

	s := NewStore()
	s.SetDB(db)
	s.SetConfig("sheet1", validConfig())

	// a second store over the same DB sees the persisted config
	s2 := NewStore()
	s2.SetDB(db)
	require.NoError(t, s2.LoadFromDB())

	cfg, _, ok := s2.View("sheet1")
	require.True(t, ok)
	assert.Equal(t, validConfig(), cfg)
}
