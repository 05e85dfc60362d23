package subs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(figi string, qty int, label Label, side Side) Key {
	return Key{FIGI: figi, Quantity: qty, Label: label, Side: side, ATS: ATSNo}
}

func desired(keys ...Key) map[Key]Payload {
	out := make(map[Key]Payload, len(keys))
	for _, k := range keys {
		out[k] = k.Payload()
	}
	return out
}

func TestTableFirstApplySubscribesAll(t *testing.T) {
	tbl := NewTable()
	k1 := testKey("BBG000000001", 100_000, LabelPrice, SideBid)
	k2 := testKey("BBG000000002", 250_000, LabelYTM, SideOffer)

	subscribe, unsubscribe := tbl.Apply("sheet1", desired(k1, k2))
	assert.Len(t, subscribe, 2)
	assert.Empty(t, unsubscribe)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, 1, tbl.RefCount(k1))
}

func TestTableSharedKeySubscribesOnce(t *testing.T) {
	tbl := NewTable()
	k := testKey("BBG000000001", 100_000, LabelPrice, SideBid)

	subscribe, _ := tbl.Apply("sheet1", desired(k))
	require.Len(t, subscribe, 1)

	// second view wanting the same key emits nothing
	subscribe, unsubscribe := tbl.Apply("sheet2", desired(k))
	assert.Empty(t, subscribe)
	assert.Empty(t, unsubscribe)
	assert.Equal(t, 2, tbl.RefCount(k))
	assert.Equal(t, 1, tbl.Len())
}

func TestTableRemovalUnsubscribesOnlyWhenLastViewLeaves(t *testing.T) {
	tbl := NewTable()
	k := testKey("BBG000000001", 100_000, LabelPrice, SideBid)
	tbl.Apply("sheet1", desired(k))
	tbl.Apply("sheet2", desired(k))

	// sheet1 drops the key; sheet2 still holds it
	_, unsubscribe := tbl.Apply("sheet1", desired())
	assert.Empty(t, unsubscribe)
	assert.Equal(t, 1, tbl.RefCount(k))

	// sheet2 drops it too; now it goes on the wire
	_, unsubscribe = tbl.Apply("sheet2", desired())
	require.Len(t, unsubscribe, 1)
	assert.Equal(t, k.Payload(), unsubscribe[0])
	assert.Zero(t, tbl.Len())
}

func TestTableApplyDiffsWithinView(t *testing.T) {
	tbl := NewTable()
	k1 := testKey("BBG000000001", 100_000, LabelPrice, SideBid)
	k2 := testKey("BBG000000002", 250_000, LabelSpread, SideBid)
	k3 := testKey("BBG000000003", 500_000, LabelYTM, SideDealer)

	tbl.Apply("sheet1", desired(k1, k2))

	subscribe, unsubscribe := tbl.Apply("sheet1", desired(k2, k3))
	require.Len(t, subscribe, 1)
	assert.Equal(t, k3.Payload(), subscribe[0])
	require.Len(t, unsubscribe, 1)
	assert.Equal(t, k1.Payload(), unsubscribe[0])
	assert.Equal(t, 2, tbl.Len())
}

func TestTableApplyIdempotent(t *testing.T) {
	tbl := NewTable()
	k := testKey("BBG000000001", 100_000, LabelPrice, SideBid)
	tbl.Apply("sheet1", desired(k))

	subscribe, unsubscribe := tbl.Apply("sheet1", desired(k))
	assert.Empty(t, subscribe)
	assert.Empty(t, unsubscribe)
}

func TestTableClear(t *testing.T) {
	tbl := NewTable()
	tbl.Apply("sheet1", desired(testKey("BBG000000001", 100_000, LabelPrice, SideBid)))
	tbl.Clear()
	assert.Zero(t, tbl.Len())
}

func TestTableSnapshotSorted(t *testing.T) {
	tbl := NewTable()
	k1 := testKey("BBG000000002", 100_000, LabelPrice, SideBid)
	k2 := testKey("BBG000000001", 500_000, LabelYTM, SideOffer)
	k3 := testKey("BBG000000001", 100_000, LabelSpread, SideBid)
	tbl.Apply("sheet1", desired(k1, k2))
	tbl.Apply("sheet2", desired(k2, k3))

	snap := tbl.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "BBG000000001", snap[0].FIGI)
	assert.Equal(t, 100_000, snap[0].Quantity)
	assert.Equal(t, "BBG000000001", snap[1].FIGI)
	assert.Equal(t, 500_000, snap[1].Quantity)
	assert.Equal(t, []string{"sheet1", "sheet2"}, snap[1].Views)
	assert.Equal(t, "BBG000000002", snap[2].FIGI)
}
