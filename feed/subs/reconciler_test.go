package subs

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepmm/inference-feed/views"
)

// fakeRows is an in-memory RowSource.
type fakeRows struct {
	configs map[string]views.Config
	rows    map[string][]views.Row
}

func newFakeRows() *fakeRows {
	return &fakeRows{
		configs: make(map[string]views.Config),
		rows:    make(map[string][]views.Row),
	}
}

func (f *fakeRows) set(viewID string, cfg views.Config, rows []views.Row) {
	f.configs[viewID] = cfg
	f.rows[viewID] = rows
}

func (f *fakeRows) ViewIDs() []string {
	out := make([]string, 0, len(f.configs))
	for id := range f.configs {
		out = append(out, id)
	}
	return out
}

func (f *fakeRows) View(viewID string) (views.Config, []views.Row, bool) {
	cfg, ok := f.configs[viewID]
	return cfg, f.rows[viewID], ok
}

// recordingSender captures each batch in send order.
type recordingSender struct {
	ops []sentBatch
}

type sentBatch struct {
	unsubscribe bool
	payloads    []Payload
}

func (s *recordingSender) SendSubscribe(batch []Payload) {
	s.ops = append(s.ops, sentBatch{payloads: append([]Payload(nil), batch...)})
}

func (s *recordingSender) SendUnsubscribe(batch []Payload) {
	s.ops = append(s.ops, sentBatch{unsubscribe: true, payloads: append([]Payload(nil), batch...)})
}

// passthroughResolver treats every identifier as a FIGI and fails lookups
// for identifiers prefixed with "BAD".
type passthroughResolver struct{}

func (passthroughResolver) Resolve(kind, value string) string {
	if strings.HasPrefix(value, "BAD") {
		return ""
	}
	return strings.ToUpper(value)
}

func figiConfig() views.Config {
	return views.Config{
		FIGI:     "figi",
		Side:     "side",
		Quantity: "quantity",
		RFQLabel: "rfq_label",
		ATS:      "ats",
	}
}

func row(num int, identifier, side, quantity, label, ats string) views.Row {
	return views.Row{Num: num, Identifier: identifier, Side: side, Quantity: quantity, Label: label, ATS: ats}
}

func newTestReconciler(rows *fakeRows, sender *recordingSender) (*Reconciler, *Table) {
	table := NewTable()
	rec := New(Config{
		Table:    table,
		Rows:     rows,
		Resolver: passthroughResolver{},
		Sender:   sender,
		Logger:   slog.New(slog.DiscardHandler),
	})
	return rec, table
}

func TestReconcileSubscribesValidRows(t *testing.T) {
	rows := newFakeRows()
	rows.set("sheet1", figiConfig(), []views.Row{
		row(2, "bbg000000001", "bid", "100000", "price", "n"),
		row(3, "BBG000000002", "Offer", "250000", "YTM", "Y"),
	})
	sender := &recordingSender{}
	rec, table := newTestReconciler(rows, sender)

	rec.Reconcile("sheet1")

	require.Len(t, sender.ops, 1)
	assert.False(t, sender.ops[0].unsubscribe)
	assert.Len(t, sender.ops[0].payloads, 2)
	assert.Equal(t, 2, table.Len())

	// normalization applied before the key is formed
	assert.Equal(t, 1, table.RefCount(Key{
		FIGI: "BBG000000001", Quantity: 100_000, Label: LabelPrice, Side: SideBid, ATS: ATSNo,
	}))
}

func TestReconcileSkipsInvalidRows(t *testing.T) {
	rows := newFakeRows()
	rows.set("sheet1", figiConfig(), []views.Row{
		row(2, "BBG000000001", "bid", "100000", "price", "n"),
		row(3, "", "bid", "100000", "price", "n"),           // empty identifier
		row(4, "BBG000000002", "middle", "100000", "price", "n"), // bad side
		row(5, "BBG000000003", "bid", "abc", "price", "n"),       // bad quantity
		row(6, "BBG000000004", "bid", "100000", "quote", "n"),    // bad label
		row(7, "BBG000000005", "bid", "100000", "price", "x"),    // bad ats
		row(8, "BAD000000006", "bid", "100000", "price", "n"),    // resolution miss
	})
	sender := &recordingSender{}
	rec, table := newTestReconciler(rows, sender)

	rec.Reconcile("sheet1")

	require.Len(t, sender.ops, 1)
	assert.Len(t, sender.ops[0].payloads, 1)
	assert.Equal(t, 1, table.Len())
}

func TestReconcileInvalidConfigAbortsView(t *testing.T) {
	rows := newFakeRows()
	cfg := figiConfig()
	cfg.CUSIP = "cusip" // two identifier columns
	rows.set("sheet1", cfg, []views.Row{row(2, "BBG000000001", "bid", "100000", "price", "n")})
	sender := &recordingSender{}
	rec, table := newTestReconciler(rows, sender)

	rec.Reconcile("sheet1")

	assert.Empty(t, sender.ops)
	assert.Zero(t, table.Len())
}

func TestReconcileUnknownViewIsNoop(t *testing.T) {
	sender := &recordingSender{}
	rec, _ := newTestReconciler(newFakeRows(), sender)
	rec.Reconcile("nope")
	assert.Empty(t, sender.ops)
}

func TestReconcileSendsUnsubscribesFirst(t *testing.T) {
	rows := newFakeRows()
	rows.set("sheet1", figiConfig(), []views.Row{
		row(2, "BBG000000001", "bid", "100000", "price", "n"),
	})
	sender := &recordingSender{}
	rec, _ := newTestReconciler(rows, sender)
	rec.Reconcile("sheet1")

	// replace the row with a different instrument
	rows.set("sheet1", figiConfig(), []views.Row{
		row(2, "BBG000000002", "bid", "100000", "price", "n"),
	})
	sender.ops = nil
	rec.Reconcile("sheet1")

	require.Len(t, sender.ops, 2)
	assert.True(t, sender.ops[0].unsubscribe)
	assert.Equal(t, "BBG000000001", sender.ops[0].payloads[0].FIGI)
	assert.False(t, sender.ops[1].unsubscribe)
	assert.Equal(t, "BBG000000002", sender.ops[1].payloads[0].FIGI)
}

func TestReconcileSharedKeyAcrossViews(t *testing.T) {
	rows := newFakeRows()
	shared := []views.Row{row(2, "BBG000000001", "bid", "100000", "price", "n")}
	rows.set("sheet1", figiConfig(), shared)
	rows.set("sheet2", figiConfig(), shared)
	sender := &recordingSender{}
	rec, table := newTestReconciler(rows, sender)

	rec.Reconcile("sheet1")
	rec.Reconcile("sheet2")

	// one subscribe on the wire, refcount two
	require.Len(t, sender.ops, 1)
	assert.Len(t, sender.ops[0].payloads, 1)
	key := Key{FIGI: "BBG000000001", Quantity: 100_000, Label: LabelPrice, Side: SideBid, ATS: ATSNo}
	assert.Equal(t, 2, table.RefCount(key))

	// sheet1 empties: still no unsubscribe
	rows.set("sheet1", figiConfig(), nil)
	sender.ops = nil
	rec.Reconcile("sheet1")
	assert.Empty(t, sender.ops)

	// sheet2 empties: now the unsubscribe goes out
	rows.set("sheet2", figiConfig(), nil)
	rec.Reconcile("sheet2")
	require.Len(t, sender.ops, 1)
	assert.True(t, sender.ops[0].unsubscribe)
}

func TestReconcileDuplicateRowsCollapse(t *testing.T) {
	rows := newFakeRows()
	rows.set("sheet1", figiConfig(), []views.Row{
		row(2, "BBG000000001", "bid", "100000", "price", "n"),
		row(3, "bbg000000001", "BID", "100001", "Price", "N"),
	})
	sender := &recordingSender{}
	rec, table := newTestReconciler(rows, sender)

	rec.Reconcile("sheet1")
	require.Len(t, sender.ops, 1)
	assert.Len(t, sender.ops[0].payloads, 1)
	assert.Equal(t, 1, table.Len())
}

func TestDropFlapped(t *testing.T) {
	k1 := testKey("BBG000000001", 100_000, LabelPrice, SideBid)
	k2 := testKey("BBG000000002", 100_000, LabelPrice, SideBid)

	kept := dropFlapped([]Payload{k1.Payload(), k2.Payload()}, []Payload{k1.Payload()})
	require.Len(t, kept, 1)
	assert.Equal(t, "BBG000000002", kept[0].FIGI)

	assert.Len(t, dropFlapped([]Payload{k1.Payload()}, nil), 1)
	assert.Empty(t, dropFlapped(nil, []Payload{k1.Payload()}))
}

func TestReconcileAllResetsTable(t *testing.T) {
	rows := newFakeRows()
	rows.set("sheet1", figiConfig(), []views.Row{
		row(2, "BBG000000001", "bid", "100000", "price", "n"),
	})
	rows.set("sheet2", figiConfig(), []views.Row{
		row(2, "BBG000000002", "offer", "250000", "ytm", "y"),
	})
	sender := &recordingSender{}
	rec, table := newTestReconciler(rows, sender)

	rec.Reconcile("sheet1")
	rec.Reconcile("sheet2")
	require.Equal(t, 2, table.Len())

	// a fresh session must resubscribe everything from scratch
	sender.ops = nil
	rec.ReconcileAll()
	assert.Equal(t, 2, table.Len())

	var subscribed int
	for _, op := range sender.ops {
		require.False(t, op.unsubscribe)
		subscribed += len(op.payloads)
	}
	assert.Equal(t, 2, subscribed)
}
