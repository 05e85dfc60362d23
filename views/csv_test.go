package views

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRowFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sheet1.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadRowFile(t *testing.T) {
	path := writeRowFile(t, "Figi,Side,Quantity,RFQ_Label,ATS\n"+
		"BBG000000001,bid,100000,price,N\n"+
		"BBG000000002,offer,250000,ytm,Y\n")

	rows, err := ReadRowFile(path, validConfig())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// data rows are numbered from 2, header is row 1
	assert.Equal(t, 2, rows[0].Num)
	assert.Equal(t, "BBG000000001", rows[0].Identifier)
	assert.Equal(t, "bid", rows[0].Side)
	assert.Equal(t, "100000", rows[0].Quantity)
	assert.Equal(t, "price", rows[0].Label)
	assert.Equal(t, "N", rows[0].ATS)
	assert.Equal(t, 3, rows[1].Num)
}

func TestReadRowFileHeaderCaseInsensitive(t *testing.T) {
	path := writeRowFile(t, "FIGI,SIDE,QUANTITY,RFQ_LABEL,ATS\nBBG000000001,bid,100000,price,N\n")
	rows, err := ReadRowFile(path, validConfig())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "BBG000000001", rows[0].Identifier)
}

func TestReadRowFileMissingColumn(t *testing.T) {
	// no ats column: rows still parse with the field empty
	path := writeRowFile(t, "figi,side,quantity,rfq_label\nBBG000000001,bid,100000,price\n")
	rows, err := ReadRowFile(path, validConfig())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].ATS)
}

func TestReadRowFileShortRecords(t *testing.T) {
	path := writeRowFile(t, "figi,side,quantity,rfq_label,ats\nBBG000000001,bid\n")
	rows, err := ReadRowFile(path, validConfig())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "bid", rows[0].Side)
	assert.Empty(t, rows[0].Quantity)
}

func TestReadRowFileEmpty(t *testing.T) {
	path := writeRowFile(t, "")
	rows, err := ReadRowFile(path, validConfig())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestReadRowFileCUSIPMapping(t *testing.T) {
	cfg := Config{CUSIP: "cusip", Side: "side", Quantity: "quantity", RFQLabel: "rfq_label", ATS: "ats"}
	path := writeRowFile(t, "cusip,side,quantity,rfq_label,ats\n037833100,bid,100000,price,N\n")
	rows, err := ReadRowFile(path, cfg)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "037833100", rows[0].Identifier)
}
