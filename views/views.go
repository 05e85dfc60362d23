// Package views holds the per-view (worksheet-like) configuration and the
// current data rows each view wants quotes for. The display surface itself
// lives elsewhere; this package is its boundary.
package views

import (
	"errors"
	"fmt"
)

// Identifier kinds a view's rows may be keyed by.
const (
	KindFIGI  = "figi"
	KindCUSIP = "cusip"
	KindISIN  = "isin"
)

var (
	// ErrNoIdentifier is returned when a view config selects no identifier column.
	ErrNoIdentifier = errors.New("no identifier column configured")
	// ErrMultipleIdentifiers is returned when more than one identifier column is set.
	ErrMultipleIdentifiers = errors.New("more than one identifier column configured")
)

// Row is one data row of a view, extracted from the view's row file using the
// configured column mapping. All fields are raw strings; normalization and
// validation happen per-row during reconciliation.
type Row struct {
	Num        int // 1-based file row number, header is row 1
	Identifier string
	Side       string
	Quantity   string
	Label      string
	ATS        string
}

// Config maps a view's logical fields to column headers in its row file.
// Exactly one of FIGI, CUSIP or ISIN must be set; the remaining four columns
// are all required.
type Config struct {
	FIGI     string `yaml:"figi,omitempty" json:"figi,omitempty"`
	CUSIP    string `yaml:"cusip,omitempty" json:"cusip,omitempty"`
	ISIN     string `yaml:"isin,omitempty" json:"isin,omitempty"`
	Side     string `yaml:"side" json:"side"`
	Quantity string `yaml:"quantity" json:"quantity"`
	RFQLabel string `yaml:"rfq_label" json:"rfq_label"`
	ATS      string `yaml:"ats" json:"ats"`
}

// IdentifierKind returns the identifier kind the config selects and the column
// header carrying it.
func (c Config) IdentifierKind() (kind, column string, err error) {
	set := 0
	for _, cand := range []struct{ kind, col string }{
		{KindFIGI, c.FIGI},
		{KindCUSIP, c.CUSIP},
		{KindISIN, c.ISIN},
	} {
		if cand.col != "" {
			set++
			kind, column = cand.kind, cand.col
		}
	}
	switch {
	case set == 0:
		return "", "", ErrNoIdentifier
	case set > 1:
		return "", "", ErrMultipleIdentifiers
	}
	return kind, column, nil
}

// Validate checks that the config names exactly one identifier column and all
// required value columns.
func (c Config) Validate() error {
	if _, _, err := c.IdentifierKind(); err != nil {
		return err
	}
	for _, f := range []struct{ name, col string }{
		{"side", c.Side},
		{"quantity", c.Quantity},
		{"rfq_label", c.RFQLabel},
		{"ats", c.ATS},
	} {
		if f.col == "" {
			return fmt.Errorf("missing %s column", f.name)
		}
	}
	return nil
}
