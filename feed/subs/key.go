// Package subs keeps the remote server's subscription set consistent with
// the union of every view's current rows. It owns the global reference-
// counted subscription table and the per-view reconciliation that produces
// the minimal subscribe/unsubscribe deltas.
package subs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/deepmm/inference-feed/views"
)

// Side is the quote side of a subscription.
type Side string

// Allowed sides.
const (
	SideBid    Side = "bid"
	SideOffer  Side = "offer"
	SideDealer Side = "dealer"
)

// Label selects which inference kind a subscription carries.
type Label string

// Allowed labels.
const (
	LabelPrice  Label = "price"
	LabelSpread Label = "spread"
	LabelYTM    Label = "ytm"
)

// ATS flag values.
const (
	ATSYes = "Y"
	ATSNo  = "N"
)

// Key is the identity of one subscription. All fields are normalized, so two
// rows anywhere that normalize to the same Key are the same subscription.
type Key struct {
	FIGI     string
	Quantity int
	Label    Label
	Side     Side
	ATS      string
}

// Payload is the wire form of one subscription entry.
type Payload struct {
	FIGI         string `json:"figi"`
	Quantity     int    `json:"quantity"`
	RFQLabel     string `json:"rfq_label"`
	Side         string `json:"side"`
	ATSIndicator string `json:"ats_indicator"`
	Subscribe    bool   `json:"subscribe,omitempty"`
	Unsubscribe  bool   `json:"unsubscribe,omitempty"`
}

// Payload builds the wire payload for a key. Subscribe/Unsubscribe markers
// are set by the sender.
func (k Key) Payload() Payload {
	return Payload{
		FIGI:         k.FIGI,
		Quantity:     k.Quantity,
		RFQLabel:     string(k.Label),
		Side:         string(k.Side),
		ATSIndicator: k.ATS,
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%s_%s_%d_%s_%s", k.FIGI, k.Side, k.Quantity, k.Label, k.ATS)
}

// ParseSide normalizes a raw side value.
func ParseSide(raw string) (Side, bool) {
	switch s := Side(strings.ToLower(strings.TrimSpace(raw))); s {
	case SideBid, SideOffer, SideDealer:
		return s, true
	}
	return "", false
}

// ParseLabel normalizes a raw rfq_label value.
func ParseLabel(raw string) (Label, bool) {
	switch l := Label(strings.ToLower(strings.TrimSpace(raw))); l {
	case LabelPrice, LabelSpread, LabelYTM:
		return l, true
	}
	return "", false
}

// ParseATS normalizes a raw ATS flag.
func ParseATS(raw string) (string, bool) {
	switch a := strings.ToUpper(strings.TrimSpace(raw)); a {
	case ATSYes, ATSNo:
		return a, true
	}
	return "", false
}

// Resolver maps an identifier of the given kind (figi, cusip, isin) to a
// canonical FIGI, returning "" when resolution fails.
type Resolver interface {
	Resolve(kind, value string) string
}

// ErrResolution marks a row skipped because its identifier failed to resolve.
var ErrResolution = errors.New("identifier resolution failed")

// BuildKey validates and normalizes one row into a subscription key. The
// returned error says why the row must be skipped; rows never abort a batch.
func BuildKey(kind string, row views.Row, resolver Resolver) (Key, error) {
	identifier := strings.ToUpper(strings.TrimSpace(row.Identifier))
	if identifier == "" {
		return Key{}, errors.New("empty identifier")
	}

	side, ok := ParseSide(row.Side)
	if !ok {
		return Key{}, fmt.Errorf("invalid side %q", row.Side)
	}

	quantity, ok := NormalizeQuantity(row.Quantity)
	if !ok {
		return Key{}, fmt.Errorf("invalid quantity %q", row.Quantity)
	}

	label, ok := ParseLabel(row.Label)
	if !ok {
		return Key{}, fmt.Errorf("invalid rfq_label %q", row.Label)
	}

	ats, ok := ParseATS(row.ATS)
	if !ok {
		return Key{}, fmt.Errorf("invalid ats %q", row.ATS)
	}

	figi := resolver.Resolve(kind, identifier)
	if figi == "" {
		return Key{}, fmt.Errorf("%w for %s %q", ErrResolution, kind, identifier)
	}

	return Key{
		FIGI:     strings.ToUpper(figi),
		Quantity: quantity,
		Label:    label,
		Side:     side,
		ATS:      ats,
	}, nil
}
