package inference

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepmm/inference-feed/feed/subs"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		kind  subs.Label
		want  string
	}{
		{"price", 12.345, subs.LabelPrice, "$12.345"},
		{"price rounds", 98.12549, subs.LabelPrice, "$98.125"},
		{"ytm", 3.14159, subs.LabelYTM, "3.14%"},
		{"ytm negative", -0.5, subs.LabelYTM, "-0.50%"},
		{"spread", 142.73, subs.LabelSpread, "142.7"},
		{"spread zero", 0, subs.LabelSpread, "0.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Format(tt.value, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatRejectsUnknownKind(t *testing.T) {
	_, err := Format(1.0, subs.Label("quote"))
	require.Error(t, err)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "quote", fe.Kind)
}

func TestFormatRejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := Format(v, subs.LabelPrice)
		assert.Error(t, err)
	}
}
