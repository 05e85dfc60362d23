package app

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepmm/inference-feed/figi"
)

func newConfiguredApp(t *testing.T) *App {
	t.Helper()
	t.Setenv("AUTH_URL", "https://auth.example.com/token")
	t.Setenv("FEED_IDENTITY", "user@example.com")
	t.Setenv("FEED_SECRET", "secret")
	t.Setenv("ROWS_DIR", t.TempDir())
	return NewApp(slog.New(slog.DiscardHandler))
}

func TestLoadConfigDefaults(t *testing.T) {
	a := newConfiguredApp(t)
	require.NoError(t, a.LoadConfig())

	assert.Equal(t, DefaultFeedURL, a.Config.FeedURL)
	assert.Equal(t, figi.DefaultDataURL, a.Config.BondDataURL)
	assert.Equal(t, DefaultHost, a.Config.AppHost)
	assert.Equal(t, DefaultPort, a.Config.AppPort)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("FEED_URL", "wss://prod.example.com")
	t.Setenv("APP_PORT", "9090")
	a := newConfiguredApp(t)
	require.NoError(t, a.LoadConfig())

	assert.Equal(t, "wss://prod.example.com", a.Config.FeedURL)
	assert.Equal(t, "9090", a.Config.AppPort)
}

func TestLoadConfigRequiredSettings(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{"auth url", "AUTH_URL"},
		{"identity", "FEED_IDENTITY"},
		{"secret", "FEED_SECRET"},
		{"rows dir", "ROWS_DIR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AUTH_URL", "https://auth.example.com/token")
			t.Setenv("FEED_IDENTITY", "user@example.com")
			t.Setenv("FEED_SECRET", "secret")
			t.Setenv("ROWS_DIR", t.TempDir())
			t.Setenv(tt.unset, "")

			a := NewApp(slog.New(slog.DiscardHandler))
			assert.Error(t, a.LoadConfig())
		})
	}
}

func TestDocsManagerServesPages(t *testing.T) {
	dm, err := NewDocsManager("v1.2.3")
	require.NoError(t, err)

	for _, slug := range []string{"/docs/", "/docs/protocol", "/docs/operations"} {
		_, ok := dm.pages[slug]
		assert.True(t, ok, "missing page %s", slug)
	}
	assert.Equal(t, "Inference Feed", dm.pages["/docs/"].Title)
	assert.NotEmpty(t, dm.pages["/docs/protocol"].Content)
}
