package config

import (
	"os"
	"path/filepath"
	"testing"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const example = `
sources:
  - name: subway
    extension: nyct
    nyct:
      filterStaleUnassignedTrips: true
    timezone: America/New_York
    defaultLanguage: en
    staticGTFS: ${GTFS_DIR}/google_transit.zip
    files:
      - feed-1.pb
      - feed-2.pb
  - name: bus
logging:
  level: debug
  file: gtfsrt.log
store:
  path: state.db
`

func TestParse(t *testing.T) {
	t.Setenv("GTFS_DIR", "/data")
	cfg, err := Parse([]byte(example))
	require.NoError(t, err)

	require.Len(t, cfg.Sources, 2)
	subway, ok := cfg.Source("subway")
	require.True(t, ok)
	assert.Equal(t, "nyct", subway.Extension)
	assert.True(t, subway.NYCT.FilterStaleUnassignedTrips)
	assert.Equal(t, "/data/google_transit.zip", subway.StaticGTFS)
	assert.Equal(t, []string{"feed-1.pb", "feed-2.pb"}, subway.Files)
	loc, err := subway.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "gtfsrt.log", cfg.Logging.File)
	// Defaults survive for keys the file does not set.
	assert.True(t, cfg.Logging.Console)
	assert.Equal(t, 10, cfg.Logging.MaxSizeMB)
	assert.Equal(t, "state.db", cfg.Store.Path)

	_, ok = cfg.Source("ferry")
	assert.False(t, ok)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv(LogLevelEnv, "warn")
	t.Setenv(StorePathEnv, "/tmp/override.db")
	cfg, err := Parse([]byte(example))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "/tmp/override.db", cfg.Store.Path)
}

func TestInvalid(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
	}{
		{"missing name", "sources:\n  - extension: nyct\n"},
		{"duplicate name", "sources:\n  - name: a\n  - name: a\n"},
		{"unknown extension", "sources:\n  - name: a\n    extension: mbta\n"},
		{"bad timezone", "sources:\n  - name: a\n    timezone: Mars/Olympus\n"},
		{"bad language", "sources:\n  - name: a\n    defaultLanguage: \"not a tag\"\n"},
		{"bad log level", "logging:\n  level: loud\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.content))
			var validationErrors validator.ValidationErrors
			assert.ErrorAs(t, err, &validationErrors)
		})
	}
}

func TestMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("sources: ["))
	assert.Error(t, err)
}

func TestLoadWithDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GTFSRT_TEST_SOURCE=ferry\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("sources:\n  - name: ${GTFSRT_TEST_SOURCE}\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("GTFSRT_TEST_SOURCE") })

	cfg, err := Load(filepath.Join(dir, "config.yml"))
	require.NoError(t, err)
	_, ok := cfg.Source("ferry")
	assert.True(t, ok)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "config.yml"))
	assert.Error(t, err)
}
