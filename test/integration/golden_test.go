package integration

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/appshelf/internal/config"
	foundation "git.home.luguber.info/inful/appshelf/internal/foundation/errors"
	"git.home.luguber.info/inful/appshelf/internal/pipeline"
)

const examplesDir = "../../examples"

var updateGolden = flag.Bool("update-golden", false, "Update golden files")

// TestGolden_ExampleCatalogue builds the shipped example catalogue.
// This test verifies:
// - every data format (YAML list, YAML entries mapping, JSON, TOML) loads
// - entries are ordered by name within their primary category
// - secondary categories link to the card instead of repeating it.
func TestGolden_ExampleCatalogue(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping golden test in short mode")
	}

	runGoldenTest(t,
		"../../test/testdata/golden/example-catalogue.json",
		*updateGolden,
	)
}

// TestGolden_BrokenData adds malformed, empty and invalid data files to the
// example catalogue. This test verifies:
// - a malformed file is isolated and the rest of the catalogue still builds
// - invalid records are dropped while a deprecated license only warns
// - the build finishes with a warning outcome.
func TestGolden_BrokenData(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping golden test in short mode")
	}

	runGoldenTest(t,
		"../../test/testdata/golden/broken-data.json",
		*updateGolden,
		"../../test/testdata/catalogues/broken",
	)
}

// TestGolden_Idempotent verifies a second build of unchanged input rewrites
// nothing and leaves every page byte-identical.
func TestGolden_Idempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping golden test in short mode")
	}

	dir := setupCatalogue(t)
	cfg := loadGoldenConfig(t, filepath.Join(dir, config.DefaultPath))
	builder := pipeline.New(cfg)

	first, err := builder.Build(context.Background())
	require.NoError(t, err)
	index, err := os.ReadFile(filepath.Join(cfg.OutputDir(), "index.html"))
	require.NoError(t, err)

	second, err := builder.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Writes.Written)
	assert.Equal(t, first.Writes.Written, second.Writes.Unchanged)

	again, err := os.ReadFile(filepath.Join(cfg.OutputDir(), "index.html"))
	require.NoError(t, err)
	assert.Equal(t, index, again)
}

// TestGolden_Error_InvalidConfig verifies configuration errors are reported
// before anything is built.
func TestGolden_Error_InvalidConfig(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping golden test in short mode")
	}

	dir := setupCatalogue(t)
	configPath := filepath.Join(dir, config.DefaultPath)
	require.NoError(t, os.WriteFile(configPath, []byte("data:\n  root: data\noutput:\n  directory: data/public\n"), 0o600))

	_, err := config.Load(configPath, true)
	require.Error(t, err)
	assert.True(t, foundation.HasCategory(err, foundation.CategoryConfig))
	assert.NoDirExists(t, filepath.Join(dir, "public"))
}
