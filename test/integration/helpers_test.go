package integration

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/appshelf/internal/audit"
	"git.home.luguber.info/inful/appshelf/internal/config"
	"git.home.luguber.info/inful/appshelf/internal/diag"
	"git.home.luguber.info/inful/appshelf/internal/pipeline"
)

// SiteStructure is the part of a build that golden files pin down: which
// entry cards each page carries, in order, and what the report counted.
type SiteStructure struct {
	Pages      map[string][]string    `json:"pages"`
	Outcome    string                 `json:"outcome"`
	State      string                 `json:"state"`
	Entries    pipeline.EntryCounts   `json:"entries"`
	PageCounts pipeline.PageCounts    `json:"page_counts"`
	Files      int                    `json:"files"`
	Violations []ViolationFingerprint `json:"violations"`
}

// ViolationFingerprint keeps the stable fields of a violation. Messages are
// left out so wording changes do not break golden files.
type ViolationFingerprint struct {
	Kind     diag.Kind     `json:"kind"`
	Severity diag.Severity `json:"severity"`
	File     string        `json:"file"`
}

// copyDir recursively copies a directory tree.
func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		// Never carry a previous build's output into the fixture.
		if info.IsDir() && info.Name() == "public" {
			return filepath.SkipDir
		}

		targetPath := filepath.Join(dst, relPath)

		if info.IsDir() {
			return os.MkdirAll(targetPath, 0o750)
		}

		return copyFile(path, targetPath)
	})
}

// copyFile copies a single file.
func copyFile(src, dst string) error {
	// #nosec G304 -- test utility with paths from test setup, not user input
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = srcFile.Close() }()

	// #nosec G304 -- test utility with paths from test setup, not user input
	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = dstFile.Close() }()

	_, err = io.Copy(dstFile, srcFile)
	return err
}

// setupCatalogue copies the example catalogue into a temp directory and
// overlays each extra directory on top of it.
func setupCatalogue(t *testing.T, overlays ...string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, copyDir(examplesDir, dir), "failed to copy example catalogue")
	for _, overlay := range overlays {
		require.NoError(t, copyDir(overlay, dir), "failed to apply overlay %s", overlay)
	}
	return dir
}

// loadGoldenConfig loads a test configuration and returns it.
func loadGoldenConfig(t *testing.T, configPath string) *config.Config {
	t.Helper()

	cfg, err := config.Load(configPath, true)
	require.NoError(t, err, "failed to load test config")

	return cfg
}

// buildStructure scans every written page for entry cards.
func buildStructure(t *testing.T, report *pipeline.BuildReport, outputDir string) *SiteStructure {
	t.Helper()

	actual := &SiteStructure{
		Pages:      make(map[string][]string),
		Outcome:    string(report.Outcome),
		State:      string(report.State),
		Entries:    report.Entries,
		PageCounts: report.Pages,
		Files:      report.Files,
		Violations: []ViolationFingerprint{},
	}

	err := filepath.Walk(outputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}

		relPath, err := filepath.Rel(outputDir, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		// #nosec G304 -- test utility reading from test output directory
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		occurrences, err := audit.Scan(relPath, data)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(occurrences))
		for _, o := range occurrences {
			ids = append(ids, o.EntryID)
		}
		actual.Pages[relPath] = ids
		return nil
	})
	require.NoError(t, err, "failed to walk output directory")

	for _, v := range report.Violations {
		actual.Violations = append(actual.Violations, ViolationFingerprint{Kind: v.Kind, Severity: v.Severity, File: v.Source.File})
	}
	sort.Slice(actual.Violations, func(i, j int) bool {
		a, b := actual.Violations[i], actual.Violations[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Severity < b.Severity
	})
	return actual
}

// verifyStructure compares the built structure against a golden file.
func verifyStructure(t *testing.T, actual *SiteStructure, goldenPath string, updateGolden bool) {
	t.Helper()

	actualJSON, err := json.MarshalIndent(actual, "", "  ")
	require.NoError(t, err, "failed to marshal site structure")

	if updateGolden {
		err = os.MkdirAll(filepath.Dir(goldenPath), 0o750)
		require.NoError(t, err, "failed to create golden directory")

		err = os.WriteFile(goldenPath, append(actualJSON, '\n'), 0o600)
		require.NoError(t, err, "failed to write golden file")

		t.Logf("Updated golden file: %s", goldenPath)
		return
	}

	// #nosec G304 -- test utility reading golden file from testdata
	goldenData, err := os.ReadFile(goldenPath)
	require.NoError(t, err, "failed to read golden file: %s", goldenPath)

	require.JSONEq(t, string(goldenData), string(actualJSON), "Site structure mismatch")
}

// runGoldenTest builds the example catalogue with the given overlays and
// checks the result against goldenPath.
func runGoldenTest(t *testing.T, goldenPath string, updateGolden bool, overlays ...string) {
	t.Helper()

	dir := setupCatalogue(t, overlays...)
	cfg := loadGoldenConfig(t, filepath.Join(dir, config.DefaultPath))

	report, err := pipeline.New(cfg).Build(context.Background())
	require.NoError(t, err, "build failed")
	require.NotNil(t, report)

	verifyStructure(t, buildStructure(t, report, cfg.OutputDir()), goldenPath, updateGolden)
}
