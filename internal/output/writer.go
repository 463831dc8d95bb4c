// Package output writes rendered pages under the output root.
//
// Files whose content hash already matches are left untouched, so a rebuild
// of unchanged input performs no writes. Changed files are replaced
// atomically through a temporary file in the same directory.
package output

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/appshelf/internal/diag"
	"git.home.luguber.info/inful/appshelf/internal/logfields"
	"git.home.luguber.info/inful/appshelf/internal/render"
)

// Status is the outcome of writing one file.
type Status string

const (
	StatusWritten   Status = "written"
	StatusUnchanged Status = "unchanged"
	StatusFailed    Status = "failed"
)

// FileResult records what happened to one output file.
type FileResult struct {
	Path   string `json:"path"`
	Status Status `json:"status"`
}

// WriteReport summarises a Write call.
type WriteReport struct {
	Written    int              `json:"written"`
	Unchanged  int              `json:"unchanged"`
	Failed     int              `json:"failed"`
	Files      []FileResult     `json:"files,omitempty"`
	Violations []diag.Violation `json:"-"`
}

func (r *WriteReport) record(path string, st Status) {
	switch st {
	case StatusWritten:
		r.Written++
	case StatusUnchanged:
		r.Unchanged++
	case StatusFailed:
		r.Failed++
	}
	r.Files = append(r.Files, FileResult{Path: path, Status: st})
}

// Writer writes results under a root directory.
type Writer struct {
	root   string
	logger *slog.Logger
}

// NewWriter creates a writer for root.
func NewWriter(root string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{root: root, logger: logger}
}

// Write writes every result. A failure on one file is recorded as a
// WriteError violation and the remaining files are still written.
func (w *Writer) Write(results []render.Result) WriteReport {
	var rep WriteReport
	if err := os.MkdirAll(w.root, 0o750); err != nil {
		for _, r := range results {
			rep.record(r.Path, StatusFailed)
			rep.Violations = append(rep.Violations, writeViolation(r.Path, fmt.Errorf("create output root: %w", err)))
		}
		return rep
	}
	for _, r := range results {
		st, err := w.writeOne(r)
		rep.record(r.Path, st)
		if err != nil {
			rep.Violations = append(rep.Violations, writeViolation(r.Path, err))
			w.logger.Warn("Output write failed", logfields.Path(r.Path), logfields.Error(err))
			continue
		}
		w.logger.Debug("Output file", logfields.Path(r.Path), slog.String("status", string(st)))
	}
	return rep
}

// Write is a convenience wrapper around NewWriter(root, nil).Write.
func Write(results []render.Result, root string) WriteReport {
	return NewWriter(root, nil).Write(results)
}

func writeViolation(path string, err error) diag.Violation {
	return diag.Errorf(diag.KindWrite, diag.Provenance{}, "", "%v", err).WithSubject(path)
}

func (w *Writer) writeOne(r render.Result) (Status, error) {
	full, err := SafeJoin(w.root, r.Path)
	if err != nil {
		return StatusFailed, err
	}
	hash := r.Hash
	if hash == "" {
		sum := sha256.Sum256(r.Content)
		hash = hex.EncodeToString(sum[:])
	}
	if existing, err := fileHash(full); err == nil && existing == hash {
		return StatusUnchanged, nil
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return StatusFailed, fmt.Errorf("create directory: %w", err)
	}
	if err := WriteAtomic(full, r.Content, 0o644); err != nil {
		return StatusFailed, err
	}
	return StatusWritten, nil
}

// SafeJoin joins rel under root, rejecting absolute paths and traversal.
func SafeJoin(root, rel string) (string, error) {
	if rel == "" {
		return "", errors.New("output path is required")
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("output path %q escapes the output root", rel)
	}
	full := filepath.Join(root, clean)
	back, err := filepath.Rel(root, full)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("output path %q escapes the output root", rel)
	}
	return full, nil
}

func fileHash(path string) (string, error) {
	// #nosec G304 -- path was checked by SafeJoin.
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteAtomic writes data to path through a temporary file and rename.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
