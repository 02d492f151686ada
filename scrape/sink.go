package scrape

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/use-agent/dealscout/models"
)

// Sink receives the result list and progress snapshots of a run. Calls are
// serialized by the orchestrator.
type Sink interface {
	SaveResults(results []models.Result) error
	SaveProgress(p models.Progress) error
}

// FileSink persists results and progress as JSON files. Each write replaces
// the whole file atomically, so readers never see a partial document.
type FileSink struct {
	mu           sync.Mutex
	resultsPath  string
	progressPath string
}

// NewFileSink creates a sink writing to the given paths.
func NewFileSink(resultsPath, progressPath string) *FileSink {
	return &FileSink{resultsPath: resultsPath, progressPath: progressPath}
}

// ResultsPath returns the results file path.
func (f *FileSink) ResultsPath() string { return f.resultsPath }

// ProgressPath returns the progress file path.
func (f *FileSink) ProgressPath() string { return f.progressPath }

// SaveResults writes results as an indented JSON array.
func (f *FileSink) SaveResults(results []models.Result) error {
	if results == nil {
		results = []models.Result{}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeJSON(f.resultsPath, results, true)
}

// SaveProgress writes p as a single JSON object.
func (f *FileSink) SaveProgress(p models.Progress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeJSON(f.progressPath, p, false)
}

// LoadResults reads the results file. A missing file yields an error
// satisfying errors.Is(err, os.ErrNotExist).
func (f *FileSink) LoadResults() ([]models.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var results []models.Result
	if err := readJSON(f.resultsPath, &results); err != nil {
		return nil, err
	}
	if results == nil {
		results = []models.Result{}
	}
	return results, nil
}

// LoadProgress reads the progress file.
func (f *FileSink) LoadProgress() (models.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var p models.Progress
	err := readJSON(f.progressPath, &p)
	return p, err
}

// UpdateResults rewrites the results file with fn applied to its content.
// It fails with os.ErrNotExist when there is no results file.
func (f *FileSink) UpdateResults(fn func([]models.Result) []models.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var results []models.Result
	if err := readJSON(f.resultsPath, &results); err != nil {
		return err
	}
	updated := fn(results)
	if updated == nil {
		updated = []models.Result{}
	}
	return writeJSON(f.resultsPath, updated, true)
}

// Remove deletes both files. Missing files are not an error.
func (f *FileSink) Remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for _, p := range []string{f.resultsPath, f.progressPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func writeJSON(path string, v any, indent bool) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
