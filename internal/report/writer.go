// Package report persists analysis results as JSON documents.
package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/gitmetrics/gitmetrics/pkg/models"
)

// Output file names.
const (
	ComplexityFile = "complexity_report.json"
	ErrorFile      = "error_report.json"
	LintFile       = "linters_report.json"
	MetricsFile    = "metrics.prom"
)

// RepoKey is the file_reports key used for a repository-level failure.
const RepoKey = "repo"

// MetricsWriter writes collected run metrics in textfile format.
type MetricsWriter interface {
	WriteTextfile(path string) error
}

// Writer writes report files into one directory.
type Writer struct {
	dir string
}

// NewWriter returns a writer targeting dir, creating it when missing.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create output dir %s", dir)
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// Path returns the full path of a report file name.
func (w *Writer) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// WriteComplexity writes the complexity mapping keyed by relative path.
func (w *Writer) WriteComplexity(results map[string]models.ComplexityResult) error {
	if results == nil {
		results = map[string]models.ComplexityResult{}
	}
	return w.writeJSON(ComplexityFile, results)
}

// WriteErrors writes the repository summary and per-file reports.
func (w *Writer) WriteErrors(report models.ErrorReport) error {
	if report.FileReports == nil {
		report.FileReports = map[string]models.FileReport{}
	}
	return w.writeJSON(ErrorFile, report)
}

// WriteRepoFailure writes an error report holding only the repository-level
// failure entry.
func (w *Writer) WriteRepoFailure(msg string) error {
	return w.WriteErrors(models.ErrorReport{
		FileReports: map[string]models.FileReport{
			RepoKey: {Error: msg},
		},
	})
}

// WriteLint writes the lint results as a list, in the given order.
func (w *Writer) WriteLint(results []models.LintResult) error {
	if results == nil {
		results = []models.LintResult{}
	}
	return w.writeJSON(LintFile, results)
}

// WriteMetrics writes m to metrics.prom.
func (w *Writer) WriteMetrics(m MetricsWriter) error {
	if err := m.WriteTextfile(w.Path(MetricsFile)); err != nil {
		return errors.Wrap(err, "write metrics")
	}
	return nil
}

// writeJSON encodes v indented, without HTML escaping, and commits it with a
// rename so readers never see a partial file.
func (w *Writer) writeJSON(name string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrapf(err, "encode %s", name)
	}

	tmp, err := os.CreateTemp(w.dir, "."+name+"-*")
	if err != nil {
		return errors.Wrapf(err, "create %s", name)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Wrapf(err, "write %s", name)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrapf(err, "write %s", name)
	}
	if err := os.Rename(tmp.Name(), w.Path(name)); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrapf(err, "commit %s", name)
	}
	return nil
}

// LoadComplexity reads a complexity_report.json file.
func LoadComplexity(path string) (map[string]models.ComplexityResult, error) {
	var out map[string]models.ComplexityResult
	if err := loadJSON(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadLint reads a linters_report.json file.
func LoadLint(path string) ([]models.LintResult, error) {
	var out []models.LintResult
	if err := loadJSON(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func loadJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(v); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}
