// Package apply writes suggested fixes from saved reports back into a
// working tree.
package apply

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gitmetrics/gitmetrics/internal/lint"
	"github.com/gitmetrics/gitmetrics/internal/pipeline"
	"github.com/gitmetrics/gitmetrics/pkg/models"
)

// ErrOutsideRoot is returned for report paths that would escape the root.
var ErrOutsideRoot = errors.New("path escapes root")

// Skip reasons.
const (
	SkipFailed      = "analysis failed"
	SkipUnsupported = "unsupported language"
	SkipUnchanged   = "unchanged"
	SkipNoFixes     = "no simplified code"
)

// Outcome is what happened to one file.
type Outcome struct {
	File    string
	Applied int    // fixes written
	Skipped int    // fixes not written, e.g. overlapping fragments
	Reason  string // set when the file was left alone
	Err     error
}

// LintFixes replaces each file with its formatted code.
func LintFixes(root string, results []models.LintResult) []Outcome {
	out := make([]Outcome, 0, len(results))
	for _, r := range results {
		o := Outcome{File: r.File}
		switch {
		case r.Error != "":
			o.Reason = SkipFailed
		case r.FixedCode == lint.UnsupportedMarker || r.FixedCode == "":
			o.Reason = SkipUnsupported
		default:
			fixed := r.FixedCode
			o.Applied, o.Skipped, o.Err = rewrite(root, r.File, func(old string) (string, int, int) {
				if old == fixed {
					return old, 0, 0
				}
				return fixed, 1, 0
			})
			if o.Err == nil && o.Applied == 0 {
				o.Reason = SkipUnchanged
			}
		}
		out = append(out, o)
	}
	return out
}

// Fragments replaces each fragment's line range with its simplified code.
// Fragments are applied bottom-up so earlier line numbers stay valid; a
// fragment overlapping one already applied is skipped. Files are processed
// in path order.
func Fragments(root string, results map[string]models.ComplexityResult) []Outcome {
	paths := make([]string, 0, len(results))
	for p := range results {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]Outcome, 0, len(paths))
	for _, p := range paths {
		r := results[p]
		o := Outcome{File: p}

		var frags []models.Fragment
		for _, f := range r.Fragments {
			if f.SimplifiedCode != nil && *f.SimplifiedCode != pipeline.SimplifyFailed && strings.TrimSpace(*f.SimplifiedCode) != "" {
				frags = append(frags, f)
			}
		}
		switch {
		case r.Error != "":
			o.Reason = SkipFailed
		case len(frags) == 0:
			o.Reason = SkipNoFixes
		default:
			o.Applied, o.Skipped, o.Err = rewrite(root, p, func(old string) (string, int, int) {
				return replaceFragments(old, frags)
			})
		}
		out = append(out, o)
	}
	return out
}

// rewrite reads the file at rel under root, transforms it with fn and writes
// it back with its original permissions when anything was applied.
func rewrite(root, rel string, fn func(string) (string, int, int)) (int, int, error) {
	path, err := resolve(root, rel)
	if err != nil {
		return 0, 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	updated, applied, skipped := fn(string(data))
	if applied == 0 {
		return 0, skipped, nil
	}
	if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return 0, skipped, errors.Wrapf(err, "write %s", rel)
	}
	return applied, skipped, nil
}

// resolve joins a slash-separated report path onto root, rejecting paths that
// are absolute or climb out of root.
func resolve(root, rel string) (string, error) {
	local := filepath.FromSlash(rel)
	if !filepath.IsLocal(local) {
		return "", errors.Wrapf(ErrOutsideRoot, "%s", rel)
	}
	return filepath.Join(root, local), nil
}

// replaceFragments splices frags into src and reports how many were applied
// and skipped.
func replaceFragments(src string, frags []models.Fragment) (string, int, int) {
	sorted := append([]models.Fragment(nil), frags...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartLine > sorted[j].StartLine
	})

	lines := strings.SplitAfter(src, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	applied, skipped := 0, 0
	floor := len(lines) + 1 // first line of the last applied fragment
	for _, f := range sorted {
		start, end := f.StartLine, f.EndLine
		if start < 1 || end < start || start > len(lines) || end >= floor {
			skipped++
			continue
		}
		if end > len(lines) {
			end = len(lines)
		}

		code := unfence(*f.SimplifiedCode)
		if strings.HasSuffix(lines[end-1], "\n") && !strings.HasSuffix(code, "\n") {
			code += "\n"
		}
		replacement := strings.SplitAfter(code, "\n")
		if n := len(replacement); n > 0 && replacement[n-1] == "" {
			replacement = replacement[:n-1]
		}

		tail := append([]string(nil), lines[end:]...)
		lines = append(append(lines[:start-1], replacement...), tail...)
		floor = start
		applied++
	}
	if applied == 0 {
		return src, 0, skipped
	}
	return strings.Join(lines, ""), applied, skipped
}

// unfence strips a surrounding ``` block, which collaborators often add.
func unfence(code string) string {
	trimmed := strings.TrimSpace(code)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") || len(trimmed) < 6 {
		return code
	}
	body := strings.TrimSuffix(trimmed, "```")
	nl := strings.IndexByte(body, '\n')
	if nl == -1 {
		return code
	}
	return strings.TrimRight(body[nl+1:], "\n") + "\n"
}
