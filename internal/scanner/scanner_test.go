package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gitmetrics/gitmetrics/pkg/config"
	"github.com/gitmetrics/gitmetrics/pkg/models"
	"github.com/gitmetrics/gitmetrics/pkg/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func relPaths(records []models.FileRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.RelativePath)
	}
	return out
}

func TestNewScanner(t *testing.T) {
	s := NewScanner(nil)
	if s == nil {
		t.Fatal("NewScanner(nil) returned nil")
	}
	if s.config == nil {
		t.Error("scanner.config should not be nil when passing nil")
	}

	cfg := config.DefaultConfig()
	s = NewScanner(cfg)
	if s.config != cfg {
		t.Error("scanner.config should be the provided config")
	}
}

func TestScan(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"main.go":          "package main\n",
		"b/helper.py":      "# python\n",
		"a/Core.java":      "class Core {}\n",
		"a/z/lib.cpp":      "int x;\n",
		"a/z/lib.h":        "int x;\n",
		"c/util.c":         "int y;\n",
		"internal/core.rs": "fn main() {}\n",
		"README.md":        "# readme\n",
		"big.bin":          "\x00\x01",
	})

	records, err := NewScanner(nil).Scan(tmpDir)
	require.NoError(t, err)

	// Lexical walk order, extension-filtered.
	assert.Equal(t, []string{
		"a/Core.java",
		"a/z/lib.cpp",
		"a/z/lib.h",
		"b/helper.py",
		"c/util.c",
		"main.go",
	}, relPaths(records))

	for _, r := range records {
		assert.True(t, filepath.IsAbs(r.AbsolutePath))
		assert.FileExists(t, r.AbsolutePath)
	}
	assert.Equal(t, parser.LangJava, records[0].Language)
	assert.Equal(t, parser.LangCPP, records[2].Language)
	assert.Equal(t, parser.LangC, records[4].Language)
}

func TestScanStableAcrossRuns(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{"x.py": "", "y/z.py": "", "a.go": ""})

	s := NewScanner(nil)
	first, err := s.Scan(tmpDir)
	require.NoError(t, err)
	second, err := s.Scan(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestScanExcludesDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"main.py":                  "",
		"vendor/dep.py":            "",
		"node_modules/pkg/x.py":    "",
		".git/hooks/pre-commit.py": "",
		"src/__pycache__/m.py":     "",
		"src/ok.py":                "",
	})

	records, err := NewScanner(nil).Scan(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"main.py", "src/ok.py"}, relPaths(records))
}

func TestScanExcludesPatterns(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"main.py":       "",
		"main_test.py":  "",
		"gen/models.py": "",
		"gen/keep.java": "",
	})

	cfg := config.DefaultConfig()
	cfg.Exclude.Patterns = []string{"*_test.py", "gen/*.py"}
	records, err := NewScanner(cfg).Scan(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"gen/keep.java", "main.py"}, relPaths(records))
}

func TestScanCustomExtensions(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{"a.py": "", "b.go": "", "c.rs": ""})

	cfg := config.DefaultConfig()
	cfg.Languages.Extensions = []string{".rs"}
	records, err := NewScanner(cfg).Scan(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"c.rs"}, relPaths(records))
}

func TestScanWithGitignore(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		".gitignore":     "build/\n*.gen.py\n",
		"app.py":         "",
		"app.gen.py":     "",
		"build/out.py":   "",
		"sub/.gitignore": "local.py\n",
		"sub/local.py":   "",
		"sub/kept.py":    "",
	})

	records, err := NewScanner(nil).Scan(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py", "sub/kept.py"}, relPaths(records))

	cfg := config.DefaultConfig()
	cfg.Exclude.Gitignore = false
	records, err = NewScanner(cfg).Scan(tmpDir)
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

func TestScanEmptyDirectory(t *testing.T) {
	records, err := NewScanner(nil).Scan(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestScanMissingRoot(t *testing.T) {
	_, err := NewScanner(nil).Scan(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestScanSkipsEscapingSymlinks(t *testing.T) {
	outside := t.TempDir()
	writeTree(t, outside, map[string]string{"secret.py": ""})

	root := t.TempDir()
	writeTree(t, root, map[string]string{"in.py": ""})
	if err := os.Symlink(filepath.Join(outside, "secret.py"), filepath.Join(root, "link.py")); err != nil {
		t.Skip("symlinks not supported")
	}
	require.NoError(t, os.Symlink(filepath.Join(root, "in.py"), filepath.Join(root, "alias.py")))

	records, err := NewScanner(nil).Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"alias.py", "in.py"}, relPaths(records))
}

func TestIsWithinRoot(t *testing.T) {
	tests := []struct {
		path string
		root string
		want bool
	}{
		{"/repo/a.py", "/repo", true},
		{"/repo", "/repo", true},
		{"/repo2/a.py", "/repo", false},
		{"/etc/passwd", "/repo", false},
		{"/repo/../etc", "/repo", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isWithinRoot(tt.path, tt.root), tt.path)
	}
}
