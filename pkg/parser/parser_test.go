package parser

import (
	"context"
	"testing"

	"github.com/gitmetrics/gitmetrics/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want models.Language
	}{
		{"main.go", LangGo},
		{"pkg/app.py", LangPython},
		{"Main.java", LangJava},
		{"lib.c", LangC},
		{"lib.h", LangCPP},
		{"lib.CPP", LangCPP},
		{"index.js", LangJavaScript},
		{"index.ts", LangTypeScript},
		{"main.rs", LangRust},
		{"README.md", LangUnknown},
		{"Makefile", LangUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.path))
		})
	}
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(LangPython))
	assert.True(t, Supported(LangCPP))
	assert.False(t, Supported(LangUnknown))
	assert.False(t, Supported(models.Language("cobol")))
}

func TestParse_Unsupported(t *testing.T) {
	p := New()
	defer p.Close()
	_, err := p.Parse(context.Background(), []byte("x"), LangUnknown)
	assert.Error(t, err)
}

func TestFunctions(t *testing.T) {
	tests := []struct {
		name  string
		lang  models.Language
		src   string
		names []string
	}{
		{
			name:  "go",
			lang:  LangGo,
			src:   "package x\n\nfunc A() {}\n\ntype T struct{}\n\nfunc (T) B() {}\n",
			names: []string{"A", "B"},
		},
		{
			name:  "python",
			lang:  LangPython,
			src:   "def a():\n    pass\n\nclass K:\n    def b(self):\n        pass\n",
			names: []string{"a", "b"},
		},
		{
			name:  "c",
			lang:  LangC,
			src:   "int add(int a, int b) {\n  return a + b;\n}\n\nstatic char *name(void) { return 0; }\n",
			names: []string{"add", "name"},
		},
		{
			name:  "java",
			lang:  LangJava,
			src:   "class A {\n  A() {}\n  void run() {}\n}\n",
			names: []string{"A", "run"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			defer p.Close()

			result, err := p.Parse(context.Background(), []byte(tt.src), tt.lang)
			require.NoError(t, err)

			var got []string
			for _, fn := range Functions(result) {
				got = append(got, fn.Name)
				assert.NotNil(t, fn.Body, fn.Name)
				assert.GreaterOrEqual(t, fn.EndLine, fn.StartLine)
			}
			assert.Equal(t, tt.names, got)
		})
	}
}

func TestNodeText_Bounds(t *testing.T) {
	assert.Equal(t, "", NodeText(nil, []byte("abc")))
}
