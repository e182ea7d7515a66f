package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	gotoml "github.com/pelletier/go-toml"
)

// Config holds all configuration options for gitmetrics.
type Config struct {
	// Which stages run
	Analysis AnalysisConfig `koanf:"analysis" toml:"analysis"`

	// Eligible source files
	Languages LanguagesConfig `koanf:"languages" toml:"languages"`

	// Complexity bands
	Thresholds ThresholdConfig `koanf:"thresholds" toml:"thresholds"`

	// File exclusion patterns
	Exclude ExcludeConfig `koanf:"exclude" toml:"exclude"`

	// Text-generation collaborator
	LLM LLMConfig `koanf:"llm" toml:"llm"`

	// Prompt templates
	Prompts PromptsConfig `koanf:"prompts" toml:"prompts"`

	// External lint and format tools
	Lint LintConfig `koanf:"lint" toml:"lint"`

	// Collaborator response cache
	Cache CacheConfig `koanf:"cache" toml:"cache"`

	// Report output
	Output OutputConfig `koanf:"output" toml:"output"`
}

// AnalysisConfig controls which stages run.
type AnalysisConfig struct {
	Lint       bool `koanf:"lint" toml:"lint"`
	Complexity bool `koanf:"complexity" toml:"complexity"`
	Errors     bool `koanf:"errors" toml:"errors"`
	Blame      bool `koanf:"blame" toml:"blame"`
	Shallow    bool `koanf:"shallow" toml:"shallow"`
}

// LanguagesConfig selects which files are eligible by extension.
type LanguagesConfig struct {
	Extensions []string `koanf:"extensions" toml:"extensions"`
}

// ThresholdConfig defines the complexity criticality bands.
type ThresholdConfig struct {
	ComplexityHigh   int `koanf:"complexity_high" toml:"complexity_high"`
	ComplexityMedium int `koanf:"complexity_medium" toml:"complexity_medium"`
}

// ExcludeConfig defines file exclusion patterns.
type ExcludeConfig struct {
	Patterns  []string `koanf:"patterns" toml:"patterns"`
	Dirs      []string `koanf:"dirs" toml:"dirs"`
	Gitignore bool     `koanf:"gitignore" toml:"gitignore"`
}

// LLMConfig configures the OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	BaseURL           string  `koanf:"base_url" toml:"base_url"`
	Model             string  `koanf:"model" toml:"model"`
	APIKeyEnv         string  `koanf:"api_key_env" toml:"api_key_env"`
	Temperature       float64 `koanf:"temperature" toml:"temperature"`
	MaxTokens         int     `koanf:"max_tokens" toml:"max_tokens"`
	Timeout           int     `koanf:"timeout" toml:"timeout"` // seconds per call
	RequestsPerMinute int     `koanf:"requests_per_minute" toml:"requests_per_minute"`
	Explain           bool    `koanf:"explain" toml:"explain"`
}

// APIKey reads the key from the configured environment variable.
func (c LLMConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// PromptsConfig holds the prompt templates. ErrorUser must contain {code}.
type PromptsConfig struct {
	ErrorSystem string `koanf:"error_system" toml:"error_system"`
	ErrorUser   string `koanf:"error_user" toml:"error_user"`
	Explain     string `koanf:"explain" toml:"explain"`
	Simplify    string `koanf:"simplify" toml:"simplify"`
}

// LintConfig maps a language name to checker and formatter command lines.
// An empty checker means the language has no checker.
type LintConfig struct {
	Checkers   map[string]string `koanf:"checkers" toml:"checkers"`
	Formatters map[string]string `koanf:"formatters" toml:"formatters"`
	Timeout    int               `koanf:"timeout" toml:"timeout"` // seconds per tool run
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled" toml:"enabled"`
	Dir     string `koanf:"dir" toml:"dir"`
	TTL     int    `koanf:"ttl" toml:"ttl"` // TTL in hours
}

// OutputConfig controls where and how results are written.
type OutputConfig struct {
	Dir     string `koanf:"dir" toml:"dir"`
	Format  string `koanf:"format" toml:"format"` // text, json, markdown
	Color   bool   `koanf:"color" toml:"color"`
	Metrics bool   `koanf:"metrics" toml:"metrics"`
}

// Placeholder substituted with the numbered source in PromptsConfig.ErrorUser,
// Explain and Simplify.
const CodePlaceholder = "{code}"

const (
	defaultErrorSystem = `You are a code reviewer. Find real defects in the numbered source you are given: bugs, unsafe constructs, resource leaks, wrong error handling.
Report every defect as a block in exactly this format and nothing else:

[ISSUE <n>]
rows: <line or range, e.g. 12-15>
error: <one-line description>
criticality: <low | medium | high>
solution: <how to fix it>
` + "```<language>\n<corrected code>\n```" + `

Number issues from 1. If there are no defects, answer with an empty response.`

	defaultErrorUser = "Review this file. Lines are prefixed with their numbers.\n\n{code}"

	defaultExplain = "Explain briefly why the following function is hard to read and maintain. Point at the constructs that drive its cyclomatic complexity.\n\n{code}"

	defaultSimplify = "Rewrite the following function with lower cyclomatic complexity and identical behavior. Reply with code only.\n\n{code}"
)

var validFormats = []string{"text", "json", "markdown"}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Lint:       true,
			Complexity: true,
			Errors:     true,
		},
		Languages: LanguagesConfig{
			Extensions: []string{".py", ".java", ".cpp", ".c", ".h", ".go"},
		},
		Thresholds: ThresholdConfig{
			ComplexityHigh:   8,
			ComplexityMedium: 4,
		},
		Exclude: ExcludeConfig{
			Dirs: []string{
				"vendor",
				"node_modules",
				".git",
				".gitmetrics",
				"__pycache__",
			},
			Gitignore: true,
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "qwen-2.5-coder-32b",
			APIKeyEnv:   "GITMETRICS_API_KEY",
			Temperature: 0.4,
			MaxTokens:   7000,
			Timeout:     120,
		},
		Prompts: PromptsConfig{
			ErrorSystem: defaultErrorSystem,
			ErrorUser:   defaultErrorUser,
			Explain:     defaultExplain,
			Simplify:    defaultSimplify,
		},
		Lint: LintConfig{
			Checkers: map[string]string{
				"python": "pylint",
				"c":      "cpplint",
				"cpp":    "cpplint",
				"java":   "",
				"go":     "go vet",
			},
			Formatters: map[string]string{
				"python": "black -q -",
				"c":      "clang-format -style=LLVM --assume-filename={path}",
				"cpp":    "clang-format -style=LLVM --assume-filename={path}",
				"java":   "clang-format -style=LLVM --assume-filename={path}",
			},
			Timeout: 60,
		},
		Cache: CacheConfig{
			Enabled: false,
			Dir:     ".gitmetrics/cache",
			TTL:     24,
		},
		Output: OutputConfig{
			Dir:    ".",
			Format: "text",
			Color:  true,
		},
	}
}

// Load loads configuration from a file on top of the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	// Determine parser based on extension
	var parser koanf.Parser
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml":
		parser = toml.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, errors.Wrapf(err, "load config %s", path)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrapf(err, "decode config %s", path)
	}

	return cfg, nil
}

// Standard config file names, searched in the current directory and .gitmetrics/.
var configNames = []string{
	"gitmetrics.toml",
	"gitmetrics.yaml",
	"gitmetrics.yml",
	"gitmetrics.json",
	".gitmetrics.toml",
	".gitmetrics.yaml",
	".gitmetrics.yml",
	".gitmetrics.json",
}

// Find returns the first config file in the standard locations, or "".
func Find() string {
	for _, dir := range []string{".", ".gitmetrics"} {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// LoadOrDefault loads path when given, otherwise the first config found in the
// standard locations, otherwise the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = Find()
	}
	if path == "" {
		return DefaultConfig(), nil
	}
	return Load(path)
}

// Validate checks the config for values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs error
	if c.Thresholds.ComplexityMedium <= 0 || c.Thresholds.ComplexityHigh <= 0 {
		errs = errors.CombineErrors(errs, errors.Newf(
			"thresholds must be positive (medium=%d, high=%d)",
			c.Thresholds.ComplexityMedium, c.Thresholds.ComplexityHigh))
	}
	if c.Thresholds.ComplexityMedium >= c.Thresholds.ComplexityHigh {
		errs = errors.CombineErrors(errs, errors.Newf(
			"thresholds.complexity_medium (%d) must be below thresholds.complexity_high (%d)",
			c.Thresholds.ComplexityMedium, c.Thresholds.ComplexityHigh))
	}
	if len(c.Languages.Extensions) == 0 {
		errs = errors.CombineErrors(errs, errors.New("languages.extensions must not be empty"))
	}
	if !slices.Contains(validFormats, c.Output.Format) {
		errs = errors.CombineErrors(errs, errors.Newf(
			"output.format %q is not one of %s", c.Output.Format, strings.Join(validFormats, ", ")))
	}
	if c.Analysis.Errors && !strings.Contains(c.Prompts.ErrorUser, CodePlaceholder) {
		errs = errors.CombineErrors(errs, errors.Newf("prompts.error_user must contain %s", CodePlaceholder))
	}
	if c.LLM.Timeout <= 0 {
		errs = errors.CombineErrors(errs, errors.New("llm.timeout must be positive"))
	}
	if c.LLM.RequestsPerMinute < 0 {
		errs = errors.CombineErrors(errs, errors.New("llm.requests_per_minute must not be negative"))
	}
	return errs
}

// HasExtension reports whether ext (with leading dot) is an eligible extension.
func (c *Config) HasExtension(ext string) bool {
	return slices.Contains(c.Languages.Extensions, strings.ToLower(ext))
}

// ExcludedDir reports whether a directory name is in the exclude list.
func (c *Config) ExcludedDir(name string) bool {
	return slices.Contains(c.Exclude.Dirs, name)
}

// TOML renders the effective config.
func (c *Config) TOML() ([]byte, error) {
	return gotoml.Marshal(*c)
}
