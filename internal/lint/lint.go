// Package lint runs external checkers and formatters over single files.
package lint

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gitmetrics/gitmetrics/pkg/config"
	"github.com/gitmetrics/gitmetrics/pkg/models"
	"github.com/gitmetrics/gitmetrics/pkg/parser"
	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"
	"golang.org/x/tools/imports"
)

const (
	// UnsupportedMarker stands in for both report and fixed code when a
	// language has no tooling.
	UnsupportedMarker = "unsupported language"

	// NoCheckerReport is the report of a language that formats but has no checker.
	NoCheckerReport = "reports coming soon"

	// PathPlaceholder in a command line is replaced by the file path. Checkers
	// without it get the path appended.
	PathPlaceholder = "{path}"

	// DefaultTimeout bounds one tool run.
	DefaultTimeout = 60 * time.Second
)

// ErrUnsupported is returned for languages without configured tooling.
var ErrUnsupported = errors.New(UnsupportedMarker)

// Report is a checker's output for one file.
type Report struct {
	Text       string
	ErrorCount int
}

// Adapter checks and formats source files. Check and Format are independent.
type Adapter interface {
	Check(ctx context.Context, path string, lang models.Language) (Report, error)
	Format(ctx context.Context, path string, src []byte, lang models.Language) ([]byte, error)
}

// CountFindings counts lines in report attributed to path, i.e. occurrences of "<path>:".
func CountFindings(report, path string) int {
	return strings.Count(report, path+":")
}

// ExecAdapter runs command lines from config as subprocesses. Go is formatted
// in process unless a formatter is configured for it.
type ExecAdapter struct {
	checkers   map[string]string
	formatters map[string]string
	timeout    time.Duration
	logger     *zap.SugaredLogger
}

// NewExecAdapter creates an adapter from the lint config section.
func NewExecAdapter(cfg config.LintConfig, logger *zap.SugaredLogger) *ExecAdapter {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ExecAdapter{
		checkers:   cfg.Checkers,
		formatters: cfg.Formatters,
		timeout:    timeout,
		logger:     logger,
	}
}

// Supported reports whether lang has a checker entry, empty or not.
func (a *ExecAdapter) Supported(lang models.Language) bool {
	_, ok := a.checkers[lang.String()]
	return ok
}

// Check runs the language's checker. A non-zero exit is how linters report
// findings and is not an error; failing to start the tool is.
func (a *ExecAdapter) Check(ctx context.Context, path string, lang models.Language) (Report, error) {
	cmdline, ok := a.checkers[lang.String()]
	if !ok {
		return Report{}, ErrUnsupported
	}
	if strings.TrimSpace(cmdline) == "" {
		return Report{Text: NoCheckerReport}, nil
	}

	argv, err := commandArgs(cmdline, path, true)
	if err != nil {
		return Report{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || ctx.Err() != nil {
			return Report{}, errors.Wrapf(err, "run %s", argv[0])
		}
		a.logger.Debugw("checker exited non-zero", "file", path, "code", exitErr.ExitCode())
	}

	text := string(out)
	return Report{Text: text, ErrorCount: CountFindings(text, path)}, nil
}

// Format pipes src through the language's formatter and returns its stdout.
func (a *ExecAdapter) Format(ctx context.Context, path string, src []byte, lang models.Language) ([]byte, error) {
	cmdline, ok := a.formatters[lang.String()]
	if !ok {
		if lang == parser.LangGo {
			return formatGo(path, src)
		}
		return nil, ErrUnsupported
	}
	if strings.TrimSpace(cmdline) == "" {
		return src, nil
	}

	argv, err := commandArgs(cmdline, path, false)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(src)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, errors.Wrapf(err, "run %s", argv[0])
		}
		return nil, errors.Wrapf(err, "run %s: %s", argv[0], msg)
	}
	return stdout.Bytes(), nil
}

// formatGo applies gofmt and goimports rules.
func formatGo(path string, src []byte) ([]byte, error) {
	out, err := imports.Process(path, src, &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "goimports")
	}
	return out, nil
}

// commandArgs splits cmdline with shell quoting rules and substitutes the path.
func commandArgs(cmdline, path string, appendPath bool) ([]string, error) {
	argv, err := shellquote.Split(cmdline)
	if err != nil {
		return nil, errors.Wrapf(err, "parse command %q", cmdline)
	}
	if len(argv) == 0 {
		return nil, errors.Newf("empty command %q", cmdline)
	}

	substituted := false
	for i, arg := range argv {
		if strings.Contains(arg, PathPlaceholder) {
			argv[i] = strings.ReplaceAll(arg, PathPlaceholder, path)
			substituted = true
		}
	}
	if appendPath && !substituted {
		argv = append(argv, path)
	}
	return argv, nil
}
