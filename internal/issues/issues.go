// Package issues parses collaborator defect reports into typed issues.
//
// A response is a sequence of blocks, optionally preceded by free text:
//
//	response  := preamble? block*
//	block     := HEADER body
//	HEADER    := "[ISSUE" SP+ DIGITS "]"
//	body      := any text up to the next HEADER or end of input
//	field     := LINESTART key ":" SP* value
//	key       := "rows" | "error" | "criticality" | "solution"   (case-insensitive)
//	fence     := "```" lang? NEWLINE code "```"
//
// Fields may appear in any order, optionally behind a "-" or "*" list marker
// or wrapped in "**". The first occurrence of a key wins. rows, error and
// criticality take the rest of their line. solution runs to the first fence,
// the next line starting a key not seen yet, or the end of the body. The first
// fence of the body is appended to the solution; an empty solution directly
// followed by a fence takes the fence alone.
//
// A block missing a field, or with an empty one, is dropped.
package issues

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/gitmetrics/gitmetrics/pkg/models"
)

// Field keys.
const (
	KeyRows        = "rows"
	KeyError       = "error"
	KeyCriticality = "criticality"
	KeySolution    = "solution"
)

var requiredKeys = []string{KeyRows, KeyError, KeyCriticality, KeySolution}

var (
	headerRe = regexp.MustCompile(`\[ISSUE[ \t]+(\d+)\]`)
	fieldRe  = regexp.MustCompile(`(?im)^[ \t]*(?:[-*][ \t]+)?(?:\*\*)?(rows|error|criticality|solution)(?:\*\*)?[ \t]*:(?:\*\*)?[ \t]*`)
	fenceRe  = regexp.MustCompile("(?s)```([A-Za-z0-9_+#.-]*)[ \\t]*\\r?\\n(.*?)```")
)

// Block is one "[ISSUE n]" section of a response.
type Block struct {
	Number string
	Body   string
}

// Drop describes a block that could not be turned into an issue.
type Drop struct {
	Number  string
	Missing []string
}

func (d Drop) String() string {
	return fmt.Sprintf("issue %s: missing %s", d.Number, strings.Join(d.Missing, ", "))
}

// Result is the outcome of parsing one response.
type Result struct {
	Issues  map[string]models.Issue
	Dropped []Drop
}

// Split tokenizes raw into blocks in document order. Text before the first
// header is discarded.
func Split(raw string) []Block {
	locs := headerRe.FindAllStringSubmatchIndex(raw, -1)
	blocks := make([]Block, 0, len(locs))
	for i, loc := range locs {
		end := len(raw)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		blocks = append(blocks, Block{
			Number: raw[loc[2]:loc[3]],
			Body:   raw[loc[1]:end],
		})
	}
	return blocks
}

// Parse extracts issues from a collaborator response. It is pure: the same
// input always yields the same result. When two blocks share a number the
// later valid one wins.
func Parse(raw string) Result {
	res := Result{Issues: make(map[string]models.Issue)}
	for _, b := range Split(raw) {
		issue, missing := parseBlock(b.Body)
		if len(missing) > 0 {
			res.Dropped = append(res.Dropped, Drop{Number: b.Number, Missing: missing})
			continue
		}
		res.Issues[IssueKey(b.Number)] = issue
	}
	return res
}

// IssueKey is the issue map key of block number n.
func IssueKey(n string) string {
	return "issue_" + n
}

// Metrics computes the file metrics of the parsed issues, including the drop count.
func (r Result) Metrics() models.FileMetrics {
	m := Metrics(r.Issues)
	m.DroppedBlocks = len(r.Dropped)
	return m
}

type fieldSpan struct {
	valueStart int
	lineStart  int
}

func parseBlock(body string) (models.Issue, []string) {
	fields := make(map[string]fieldSpan, len(requiredKeys))
	// Only the first line of each key ends a solution; repeated keys are text.
	var boundaries []int
	for _, loc := range fieldRe.FindAllStringSubmatchIndex(body, -1) {
		key := strings.ToLower(body[loc[2]:loc[3]])
		if _, seen := fields[key]; seen {
			continue
		}
		fields[key] = fieldSpan{valueStart: loc[1], lineStart: loc[0]}
		boundaries = append(boundaries, loc[0])
	}

	values := make(map[string]string, len(requiredKeys))
	for key, span := range fields {
		if key == KeySolution {
			values[key] = solutionText(body, span.valueStart, boundaries)
			continue
		}
		values[key] = strings.TrimSpace(restOfLine(body[span.valueStart:]))
	}

	fence := fenceRe.FindStringSubmatch(body)
	if sol, ok := fields[KeySolution]; ok && values[KeySolution] == "" {
		rest := strings.TrimSpace(body[sol.valueStart:])
		if m := fenceRe.FindStringSubmatch(rest); m != nil && strings.HasPrefix(rest, "```") {
			values[KeySolution] = fenced(m)
			fence = nil
		}
	}

	var missing []string
	for _, key := range requiredKeys {
		if values[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return models.Issue{}, missing
	}

	solution := values[KeySolution]
	if fence != nil {
		solution += "\n" + fenced(fence)
	}

	return models.Issue{
		RowRange:     values[KeyRows],
		ErrorText:    values[KeyError],
		Criticality:  NormalizeCriticality(values[KeyCriticality]),
		SolutionText: solution,
	}, nil
}

// fenced renders a fenceRe match back as a fenced block.
func fenced(m []string) string {
	return "```" + m[1] + "\n" + strings.TrimSpace(m[2]) + "\n```"
}

func restOfLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// solutionText returns the text from start up to the first fence, the next
// boundary line or the end of body.
func solutionText(body string, start int, lineStarts []int) string {
	end := len(body)
	if i := strings.Index(body[start:], "```"); i >= 0 {
		end = start + i
	}
	for _, ls := range lineStarts {
		if ls > start && ls < end {
			end = ls
			break
		}
	}
	return strings.TrimSpace(body[start:end])
}

var localizedStems = []struct {
	level models.Criticality
	stem  string
}{
	{models.CriticalityLow, "низк"},
	{models.CriticalityMedium, "средн"},
	{models.CriticalityHigh, "высок"},
}

var englishBands = []struct {
	level models.Criticality
	re    *regexp.Regexp
}{
	{models.CriticalityLow, regexp.MustCompile(`\blow\b`)},
	{models.CriticalityMedium, regexp.MustCompile(`\b(?:medium|moderate)\b`)},
	{models.CriticalityHigh, regexp.MustCompile(`\b(?:high|critical)\b`)},
}

// NormalizeCriticality maps free text onto a criticality band. Russian stems
// are matched as substrings first; English levels only as whole words, so
// "high (integer overflow)" stays high.
func NormalizeCriticality(text string) models.Criticality {
	lower := strings.ToLower(text)
	for _, c := range localizedStems {
		if strings.Contains(lower, c.stem) {
			return c.level
		}
	}
	for _, c := range englishBands {
		if c.re.MatchString(lower) {
			return c.level
		}
	}
	return models.CriticalityUnknown
}

// Metrics counts issues per band and computes the weighted error score
// (3 high, 2 medium, 1 low) averaged over priority-classified issues and
// rounded to two decimals. Unknown issues are counted apart.
func Metrics(issues map[string]models.Issue) models.FileMetrics {
	var m models.FileMetrics
	weighted := 0
	for _, issue := range issues {
		switch issue.Criticality {
		case models.CriticalityHigh:
			m.HighPriority++
		case models.CriticalityMedium:
			m.MediumPriority++
		case models.CriticalityLow:
			m.LowPriority++
		default:
			m.UnknownIssues++
		}
		if issue.Criticality.IsPriority() {
			weighted += issue.Criticality.Weight()
		}
	}

	m.TotalIssues = m.HighPriority + m.MediumPriority + m.LowPriority
	if m.TotalIssues > 0 {
		m.ErrorScore = Round2(float64(weighted) / float64(m.TotalIssues))
	}
	return m
}

// Round2 rounds to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
