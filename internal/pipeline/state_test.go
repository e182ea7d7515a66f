package pipeline

import (
	"context"
	"testing"

	"github.com/gitmetrics/gitmetrics/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func records(paths ...string) []models.FileRecord {
	out := make([]models.FileRecord, len(paths))
	for i, p := range paths {
		out[i] = models.FileRecord{RelativePath: p, AbsolutePath: "/ws/" + p, Language: "python"}
	}
	return out
}

func TestStageRun_VisitsEveryFileOnce(t *testing.T) {
	files := records("a.py", "b.py", "c.py")
	results := make(map[string]int)
	run := NewStageRun(context.Background(), "test", files, results)

	var seen []string
	for run.Next() {
		f := run.Current()
		seen = append(seen, f.RelativePath)
		assert.Equal(t, len(seen), run.Cursor())
		run.Record(len(seen))
	}

	assert.Equal(t, []string{"a.py", "b.py", "c.py"}, seen)
	assert.True(t, run.Done())
	assert.Equal(t, 3, run.Cursor())
	assert.Equal(t, map[string]int{"a.py": 1, "b.py": 2, "c.py": 3}, results)
	assert.False(t, run.Next(), "exhausted run stays exhausted")
	assert.Equal(t, 3, run.Cursor())
}

func TestStageRun_Empty(t *testing.T) {
	run := NewStageRun(context.Background(), "test", nil, map[string]int{})
	assert.False(t, run.Next())
	assert.True(t, run.Done())
	assert.Equal(t, 0, run.Total())
}

func TestStageRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	run := NewStageRun(ctx, "test", records("a.py", "b.py", "c.py"), map[string]int{})

	require.True(t, run.Next())
	run.Record(1)
	cancel()

	assert.False(t, run.Next())
	assert.Equal(t, 1, run.Cursor())
	assert.False(t, run.Done())
}

func TestState_TransitionsAndLintOrder(t *testing.T) {
	s := newState("run", "repo")
	s.enter(PhaseFetching)
	s.enter(PhaseFailed)
	assert.Equal(t, []Phase{PhaseInit, PhaseFetching, PhaseFailed}, s.Transitions)
	assert.Equal(t, PhaseFailed, s.Phase)

	s.Files = records("z.py", "a.py", "m.py")
	s.LintResults["a.py"] = models.LintResult{File: "a.py"}
	s.LintResults["z.py"] = models.LintResult{File: "z.py"}

	var order []string
	for _, r := range s.LintList() {
		order = append(order, r.File)
	}
	assert.Equal(t, []string{"z.py", "a.py"}, order)
}

func TestState_ErrorReportOnRepoFailure(t *testing.T) {
	s := newState("run", "repo")
	s.ErrorResults["a.py"] = models.FileReport{Error: "x"}
	s.RepoError = "Failed to clone repo: boom"

	r := s.ErrorReport()
	assert.Len(t, r.FileReports, 1)
	assert.Equal(t, "Failed to clone repo: boom", r.FileReports["repo"].Error)
}

func TestGuard(t *testing.T) {
	assert.NoError(t, guard(func() {}))

	err := guard(func() { panic("boom") })
	require.Error(t, err)
	assert.Equal(t, "panic: boom", err.Error())
}
