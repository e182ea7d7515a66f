// Package progress draws terminal progress for fetching and stage loops.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"
)

// Tracker wraps a progress bar. It is safe for concurrent use.
type Tracker struct {
	bar   *progressbar.ProgressBar
	label string
	w     io.Writer

	mu     sync.Mutex
	stages map[string][2]int // done, total
	desc   string
}

// NewSpinner creates a spinner for operations with unknown total count, such
// as cloning.
func NewSpinner(w io.Writer, label string) *Tracker {
	if w == nil {
		w = os.Stderr
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(20),
		progressbar.OptionSetDescription(label),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	return &Tracker{bar: bar, label: label, w: w, stages: make(map[string][2]int)}
}

// NewTracker creates a progress bar with the given label and total count.
func NewTracker(w io.Writer, label string, total int) *Tracker {
	if w == nil {
		w = os.Stderr
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(label),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &Tracker{bar: bar, label: label, w: w, stages: make(map[string][2]int)}
}

// Tick increments the progress by 1.
func (t *Tracker) Tick() {
	_ = t.bar.Add(1)
}

// Write lets the spinner consume clone progress output.
func (t *Tracker) Write(p []byte) (int, error) {
	_ = t.bar.Add(1)
	return len(p), nil
}

// StageDone records that stage has visited done of total files and ticks
// the bar. Its signature matches the pipeline's progress callback.
func (t *Tracker) StageDone(stage string, done, total int) {
	t.mu.Lock()
	t.stages[stage] = [2]int{done, total}
	desc := t.label
	for _, name := range []string{"lint", "complexity", "errors"} {
		if n, ok := t.stages[name]; ok {
			desc += fmt.Sprintf(" %s %d/%d", name, n[0], n[1])
		}
	}
	t.desc = desc
	t.mu.Unlock()

	t.bar.Describe(desc)
	t.Tick()
}

// FinishSuccess clears the bar completely (no output).
func (t *Tracker) FinishSuccess() {
	_ = t.bar.Finish()
	_ = t.bar.Clear()
}

// FinishError clears the bar and prints an error message.
func (t *Tracker) FinishError(err error) {
	_ = t.bar.Finish()
	_ = t.bar.Clear()
	fmt.Fprintf(t.w, "  %s error: %v\n", t.label, err)
}
