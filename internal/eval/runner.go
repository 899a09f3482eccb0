// Package eval replays labeled cases through the classifier to measure
// drift after prompt or model changes.
package eval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/buildersguild/sentinel/internal/classifier"
	"github.com/buildersguild/sentinel/internal/store"
)

// Result is the verdict for one replayed case.
type Result struct {
	MessageID   string
	RawResponse string
	Expected    bool
	Flagged     bool
	Passed      bool
	Err         error
}

// Summary aggregates a full eval run.
type Summary struct {
	Total   int
	Passed  int
	Results []Result
}

func (s Summary) Failed() int { return s.Total - s.Passed }

// PassRate returns the fraction of cases that passed, 0 for an empty run.
func (s Summary) PassRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Total)
}

// Runner replays eval cases against a live classifier.
type Runner struct {
	classifier classifier.Classifier
	cases      store.EvalStore
}

func NewRunner(cls classifier.Classifier, cases store.EvalStore) *Runner {
	return &Runner{classifier: cls, cases: cases}
}

// Run replays every stored case. A case passes when the classifier's
// decision about the case's group matches the human verdict. Classifier
// errors and unparseable responses count as failures rather than aborting
// the run.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	cases, err := r.cases.Cases(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load eval cases: %w", err)
	}

	summary := Summary{Total: len(cases)}
	for i, c := range cases {
		res := r.runCase(ctx, c)
		if res.Passed {
			summary.Passed++
		}
		summary.Results = append(summary.Results, res)
		slog.Info("eval case finished", "case", i+1, "total", len(cases),
			"message_id", c.MessageID, "passed", res.Passed)

		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
	}
	return summary, nil
}

func (r *Runner) runCase(ctx context.Context, c store.EvalCase) Result {
	res := Result{MessageID: c.MessageID, Expected: c.ShouldFlag}

	raw, err := r.classifier.Flag(ctx, c.Window, c.WaivedPeople)
	if err != nil {
		res.Err = err
		return res
	}
	res.RawResponse = raw

	flags, err := classifier.ExtractFlags(raw)
	if err != nil {
		res.Err = err
		return res
	}
	for _, f := range flags {
		if f.Index == c.RelativeIndex {
			res.Flagged = true
			break
		}
	}
	res.Passed = res.Flagged == c.ShouldFlag
	return res
}

// Report renders a run as markdown, in the shape moderators paste into a
// channel or commit next to a prompt change.
func Report(s Summary) string {
	var b strings.Builder
	b.WriteString("# Evaluation Results\n\n")
	fmt.Fprintf(&b, "Total Cases: %d\n", s.Total)
	fmt.Fprintf(&b, "Passed: %d\n", s.Passed)
	fmt.Fprintf(&b, "Failed: %d\n", s.Failed())
	if s.Total > 0 {
		fmt.Fprintf(&b, "Pass Rate: %.2f%%\n", s.PassRate()*100)
	}
	b.WriteString("\n## Detailed Results\n\n")
	for _, res := range s.Results {
		fmt.Fprintf(&b, "### Message ID: %s\n", res.MessageID)
		if res.Err != nil {
			fmt.Fprintf(&b, "- Error: %v\n", res.Err)
		} else {
			fmt.Fprintf(&b, "- LLM Response: ```%s```\n", res.RawResponse)
		}
		fmt.Fprintf(&b, "- Expected Flag: %t\n", res.Expected)
		fmt.Fprintf(&b, "- Flagged: %t\n", res.Flagged)
		fmt.Fprintf(&b, "- Passed: %t\n\n", res.Passed)
	}
	return b.String()
}
