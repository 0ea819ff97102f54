package report

import (
	"fmt"
	"sort"
	"strings"
)

// Test statuses as reported by the external executor.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

const ResultSchemaV1 = 1

// TestOutcome is one executed test. Created fresh per evaluation run and
// never reused across runs.
type TestOutcome struct {
	ID string `json:"id"`
	// OriginCheckpoint is the checkpoint the test was defined in, which may
	// precede the checkpoint being evaluated.
	OriginCheckpoint string `json:"originCheckpoint"`
	// OriginOrder is the 1-based order of the origin checkpoint; 0 when the
	// origin could not be resolved (treated as current).
	OriginOrder int      `json:"originOrder,omitempty"`
	Category    Category `json:"category"`
	Status      string   `json:"status"`
	DurationMs  float64  `json:"durationMs"`
	FilePath    string   `json:"filePath,omitempty"`
	Markers     []string `json:"markers,omitempty"`
	// FailureMessage carries the failure text for failed/error statuses.
	FailureMessage string `json:"failureMessage,omitempty"`
}

// CorrectnessResultV1 is written to: <out>/<problem>/<checkpoint>/result.json
//
// Written once per checkpoint evaluation and never mutated afterward;
// re-evaluation produces a new document via atomic replace.
type CorrectnessResultV1 struct {
	SchemaVersion     int    `json:"schemaVersion"`
	Problem           string `json:"problem"`
	ProblemVersion    int    `json:"problemVersion"`
	Checkpoint        string `json:"checkpoint"`
	CheckpointVersion int    `json:"checkpointVersion"`
	CheckpointState   string `json:"checkpointState,omitempty"`
	CreatedAt         string `json:"createdAt"` // RFC3339 UTC
	DurationMs        int64  `json:"durationMs"`
	Entrypoint        string `json:"entrypoint,omitempty"`

	Tests []TestOutcome `json:"tests"`

	PassCounts  map[Category]int `json:"passCounts"`
	TotalCounts map[Category]int `json:"totalCounts"`

	// ExitCode is the raw exit code from the external executor; -1 when the
	// executor was never invoked (assembly failure) or was killed.
	ExitCode int `json:"exitCode"`
	// Collected is the number of tests the executor discovered, when known.
	Collected int `json:"collected,omitempty"`

	InfrastructureFailure bool     `json:"infrastructureFailure"`
	ReasonCodes           []string `json:"reasonCodes,omitempty"`

	Policy string `json:"policy"`
	Passed bool   `json:"passed"`

	// Bounded output previews; full streams are persisted as side files.
	StdoutPreview string `json:"stdoutPreview,omitempty"`
	StderrPreview string `json:"stderrPreview,omitempty"`
}

// AddOutcome appends one test and keeps the aggregate counts in step:
// totalCounts always, passCounts only for passed tests.
func (r *CorrectnessResultV1) AddOutcome(t TestOutcome) {
	r.Tests = append(r.Tests, t)
	if r.TotalCounts == nil {
		r.TotalCounts = map[Category]int{}
	}
	if r.PassCounts == nil {
		r.PassCounts = map[Category]int{}
	}
	r.TotalCounts[t.Category]++
	if t.Status == StatusPassed {
		r.PassCounts[t.Category]++
	}
}

// Validate checks the count invariants: passCounts[c] <= totalCounts[c] for
// every category and len(tests) == sum(totalCounts).
func (r *CorrectnessResultV1) Validate() error {
	total := 0
	for _, c := range Categories() {
		p, t := r.PassCounts[c], r.TotalCounts[c]
		if p > t {
			return fmt.Errorf("category %s: passCounts %d exceeds totalCounts %d", c, p, t)
		}
		total += t
	}
	if total != len(r.Tests) {
		return fmt.Errorf("totalCounts sum %d does not match %d tests", total, len(r.Tests))
	}
	return nil
}

// TotalPassed sums passCounts across categories.
func (r *CorrectnessResultV1) TotalPassed() int {
	n := 0
	for _, c := range Categories() {
		n += r.PassCounts[c]
	}
	return n
}

// NormalizeReasonCodes dedupes, trims, and sorts reason codes for stable
// artifacts.
func NormalizeReasonCodes(codes []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
