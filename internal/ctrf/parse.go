// Package ctrf parses the two report formats emitted by the external test
// executor: the CTRF summary report and the detailed per-phase report. The
// detailed report is preferred when it parses and contains tests, because it
// expands parametrized cases into individual entries; the summary report is
// the fallback, augmented with failure text from the detailed report when
// both are readable.
package ctrf

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// ErrNoUsableReport is returned when neither report file yields a parseable
// document. Callers score this as an infrastructure failure.
var ErrNoUsableReport = errors.New("no usable test report")

// ParsedTest is one executed test in normalized form, independent of which
// report format it came from.
type ParsedTest struct {
	ID         string
	FilePath   string
	Status     string
	DurationMs float64
	Markers    []string
	// FailureMessage is empty for passed and skipped tests.
	FailureMessage string
	// OriginCheckpoint is inferred from the test file name; empty when the
	// file name does not follow the staged-test naming convention.
	OriginCheckpoint string
}

// Report is the normalized parse output.
type Report struct {
	Tests []ParsedTest
	// Source records which format produced Tests: "detailed" or "summary".
	Source string
}

// ParseFiles reads the detailed report at detailedPath and the summary
// report at summaryPath, preferring the detailed one. known filters the
// detailed report's keyword list down to declared markers; the summary
// report's tags are taken as-is. Either path may be empty or missing.
func ParseFiles(summaryPath, detailedPath string, known map[string]bool) (*Report, error) {
	var detailedRaw, summaryRaw []byte
	if detailedPath != "" {
		if b, err := os.ReadFile(detailedPath); err == nil {
			detailedRaw = b
		}
	}
	if summaryPath != "" {
		if b, err := os.ReadFile(summaryPath); err == nil {
			summaryRaw = b
		}
	}
	if detailedRaw == nil && summaryRaw == nil {
		return nil, fmt.Errorf("%w: neither %q nor %q is readable", ErrNoUsableReport, summaryPath, detailedPath)
	}

	detailed, incomplete, detailedErr := parseDetailed(detailedRaw, known)
	if detailedErr == nil && !incomplete && len(detailed) > 0 {
		return &Report{Tests: detailed, Source: "detailed"}, nil
	}

	summary, summaryErr := parseSummary(summaryRaw)
	if summaryErr == nil {
		// The summary format truncates failure text; backfill it from
		// whatever entries the detailed report did yield.
		augmentFailures(summary, detailed)
		return &Report{Tests: summary, Source: "summary"}, nil
	}
	if detailedErr == nil {
		// Valid JSON with zero tests is not a parse failure; the caller
		// applies the zero-tests rule to the empty report.
		return &Report{Tests: detailed, Source: "detailed"}, nil
	}
	return nil, fmt.Errorf("%w: detailed: %v; summary: %v", ErrNoUsableReport, detailedErr, summaryErr)
}

// Anchored to a path-segment start so helper modules whose names merely
// contain "test_" (latest_news.py) never infer a bogus origin.
var reOrigin = regexp.MustCompile(`(?:^|[/\\])test_([^/\\]+)\.py`)

// OriginCheckpoint extracts the checkpoint a test file was staged from. The
// assembler names every staged file test_<checkpoint>.py, so the inverse
// mapping is a file name match; ok is false for paths outside that scheme.
func OriginCheckpoint(filePath string) (string, bool) {
	m := reOrigin.FindStringSubmatch(filePath)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// --- summary (CTRF) format ---

type summaryDoc struct {
	Results *struct {
		Tests []summaryTest `json:"tests"`
	} `json:"results"`
}

type summaryTest struct {
	Name     string   `json:"name"`
	Status   string   `json:"status"`
	Duration float64  `json:"duration"` // milliseconds
	FilePath string   `json:"filePath"`
	Tags     []string `json:"tags"`
	Message  string   `json:"message"`
}

func parseSummary(raw []byte) ([]ParsedTest, error) {
	if raw == nil {
		return nil, errors.New("summary report missing")
	}
	var doc summaryDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("summary report: %w", err)
	}
	if doc.Results == nil {
		return nil, errors.New("summary report: missing results object")
	}
	out := make([]ParsedTest, 0, len(doc.Results.Tests))
	for _, t := range doc.Results.Tests {
		if t.Name == "" {
			continue
		}
		pt := ParsedTest{
			ID:         t.Name,
			FilePath:   t.FilePath,
			Status:     normalizeStatus(t.Status),
			DurationMs: t.Duration,
			Markers:    t.Tags,
		}
		if pt.Status == "failed" || pt.Status == "error" {
			pt.FailureMessage = t.Message
		}
		if origin, ok := OriginCheckpoint(t.FilePath); ok {
			pt.OriginCheckpoint = origin
		} else if origin, ok := OriginCheckpoint(t.Name); ok {
			pt.OriginCheckpoint = origin
		}
		out = append(out, pt)
	}
	return out, nil
}

// --- detailed (per-phase) format ---

type detailedDoc struct {
	Tests []detailedTest `json:"tests"`
}

type detailedTest struct {
	NodeID   string         `json:"nodeid"`
	Outcome  string         `json:"outcome"`
	Keywords []string       `json:"keywords"`
	Setup    *detailedPhase `json:"setup"`
	Call     *detailedPhase `json:"call"`
	Teardown *detailedPhase `json:"teardown"`
}

type detailedPhase struct {
	Duration    float64        `json:"duration"` // seconds
	Outcome     string         `json:"outcome"`
	Longrepr    string         `json:"longrepr"`
	LongreprTxt string         `json:"longreprtext"`
	Crash       *detailedCrash `json:"crash"`
}

type detailedCrash struct {
	Path    string `json:"path"`
	Lineno  int    `json:"lineno"`
	Message string `json:"message"`
}

// parseDetailed returns the parseable entries plus an incomplete flag set
// when any entry had to be dropped; an incomplete detailed report is
// demoted to failure-index duty and the summary becomes authoritative.
func parseDetailed(raw []byte, known map[string]bool) ([]ParsedTest, bool, error) {
	if raw == nil {
		return nil, false, errors.New("detailed report missing")
	}
	var doc detailedDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false, fmt.Errorf("detailed report: %w", err)
	}
	incomplete := false
	out := make([]ParsedTest, 0, len(doc.Tests))
	for _, t := range doc.Tests {
		if t.NodeID == "" || t.Outcome == "" {
			incomplete = true
			continue
		}
		pt := ParsedTest{
			ID:         t.NodeID,
			FilePath:   nodeFilePath(t.NodeID),
			Status:     normalizeStatus(t.Outcome),
			DurationMs: phaseDurationMs(t),
			Markers:    filterMarkers(t.Keywords, known),
		}
		if pt.Status == "failed" || pt.Status == "error" {
			pt.FailureMessage = failureText(t)
		}
		if origin, ok := OriginCheckpoint(pt.FilePath); ok {
			pt.OriginCheckpoint = origin
		}
		out = append(out, pt)
	}
	return out, incomplete, nil
}

// normalizeStatus folds the executor's expected-failure outcomes into the
// four stored statuses: an xfailed test behaved as declared (skipped), an
// xpassed test passed.
func normalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "passed", "xpassed":
		return "passed"
	case "failed":
		return "failed"
	case "skipped", "xfailed":
		return "skipped"
	case "error":
		return "error"
	default:
		return "error"
	}
}

func nodeFilePath(nodeID string) string {
	if i := strings.Index(nodeID, "::"); i >= 0 {
		return nodeID[:i]
	}
	return nodeID
}

func phaseDurationMs(t detailedTest) float64 {
	var sec float64
	for _, p := range []*detailedPhase{t.Setup, t.Call, t.Teardown} {
		if p != nil {
			sec += p.Duration
		}
	}
	return sec * 1000
}

// failureText returns the first failing phase's longest available
// representation, in preference order call, setup, teardown.
func failureText(t detailedTest) string {
	for _, p := range []*detailedPhase{t.Call, t.Setup, t.Teardown} {
		if p == nil {
			continue
		}
		switch strings.ToLower(p.Outcome) {
		case "failed", "error":
		default:
			continue
		}
		if p.LongreprTxt != "" {
			return p.LongreprTxt
		}
		if p.Crash != nil && p.Crash.Message != "" {
			return fmt.Sprintf("%s:%d: %s", p.Crash.Path, p.Crash.Lineno, p.Crash.Message)
		}
		if p.Longrepr != "" {
			return p.Longrepr
		}
	}
	return ""
}

// filterMarkers keeps only declared markers, in sorted order for stable
// artifacts. The detailed format's keyword list includes every enclosing
// name component, so unfiltered keywords would poison categorization.
func filterMarkers(keywords []string, known map[string]bool) []string {
	var out []string
	for _, k := range keywords {
		if known[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// augmentFailures backfills summary failure messages from the detailed
// report keyed by test ID. Summary entries that already carry a message keep
// it.
func augmentFailures(summary, detailed []ParsedTest) {
	if len(detailed) == 0 {
		return
	}
	index := make(map[string]string, len(detailed))
	for _, d := range detailed {
		if d.FailureMessage != "" {
			index[d.ID] = d.FailureMessage
		}
	}
	for i := range summary {
		t := &summary[i]
		if t.FailureMessage != "" || (t.Status != "failed" && t.Status != "error") {
			continue
		}
		if msg, ok := index[t.ID]; ok {
			t.FailureMessage = msg
		}
	}
}
