package ctrf

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const summaryFixture = `{
  "results": {
    "tool": {"name": "pytest"},
    "summary": {"tests": 3, "passed": 1, "failed": 1, "skipped": 1},
    "tests": [
      {"name": "test_basics.py::test_create", "status": "passed", "duration": 10.5, "filePath": "test_basics.py", "tags": ["regression"]},
      {"name": "test_persistence.py::test_save", "status": "failed", "duration": 3.0, "filePath": "test_persistence.py", "tags": []},
      {"name": "test_persistence.py::test_expiry", "status": "skipped", "duration": 0, "filePath": "test_persistence.py", "tags": ["functionality"]}
    ]
  }
}`

const detailedFixture = `{
  "exitcode": 1,
  "tests": [
    {
      "nodeid": "test_basics.py::test_create[a]",
      "outcome": "passed",
      "keywords": ["test_create", "a", "regression", "test_basics.py"],
      "setup": {"duration": 0.001, "outcome": "passed"},
      "call": {"duration": 0.010, "outcome": "passed"},
      "teardown": {"duration": 0.001, "outcome": "passed"}
    },
    {
      "nodeid": "test_basics.py::test_create[b]",
      "outcome": "xpassed",
      "keywords": ["test_create", "b", "regression"],
      "call": {"duration": 0.005, "outcome": "passed"}
    },
    {
      "nodeid": "test_persistence.py::test_save",
      "outcome": "failed",
      "keywords": ["test_save"],
      "setup": {"duration": 0.001, "outcome": "passed"},
      "call": {"duration": 0.002, "outcome": "failed", "longreprtext": "AssertionError: not saved"}
    },
    {
      "nodeid": "test_persistence.py::test_expiry",
      "outcome": "xfailed",
      "keywords": ["test_expiry", "functionality"],
      "call": {"duration": 0.001, "outcome": "skipped"}
    },
    {
      "nodeid": "test_persistence.py::test_crash",
      "outcome": "error",
      "keywords": ["test_crash"],
      "setup": {"duration": 0.001, "outcome": "error", "crash": {"path": "test_persistence.py", "lineno": 7, "message": "fixture blew up"}}
    }
  ]
}`

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func known() map[string]bool {
	return map[string]bool{"error": true, "regression": true, "functionality": true}
}

func TestParseFiles_PrefersDetailed(t *testing.T) {
	summary := writeFixture(t, "ctrf.json", summaryFixture)
	detailed := writeFixture(t, "detailed.json", detailedFixture)

	rep, err := ParseFiles(summary, detailed, known())
	if err != nil {
		t.Fatalf("ParseFiles: %v", err)
	}
	if rep.Source != "detailed" {
		t.Fatalf("source = %q, want detailed", rep.Source)
	}
	if len(rep.Tests) != 5 {
		t.Fatalf("detailed report must expand parametrized cases, got %d tests", len(rep.Tests))
	}

	byID := map[string]ParsedTest{}
	for _, pt := range rep.Tests {
		byID[pt.ID] = pt
	}

	a := byID["test_basics.py::test_create[a]"]
	if a.Status != "passed" || a.OriginCheckpoint != "basics" {
		t.Fatalf("unexpected parametrized case: %+v", a)
	}
	if !reflect.DeepEqual(a.Markers, []string{"regression"}) {
		t.Fatalf("keyword noise must be filtered to declared markers: %v", a.Markers)
	}
	if a.DurationMs < 11 || a.DurationMs > 13 {
		t.Fatalf("phase durations should sum in milliseconds, got %v", a.DurationMs)
	}

	if byID["test_basics.py::test_create[b]"].Status != "passed" {
		t.Fatalf("xpassed must map to passed")
	}
	if byID["test_persistence.py::test_expiry"].Status != "skipped" {
		t.Fatalf("xfailed must map to skipped")
	}

	failed := byID["test_persistence.py::test_save"]
	if failed.Status != "failed" || failed.FailureMessage != "AssertionError: not saved" {
		t.Fatalf("unexpected failure extraction: %+v", failed)
	}

	crashed := byID["test_persistence.py::test_crash"]
	if crashed.Status != "error" || crashed.FailureMessage != "test_persistence.py:7: fixture blew up" {
		t.Fatalf("unexpected crash extraction: %+v", crashed)
	}
}

func TestParseFiles_SummaryFallback(t *testing.T) {
	summary := writeFixture(t, "ctrf.json", summaryFixture)

	rep, err := ParseFiles(summary, filepath.Join(t.TempDir(), "absent.json"), known())
	if err != nil {
		t.Fatalf("ParseFiles: %v", err)
	}
	if rep.Source != "summary" {
		t.Fatalf("source = %q, want summary", rep.Source)
	}
	if len(rep.Tests) != 3 {
		t.Fatalf("got %d tests", len(rep.Tests))
	}
	if rep.Tests[0].OriginCheckpoint != "basics" || rep.Tests[1].OriginCheckpoint != "persistence" {
		t.Fatalf("origin inference failed: %+v", rep.Tests[:2])
	}
}

func TestParseFiles_IncompleteDetailedAugmentsSummary(t *testing.T) {
	summary := writeFixture(t, "ctrf.json", summaryFixture)
	// One entry is missing its nodeid, so the detailed report is demoted to
	// failure-index duty and the summary becomes authoritative.
	detailed := writeFixture(t, "detailed.json", `{
  "tests": [
    {"nodeid": "", "outcome": "failed"},
    {"nodeid": "test_persistence.py::test_save", "outcome": "failed",
     "call": {"duration": 0.002, "outcome": "failed", "longreprtext": "AssertionError: not saved"}}
  ]
}`)

	rep, err := ParseFiles(summary, detailed, known())
	if err != nil {
		t.Fatalf("ParseFiles: %v", err)
	}
	if rep.Source != "summary" {
		t.Fatalf("incomplete detailed report must fall back to summary, got %q", rep.Source)
	}
	for _, pt := range rep.Tests {
		if pt.ID == "test_persistence.py::test_save" && pt.FailureMessage != "AssertionError: not saved" {
			t.Fatalf("failure message not backfilled: %+v", pt)
		}
	}
}

func TestParseFiles_EmptyDetailedFallsBack(t *testing.T) {
	summary := writeFixture(t, "ctrf.json", summaryFixture)
	detailed := writeFixture(t, "empty.json", `{"tests": []}`)

	rep, err := ParseFiles(summary, detailed, known())
	if err != nil {
		t.Fatalf("ParseFiles: %v", err)
	}
	if rep.Source != "summary" || len(rep.Tests) != 3 {
		t.Fatalf("empty detailed report must fall back to summary: %q, %d tests", rep.Source, len(rep.Tests))
	}
}

func TestParseFiles_NoUsableReport(t *testing.T) {
	dir := t.TempDir()
	_, err := ParseFiles(filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json"), known())
	if !errors.Is(err, ErrNoUsableReport) {
		t.Fatalf("expected ErrNoUsableReport, got %v", err)
	}

	bad := writeFixture(t, "bad.json", "{not json")
	_, err = ParseFiles(bad, "", known())
	if !errors.Is(err, ErrNoUsableReport) {
		t.Fatalf("malformed summary alone: expected ErrNoUsableReport, got %v", err)
	}
}

func TestOriginCheckpoint(t *testing.T) {
	cases := []struct {
		path string
		want string
		ok   bool
	}{
		{"test_basics.py", "basics", true},
		{"sub/test_rate_limit.py", "rate_limit", true},
		{"test_basics.py::test_create", "basics", true},
		{"conftest.py", "", false},
		{"latest_news.py", "", false},
		{"helpers/latest_news.py", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := OriginCheckpoint(tc.path)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("OriginCheckpoint(%q) = %q, %v; want %q, %v", tc.path, got, ok, tc.want, tc.ok)
		}
	}
}

func TestExitReason(t *testing.T) {
	cases := []struct {
		code  int
		want  string
		infra bool
	}{
		{ExitOK, "", false},
		{ExitTestsFailed, "", false},
		{ExitInterrupted, ReasonInterrupted, true},
		{ExitInternalError, ReasonInternalError, true},
		{ExitUsageError, ReasonUsageError, true},
		{ExitNoTestsCollected, ReasonNoTestsCollected, true},
		{137, ReasonBadExitCode, true},
		{-1, ReasonBadExitCode, true},
	}
	for _, tc := range cases {
		got, infra := ExitReason(tc.code)
		if got != tc.want || infra != tc.infra {
			t.Fatalf("ExitReason(%d) = %q, %v; want %q, %v", tc.code, got, infra, tc.want, tc.infra)
		}
		if InfraExitCode(tc.code) != tc.infra {
			t.Fatalf("InfraExitCode(%d) = %v, want %v", tc.code, !tc.infra, tc.infra)
		}
	}
}

func TestCollectedFromOutput(t *testing.T) {
	if n, ok := CollectedFromOutput("===== collected 12 items =====\n"); !ok || n != 12 {
		t.Fatalf("got %d, %v", n, ok)
	}
	if n, ok := CollectedFromOutput("collected 1 item\n"); !ok || n != 1 {
		t.Fatalf("singular form: got %d, %v", n, ok)
	}
	if _, ok := CollectedFromOutput("no tests ran"); ok {
		t.Fatalf("expected no match")
	}
}
