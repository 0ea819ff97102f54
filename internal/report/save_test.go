package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleResult() *CorrectnessResultV1 {
	r := &CorrectnessResultV1{
		SchemaVersion:     ResultSchemaV1,
		Problem:           "url-shortener",
		ProblemVersion:    2,
		Checkpoint:        "persistence",
		CheckpointVersion: 1,
		CreatedAt:         "2026-08-23T10:00:00Z",
		ExitCode:          1,
		Policy:            string(PolicyCoreCases),
	}
	r.AddOutcome(TestOutcome{ID: "test_persistence.py::test_save", OriginCheckpoint: "persistence", OriginOrder: 2, Category: CategoryCore, Status: StatusPassed, DurationMs: 12.5})
	r.AddOutcome(TestOutcome{ID: "test_basics.py::test_create", OriginCheckpoint: "basics", OriginOrder: 1, Category: CategoryRegression, Status: StatusFailed, Markers: []string{"regression"}, FailureMessage: "boom"})
	r.Passed = PolicyCoreCases.Evaluate(r.PassCounts, r.TotalCounts, false, PolicyOptions{})
	return r
}

func TestSaveLoad_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	r := sampleResult()
	if err := Save(dir, r, "collected 2 items\n", "warning: slow\n"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !Exists(dir) {
		t.Fatalf("Exists should report a persisted result")
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Problem != r.Problem || got.Checkpoint != r.Checkpoint || got.ProblemVersion != r.ProblemVersion {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if len(got.Tests) != 2 || got.PassCounts[CategoryCore] != 1 || got.TotalCounts[CategoryRegression] != 1 {
		t.Fatalf("unexpected counts: %+v", got)
	}
	if !got.Passed {
		t.Fatalf("core-cases verdict should survive the roundtrip")
	}

	for _, f := range []string{"evaluation/stdout.log", "evaluation/stderr.log"} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Fatalf("missing stream file %s: %v", f, err)
		}
	}
}

func TestSave_RefusesInconsistentResult(t *testing.T) {
	dir := t.TempDir()
	r := sampleResult()
	r.PassCounts[CategoryCore] = 99
	if err := Save(dir, r, "", ""); err == nil {
		t.Fatalf("expected validation failure")
	}
	if Exists(dir) {
		t.Fatalf("inconsistent result must not be persisted")
	}
}

func TestWriteTestsCSV(t *testing.T) {
	dir := t.TempDir()
	if err := Save(dir, sampleResult(), "", ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, TestsFile))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "problem,checkpoint,test_id,") {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if !strings.Contains(lines[2], "regression") || !strings.Contains(lines[2], "failed") {
		t.Fatalf("unexpected row: %s", lines[2])
	}
}

func TestAppendSummary(t *testing.T) {
	dir := t.TempDir()
	r := sampleResult()
	rec := Summarize(r, "20260823-100000Z-deadbeef", false, r.CreatedAt)
	if err := AppendSummary(dir, rec); err != nil {
		t.Fatalf("AppendSummary: %v", err)
	}
	rec2 := Summarize(r, "20260823-110000Z-cafef00d", true, "2026-08-23T11:00:00Z")
	if err := AppendSummary(dir, rec2); err != nil {
		t.Fatalf("AppendSummary: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 summary lines, got %d", len(lines))
	}
	var got SummaryRecordV1
	if err := json.Unmarshal([]byte(lines[1]), &got); err != nil {
		t.Fatalf("unmarshal summary line: %v", err)
	}
	if !got.Skipped || got.Problem != r.Problem {
		t.Fatalf("unexpected summary record: %+v", got)
	}
	if got.BatchID != "20260823-110000Z-cafef00d" {
		t.Fatalf("batch identity not stamped: %+v", got)
	}
}
