package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gradebench/gradebench/internal/store"
)

const (
	ResultFile  = "result.json"
	TestsFile   = "tests.csv"
	SummaryFile = "summary.jsonl"
	streamsDir  = "evaluation"
)

// Save persists one checkpoint verdict: result.json (atomic), the tabular
// per-test export, and the captured executor streams as side files.
func Save(dir string, r *CorrectnessResultV1, stdout, stderr string) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("refusing to persist inconsistent result: %w", err)
	}
	if err := store.WriteJSONAtomic(filepath.Join(dir, ResultFile), r); err != nil {
		return err
	}
	if err := writeTestsCSV(filepath.Join(dir, TestsFile), r); err != nil {
		return err
	}
	if stdout != "" {
		if err := store.WriteFileAtomic(filepath.Join(dir, streamsDir, "stdout.log"), []byte(stdout)); err != nil {
			return err
		}
	}
	if stderr != "" {
		if err := store.WriteFileAtomic(filepath.Join(dir, streamsDir, "stderr.log"), []byte(stderr)); err != nil {
			return err
		}
	}
	return nil
}

// Load reads a previously persisted result, if any.
func Load(dir string) (*CorrectnessResultV1, error) {
	var r CorrectnessResultV1
	if err := store.ReadJSON(filepath.Join(dir, ResultFile), &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Exists reports whether a result has been persisted under dir.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ResultFile))
	return err == nil
}

// writeTestsCSV emits one row per test for downstream analytics.
func writeTestsCSV(path string, r *CorrectnessResultV1) error {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	header := []string{"problem", "checkpoint", "test_id", "origin_checkpoint", "category", "status", "duration_ms", "markers"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, t := range r.Tests {
		row := []string{
			r.Problem,
			r.Checkpoint,
			t.ID,
			t.OriginCheckpoint,
			string(t.Category),
			t.Status,
			fmt.Sprintf("%.3f", t.DurationMs),
			strings.Join(t.Markers, "|"),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return store.WriteFileAtomic(path, []byte(sb.String()))
}

// SummaryRecordV1 is one line of <out>/summary.jsonl: a flattened view of a
// checkpoint verdict suitable for downstream aggregation.
type SummaryRecordV1 struct {
	SchemaVersion int `json:"schemaVersion"`
	// BatchID identifies the batch run that emitted the line; the file is
	// append-only across runs, so lines from a re-run are distinguished by
	// this field.
	BatchID               string           `json:"batchId"`
	Problem               string           `json:"problem"`
	ProblemVersion        int              `json:"problemVersion"`
	Checkpoint            string           `json:"checkpoint"`
	CheckpointVersion     int              `json:"checkpointVersion"`
	Policy                string           `json:"policy"`
	Passed                bool             `json:"passed"`
	PassCounts            map[Category]int `json:"passCounts"`
	TotalCounts           map[Category]int `json:"totalCounts"`
	InfrastructureFailure bool             `json:"infrastructureFailure"`
	DurationMs            int64            `json:"durationMs"`
	// Skipped marks records re-emitted from a stored result by the batch
	// scheduler's idempotency rule.
	Skipped   bool   `json:"skipped,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// Summarize flattens a result into its summary record.
func Summarize(r *CorrectnessResultV1, batchID string, skipped bool, createdAt string) SummaryRecordV1 {
	return SummaryRecordV1{
		SchemaVersion:         ResultSchemaV1,
		BatchID:               batchID,
		Problem:               r.Problem,
		ProblemVersion:        r.ProblemVersion,
		Checkpoint:            r.Checkpoint,
		CheckpointVersion:     r.CheckpointVersion,
		Policy:                r.Policy,
		Passed:                r.Passed,
		PassCounts:            r.PassCounts,
		TotalCounts:           r.TotalCounts,
		InfrastructureFailure: r.InfrastructureFailure,
		DurationMs:            r.DurationMs,
		Skipped:               skipped,
		CreatedAt:             createdAt,
	}
}

// AppendSummary appends one summary line to <outRoot>/summary.jsonl.
func AppendSummary(outRoot string, rec SummaryRecordV1) error {
	return store.AppendJSONL(filepath.Join(outRoot, SummaryFile), rec)
}
