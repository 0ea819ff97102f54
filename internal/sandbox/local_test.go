package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gradebench/gradebench/internal/assemble"
)

func TestBoundedCapture(t *testing.T) {
	c := &boundedCapture{max: 8}
	if _, err := c.Write([]byte("hello ")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := c.Write([]byte("world, more than fits")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, truncated := c.snapshot()
	if got != "hello wo" || !truncated {
		t.Fatalf("snapshot = %q, truncated=%v", got, truncated)
	}

	// Writes past the cap still report full length so the producer never
	// sees a short write.
	n, err := c.Write([]byte("extra"))
	if err != nil || n != 5 {
		t.Fatalf("post-cap write: n=%d err=%v", n, err)
	}
}

func TestStage(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "test_basics.py")
	if err := os.WriteFile(src, []byte("def test_ok():\n    pass\n"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	spec := &assemble.ExecSpec{
		TestFiles:   []assemble.StagedFile{{Source: src, Name: "test_basics.py", Checkpoint: "basics"}},
		ConfigFiles: map[string]string{"pytest.ini": "[pytest]\n"},
	}
	workdir := t.TempDir()
	if err := stage(workdir, spec); err != nil {
		t.Fatalf("stage: %v", err)
	}
	for _, name := range []string{"test_basics.py", "pytest.ini"} {
		if _, err := os.Stat(filepath.Join(workdir, name)); err != nil {
			t.Fatalf("missing staged file %s: %v", name, err)
		}
	}
}

func TestStage_NestedSupportFile(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "data.json")
	if err := os.WriteFile(src, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	spec := &assemble.ExecSpec{
		TestFiles: []assemble.StagedFile{{Source: src, Name: filepath.Join("fixtures", "data.json")}},
	}
	workdir := t.TempDir()
	if err := stage(workdir, spec); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if _, err := os.Stat(filepath.Join(workdir, "fixtures", "data.json")); err != nil {
		t.Fatalf("nested staged file missing: %v", err)
	}
}

func TestStage_MissingSource(t *testing.T) {
	spec := &assemble.ExecSpec{
		TestFiles: []assemble.StagedFile{{Source: "/nonexistent/test_x.py", Name: "test_x.py"}},
	}
	if err := stage(t.TempDir(), spec); err == nil {
		t.Fatalf("expected staging error")
	}
}

func TestMergedEnviron(t *testing.T) {
	env := mergedEnviron(map[string]string{"B_KEY": "2", "A_KEY": "1"})
	var tail []string
	for _, kv := range env {
		if strings.HasPrefix(kv, "A_KEY=") || strings.HasPrefix(kv, "B_KEY=") {
			tail = append(tail, kv)
		}
	}
	if len(tail) != 2 || tail[0] != "A_KEY=1" || tail[1] != "B_KEY=2" {
		t.Fatalf("extra env not sorted/appended: %v", tail)
	}
}

func TestExecResult_Release(t *testing.T) {
	var r *ExecResult
	if err := r.Release(); err != nil {
		t.Fatalf("nil release: %v", err)
	}

	called := 0
	res := &ExecResult{release: func() error { called++; return nil }}
	if err := res.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := res.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if called != 1 {
		t.Fatalf("release called %d times", called)
	}
}
