package problem

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gradebench/gradebench/internal/report"
)

const definitionFixture = `
name: url-shortener
version: 3
command_template: "python {entry}"
entry_file: app.py
default_timeout_seconds: 120
env:
  DATABASE_URL: sqlite:///tmp/app.db
test_dependencies:
  - httpx
markers:
  perf:
    description: throughput checks
    category: Functionality
checkpoints:
  basics:
    version: 1
  persistence:
    version: 2
    timeout_seconds: 30
    env:
      DATABASE_URL: sqlite:///tmp/other.db
    state: active
  rate_limit:
    version: 1
    include_prior_tests: false
    entry: server.py
`

func TestParse_FullDefinition(t *testing.T) {
	p, err := Parse([]byte(definitionFixture))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.Name != "url-shortener" || p.Version != 3 {
		t.Fatalf("unexpected identity: %+v", p)
	}

	cps := p.Checkpoints()
	if len(cps) != 3 {
		t.Fatalf("expected 3 checkpoints, got %d", len(cps))
	}
	for i, want := range []string{"basics", "persistence", "rate_limit"} {
		if cps[i].Name != want || cps[i].Order != i+1 {
			t.Fatalf("declaration order not preserved: %+v", cps[i])
		}
	}

	basics, _ := p.Checkpoint("basics")
	if !basics.IncludePriorTests {
		t.Fatalf("include_prior_tests must default to true")
	}
	rateLimit, _ := p.Checkpoint("rate_limit")
	if rateLimit.IncludePriorTests {
		t.Fatalf("include_prior_tests override not applied")
	}
	if got := p.EntryCommand(rateLimit); got != "python server.py" {
		t.Fatalf("EntryCommand = %q", got)
	}
	if got := p.EntryCommand(basics); got != "python app.py" {
		t.Fatalf("entry fallback: EntryCommand = %q", got)
	}

	persistence, _ := p.Checkpoint("persistence")
	if got := p.EffectiveTimeout(persistence); got != 30*time.Second {
		t.Fatalf("checkpoint timeout override: got %v", got)
	}
	if got := p.EffectiveTimeout(basics); got != 120*time.Second {
		t.Fatalf("problem default timeout: got %v", got)
	}
	if persistence.State != "active" {
		t.Fatalf("state label not carried: %+v", persistence)
	}

	env := p.MergedEnv(persistence)
	if env["DATABASE_URL"] != "sqlite:///tmp/other.db" {
		t.Fatalf("checkpoint env must override problem env: %v", env)
	}

	markers := p.MarkerCategories()
	if markers["perf"] != report.CategoryFunctionality {
		t.Fatalf("unexpected marker map: %v", markers)
	}
}

func TestParse_DefaultTimeoutFallback(t *testing.T) {
	p, err := Parse([]byte(`
name: p
version: 1
command_template: "run {entry}"
entry_file: main.py
checkpoints:
  only:
    version: 1
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	c, _ := p.Checkpoint("only")
	if got := p.EffectiveTimeout(c); got != DefaultTimeout {
		t.Fatalf("EffectiveTimeout = %v, want %v", got, DefaultTimeout)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing name", "version: 1\ncommand_template: 'x {entry}'\ncheckpoints:\n  a:\n    version: 1\n"},
		{"bad version", "name: p\nversion: 0\ncommand_template: 'x {entry}'\ncheckpoints:\n  a:\n    version: 1\n"},
		{"template without placeholder", "name: p\nversion: 1\ncommand_template: 'x'\ncheckpoints:\n  a:\n    version: 1\n"},
		{"no checkpoints", "name: p\nversion: 1\ncommand_template: 'x {entry}'\n"},
		{"checkpoint bad version", "name: p\nversion: 1\ncommand_template: 'x {entry}'\nentry_file: m\ncheckpoints:\n  a:\n    version: 0\n"},
		{"no entry anywhere", "name: p\nversion: 1\ncommand_template: 'x {entry}'\ncheckpoints:\n  a:\n    version: 1\n"},
		{"unknown marker category", "name: p\nversion: 1\ncommand_template: 'x {entry}'\nentry_file: m\nmarkers:\n  perf:\n    category: Speed\ncheckpoints:\n  a:\n    version: 1\n"},
		{"checkpoints not a mapping", "name: p\nversion: 1\ncommand_template: 'x {entry}'\nentry_file: m\ncheckpoints:\n  - a\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.yaml)); err == nil {
				t.Fatalf("expected config error")
			} else if !IsConfigError(err, CodeConfig) {
				t.Fatalf("expected %s, got %v", CodeConfig, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefinitionFile), []byte(definitionFixture), 0o644); err != nil {
		t.Fatalf("write definition: %v", err)
	}
	p, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Dir != dir {
		t.Fatalf("Dir = %q, want %q", p.Dir, dir)
	}
}
