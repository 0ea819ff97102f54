// Package assemble turns a (problem, checkpoint) pair into an execution
// spec: which test files the sandbox must stage, the executor argv, the
// effective timeout, and the merged environment. It only produces the spec;
// staging and execution belong to the sandbox collaborator.
package assemble

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gradebench/gradebench/internal/problem"
)

// Report file names inside the sandbox workdir. The executor is told to
// write both; the parser reads them back after the run.
const (
	SummaryReportFile  = "ctrf-report.json"
	DetailedReportFile = "detailed-report.json"
	ConfigFile         = "pytest.ini"
)

// testsDir is the per-problem directory holding one test file per
// checkpoint, named test_<checkpoint>.py. The parser's origin inference is
// the inverse of this naming.
const testsDir = "tests"

// standardDependencies are always handed to the executor; problem-declared
// extras extend this set.
var standardDependencies = []string{
	"pytest",
	"pytest-json-ctrf",
	"pytest-json-report",
	"pytest-timeout",
}

// StagedFile is one file the sandbox must copy into the workdir.
type StagedFile struct {
	// Source is the absolute path inside the problem definition directory.
	Source string
	// Name is the workdir-relative destination; support files from fixture
	// subdirectories keep their relative path.
	Name string
	// Checkpoint is the checkpoint the file originates from; empty for
	// shared support files (conftest.py, helpers, fixture data).
	Checkpoint string
}

// ExecSpec is everything the sandbox needs to run one checkpoint
// evaluation. It is inert data; building it has no side effects.
type ExecSpec struct {
	Problem    string
	Checkpoint string
	// Entry is the rendered submission entry command.
	Entry string
	Argv  []string
	// TestFiles are staged in order; earlier checkpoints first.
	TestFiles []StagedFile
	// ConfigFiles maps workdir file name to content (the marker config).
	ConfigFiles map[string]string
	Env         map[string]string
	Timeout     time.Duration

	// Workdir-relative report paths the executor is instructed to write.
	SummaryReport  string
	DetailedReport string
}

// Build assembles the execution spec for one checkpoint. With
// IncludePriorTests set, every checkpoint with order <= the target's
// contributes its test file; otherwise only the target's own file is
// staged. A missing test file for an in-range checkpoint is a
// configuration error, reported here rather than surfacing later as a
// confusing executor failure.
func Build(p *problem.Problem, c *problem.Checkpoint) (*ExecSpec, error) {
	entry := p.EntryCommand(c)
	if strings.Contains(entry, "{") {
		return nil, &problem.ConfigError{
			Code:    problem.CodeConfig,
			Message: fmt.Sprintf("problem %s: checkpoint %s: entry command %q has unresolved placeholders", p.Name, c.Name, entry),
		}
	}

	files, err := stagedFiles(p, c)
	if err != nil {
		return nil, err
	}

	timeout := p.EffectiveTimeout(c)
	spec := &ExecSpec{
		Problem:        p.Name,
		Checkpoint:     c.Name,
		Entry:          entry,
		TestFiles:      files,
		ConfigFiles:    map[string]string{ConfigFile: markerConfig(p)},
		Env:            execEnv(p, c),
		Timeout:        timeout,
		SummaryReport:  SummaryReportFile,
		DetailedReport: DetailedReportFile,
	}
	spec.Argv = buildArgv(p, c, files, entry, timeout)
	return spec, nil
}

func stagedFiles(p *problem.Problem, c *problem.Checkpoint) ([]StagedFile, error) {
	var in []*problem.Checkpoint
	if c.IncludePriorTests {
		for _, prior := range p.Checkpoints() {
			if prior.Order <= c.Order {
				in = append(in, prior)
			}
		}
	} else {
		in = []*problem.Checkpoint{c}
	}

	files := make([]StagedFile, 0, len(in))
	for _, cp := range in {
		name := TestFileName(cp.Name)
		src := filepath.Join(p.Dir, testsDir, name)
		if _, err := os.Stat(src); err != nil {
			return nil, &problem.ConfigError{
				Code:    problem.CodeMissingTestFile,
				Message: fmt.Sprintf("problem %s: checkpoint %s: missing test file %s", p.Name, cp.Name, src),
			}
		}
		files = append(files, StagedFile{Source: src, Name: name, Checkpoint: cp.Name})
	}

	support, err := supportFiles(filepath.Join(p.Dir, testsDir))
	if err != nil {
		return nil, err
	}
	return append(files, support...), nil
}

// supportFiles collects the shared, non-checkpoint contents of the tests
// dir: conftest.py, helper modules, and fixture subdirectories. Checkpoint
// test files are excluded here (the caller stages the in-range ones) so an
// out-of-range checkpoint's tests never leak into the run.
func supportFiles(dir string) ([]StagedFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &problem.ConfigError{
			Code:    problem.CodeConfig,
			Message: fmt.Sprintf("read tests dir %s: %v", dir, err),
		}
	}
	var files []StagedFile
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() {
			if isCheckpointTestFile(name) {
				continue
			}
			files = append(files, StagedFile{Source: filepath.Join(dir, name), Name: name})
			continue
		}
		if name == "__pycache__" {
			continue
		}
		err := filepath.WalkDir(filepath.Join(dir, name), func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == "__pycache__" {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			files = append(files, StagedFile{Source: path, Name: rel})
			return nil
		})
		if err != nil {
			return nil, &problem.ConfigError{
				Code:    problem.CodeConfig,
				Message: fmt.Sprintf("walk tests dir %s: %v", dir, err),
			}
		}
	}
	return files, nil
}

// isCheckpointTestFile matches the assembler's own naming scheme; anything
// else in the tests dir is a shared support file.
func isCheckpointTestFile(name string) bool {
	return strings.HasPrefix(name, "test_") && strings.HasSuffix(name, ".py")
}

// TestFileName is the staged name for a checkpoint's test file.
func TestFileName(checkpoint string) string {
	return "test_" + checkpoint + ".py"
}

// buildArgv renders the executor invocation. Dependencies ride on uvx so
// the sandbox needs no pre-provisioned environment.
func buildArgv(p *problem.Problem, c *problem.Checkpoint, files []StagedFile, entry string, timeout time.Duration) []string {
	argv := []string{"uvx"}
	for _, dep := range Dependencies(p) {
		argv = append(argv, "--with="+dep)
	}
	argv = append(argv, "pytest", "-q")
	// Support files are staged but never named on the command line; pytest
	// discovers conftest.py and fixtures itself.
	for _, f := range files {
		if f.Checkpoint != "" {
			argv = append(argv, f.Name)
		}
	}
	argv = append(argv,
		fmt.Sprintf("--timeout=%d", int(timeout.Seconds())),
		"--entrypoint="+entry,
		"--checkpoint="+c.Name,
		"--ctrf="+SummaryReportFile,
		"--json-report",
		"--json-report-file="+DetailedReportFile,
	)
	return argv
}

// Dependencies returns the standard executor dependency set extended with
// problem-declared extras, deduplicated, standard set first.
func Dependencies(p *problem.Problem) []string {
	seen := make(map[string]bool, len(standardDependencies)+len(p.TestDependencies))
	out := make([]string, 0, len(standardDependencies)+len(p.TestDependencies))
	for _, dep := range standardDependencies {
		seen[dep] = true
		out = append(out, dep)
	}
	for _, dep := range p.TestDependencies {
		dep = strings.TrimSpace(dep)
		if dep == "" || seen[dep] {
			continue
		}
		seen[dep] = true
		out = append(out, dep)
	}
	return out
}

// markerConfig renders the executor's marker registration file. Without it
// the executor warns on every declared marker and strict runs fail.
func markerConfig(p *problem.Problem) string {
	var sb strings.Builder
	sb.WriteString("[pytest]\nmarkers =\n")
	sb.WriteString("    error: test expected to exercise an error path\n")
	sb.WriteString("    regression: backward-compatibility test for an earlier checkpoint\n")
	sb.WriteString("    functionality: extended-functionality test\n")

	names := make([]string, 0, len(p.Markers))
	for name := range p.Markers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		desc := p.Markers[name].Description
		if desc == "" {
			desc = fmt.Sprintf("custom marker (%s)", p.Markers[name].Category)
		}
		fmt.Fprintf(&sb, "    %s: %s\n", name, desc)
	}
	return sb.String()
}

// execEnv merges problem and checkpoint variables and adds the run identity
// variables staged code may consult.
func execEnv(p *problem.Problem, c *problem.Checkpoint) map[string]string {
	env := p.MergedEnv(c)
	env["GRADEBENCH_PROBLEM"] = p.Name
	env["GRADEBENCH_CHECKPOINT"] = c.Name
	env["GRADEBENCH_CHECKPOINT_ORDER"] = fmt.Sprintf("%d", c.Order)
	return env
}
