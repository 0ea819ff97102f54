// Package problem holds the fully-resolved benchmark descriptors the
// evaluation engine consumes. A Problem and its Checkpoints are immutable
// after load; one load is scoped to one evaluation invocation.
package problem

import (
	"fmt"
	"strings"
	"time"

	"github.com/gradebench/gradebench/internal/report"
)

// DefaultTimeout bounds the executor call when neither the checkpoint nor
// the problem sets one. An unbounded external process would violate the
// batch resource model.
const DefaultTimeout = 10 * time.Minute

type MarkerDef struct {
	Description string
	Category    report.Category
}

type Checkpoint struct {
	Name    string
	Version int
	// Order is 1-based declaration order within the problem.
	Order int
	// Entry is the checkpoint's entry artifact; empty falls back to the
	// problem's EntryFile.
	Entry   string
	Timeout time.Duration
	Env     map[string]string
	// IncludePriorTests stages every earlier checkpoint's test file as
	// regression input. Defaults to true.
	IncludePriorTests bool
	// State is an informational label (e.g. "active", "retired"); the
	// engine round-trips it into results and never branches on it.
	State string
}

type Problem struct {
	Name    string
	Version int
	// Dir is the problem definition directory (contains problem.yaml and tests/).
	Dir string
	// CommandTemplate renders the submission entry command; the literal
	// "{entry}" is replaced with the checkpoint's entry artifact.
	CommandTemplate string
	EntryFile       string
	DefaultTimeout  time.Duration
	Env             map[string]string
	// Markers maps problem-declared custom marker names to categories.
	Markers map[string]MarkerDef
	// TestDependencies extend the standard executor dependency set.
	TestDependencies []string

	checkpoints []*Checkpoint
	byName      map[string]*Checkpoint
}

// Checkpoints returns the checkpoints in declaration order.
func (p *Problem) Checkpoints() []*Checkpoint { return p.checkpoints }

func (p *Problem) Checkpoint(name string) (*Checkpoint, bool) {
	c, ok := p.byName[name]
	return c, ok
}

// EntryCommand renders the entry command for one checkpoint.
func (p *Problem) EntryCommand(c *Checkpoint) string {
	entry := c.Entry
	if entry == "" {
		entry = p.EntryFile
	}
	return strings.ReplaceAll(p.CommandTemplate, "{entry}", entry)
}

// EffectiveTimeout resolves checkpoint override, then problem default, then
// the package default.
func (p *Problem) EffectiveTimeout(c *Checkpoint) time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	if p.DefaultTimeout > 0 {
		return p.DefaultTimeout
	}
	return DefaultTimeout
}

// MarkerCategories returns the custom marker -> category lookup threaded
// into categorization. The returned map is a copy; callers cannot mutate
// the loaded problem through it.
func (p *Problem) MarkerCategories() map[string]report.Category {
	out := make(map[string]report.Category, len(p.Markers))
	for name, def := range p.Markers {
		out[name] = def.Category
	}
	return out
}

// MergedEnv layers checkpoint variables over problem variables.
func (p *Problem) MergedEnv(c *Checkpoint) map[string]string {
	out := make(map[string]string, len(p.Env)+len(c.Env))
	for k, v := range p.Env {
		out[k] = v
	}
	for k, v := range c.Env {
		out[k] = v
	}
	return out
}

func (p *Problem) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &ConfigError{Code: CodeConfig, Message: "problem name is required"}
	}
	if p.Version < 1 {
		return &ConfigError{Code: CodeConfig, Message: fmt.Sprintf("problem %s: version must be >= 1", p.Name)}
	}
	if !strings.Contains(p.CommandTemplate, "{entry}") {
		return &ConfigError{Code: CodeConfig, Message: fmt.Sprintf("problem %s: command_template must contain {entry}", p.Name)}
	}
	if len(p.checkpoints) == 0 {
		return &ConfigError{Code: CodeConfig, Message: fmt.Sprintf("problem %s: at least one checkpoint is required", p.Name)}
	}
	for _, c := range p.checkpoints {
		if c.Version < 1 {
			return &ConfigError{Code: CodeConfig, Message: fmt.Sprintf("problem %s: checkpoint %s: version must be >= 1", p.Name, c.Name)}
		}
		if c.Entry == "" && p.EntryFile == "" {
			return &ConfigError{Code: CodeConfig, Message: fmt.Sprintf("problem %s: checkpoint %s: no entry artifact and no problem entry_file", p.Name, c.Name)}
		}
	}
	for name, def := range p.Markers {
		if !def.Category.Valid() {
			return &ConfigError{Code: CodeConfig, Message: fmt.Sprintf("problem %s: marker %s: unknown category %q", p.Name, name, def.Category)}
		}
	}
	return nil
}
