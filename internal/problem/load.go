package problem

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gradebench/gradebench/internal/report"
)

// DefinitionFile is the problem descriptor filename inside a problem dir.
const DefinitionFile = "problem.yaml"

type problemYAML struct {
	Name                  string                `yaml:"name"`
	Version               int                   `yaml:"version"`
	CommandTemplate       string                `yaml:"command_template"`
	EntryFile             string                `yaml:"entry_file"`
	DefaultTimeoutSeconds float64               `yaml:"default_timeout_seconds"`
	Env                   map[string]string     `yaml:"env"`
	TestDependencies      []string              `yaml:"test_dependencies"`
	Markers               map[string]markerYAML `yaml:"markers"`
	Checkpoints           yaml.Node             `yaml:"checkpoints"`
}

type markerYAML struct {
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
}

type checkpointYAML struct {
	Version           int               `yaml:"version"`
	Entry             string            `yaml:"entry"`
	TimeoutSeconds    float64           `yaml:"timeout_seconds"`
	Env               map[string]string `yaml:"env"`
	IncludePriorTests *bool             `yaml:"include_prior_tests"`
	State             string            `yaml:"state"`
}

// Load reads <dir>/problem.yaml into an immutable Problem. Checkpoint order
// is the YAML declaration order; the 1-based Order field is assigned from it.
func Load(dir string) (*Problem, error) {
	path := filepath.Join(dir, DefinitionFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	p.Dir = dir
	return p, nil
}

// Parse decodes a problem definition from YAML bytes.
func Parse(raw []byte) (*Problem, error) {
	var doc problemYAML
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &ConfigError{Code: CodeConfig, Message: fmt.Sprintf("invalid problem yaml: %v", err)}
	}

	p := &Problem{
		Name:             doc.Name,
		Version:          doc.Version,
		CommandTemplate:  doc.CommandTemplate,
		EntryFile:        doc.EntryFile,
		DefaultTimeout:   secondsToDuration(doc.DefaultTimeoutSeconds),
		Env:              doc.Env,
		TestDependencies: doc.TestDependencies,
		byName:           map[string]*Checkpoint{},
	}

	if len(doc.Markers) > 0 {
		p.Markers = make(map[string]MarkerDef, len(doc.Markers))
		for name, m := range doc.Markers {
			p.Markers[name] = MarkerDef{
				Description: m.Description,
				Category:    report.Category(m.Category),
			}
		}
	}

	if doc.Checkpoints.Kind != 0 {
		if doc.Checkpoints.Kind != yaml.MappingNode {
			return nil, &ConfigError{Code: CodeConfig, Message: "checkpoints must be a mapping"}
		}
		// A yaml mapping node stores key/value nodes pairwise; walking the
		// pairs preserves declaration order, which defines checkpoint order.
		for i := 0; i+1 < len(doc.Checkpoints.Content); i += 2 {
			keyNode := doc.Checkpoints.Content[i]
			valNode := doc.Checkpoints.Content[i+1]

			var cy checkpointYAML
			if err := valNode.Decode(&cy); err != nil {
				return nil, &ConfigError{Code: CodeConfig, Message: fmt.Sprintf("checkpoint %s: %v", keyNode.Value, err)}
			}
			includePrior := true
			if cy.IncludePriorTests != nil {
				includePrior = *cy.IncludePriorTests
			}
			c := &Checkpoint{
				Name:              keyNode.Value,
				Version:           cy.Version,
				Order:             len(p.checkpoints) + 1,
				Entry:             cy.Entry,
				Timeout:           secondsToDuration(cy.TimeoutSeconds),
				Env:               cy.Env,
				IncludePriorTests: includePrior,
				State:             cy.State,
			}
			if _, dup := p.byName[c.Name]; dup {
				return nil, &ConfigError{Code: CodeConfig, Message: fmt.Sprintf("duplicate checkpoint %s", c.Name)}
			}
			p.checkpoints = append(p.checkpoints, c)
			p.byName[c.Name] = c
		}
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
