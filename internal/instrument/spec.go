package instrument

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zjy-dev/pathcov/internal/paths"
)

// Op names one structural event of a method body.
type Op string

const (
	OpEntry  Op = "entry"
	OpInstr  Op = "instr"
	OpCond   Op = "cond"
	OpGoto   Op = "goto"
	OpLabel  Op = "label"
	OpSwitch Op = "switch"
	OpExit   Op = "exit"
)

// Event is one structural event as emitted by a bytecode or AST scanner.
type Event struct {
	Op     Op     `yaml:"op"`
	Line   int    `yaml:"line"`
	Target string `yaml:"target,omitempty"`
	// Default and Cases are the labels of a switch.
	Default string   `yaml:"default,omitempty"`
	Cases   []string `yaml:"cases,omitempty"`
	// Kind qualifies an instr: "const_true", "const_false" or empty.
	Kind string `yaml:"kind,omitempty"`
}

func (e Event) opKind() paths.OpKind {
	switch e.Kind {
	case "const_true":
		return paths.OpConstTrue
	case "const_false":
		return paths.OpConstFalse
	default:
		return paths.OpOther
	}
}

// labels returns the distinct switch targets, default last unless it is
// also a case.
func (e Event) labels() []string {
	out := make([]string, 0, len(e.Cases)+1)
	seen := make(map[string]bool, len(e.Cases)+1)
	for _, c := range e.Cases {
		if c != e.Default && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return append(out, e.Default)
}

// MethodSpec is the event stream of one method.
type MethodSpec struct {
	Name     string  `yaml:"name"`
	LastLine int     `yaml:"last_line"`
	Events   []Event `yaml:"events"`
}

// FileSpec describes one source file to instrument.
type FileSpec struct {
	Path         string       `yaml:"path"`
	Kind         string       `yaml:"kind,omitempty"`
	LastModified int64        `yaml:"last_modified"`
	Methods      []MethodSpec `yaml:"methods"`
}

// ProjectSpec lists the files of a project.
type ProjectSpec struct {
	Files []FileSpec `yaml:"files"`
}

// Validate checks the fields every event needs.
func (s *ProjectSpec) Validate() error {
	seen := make(map[string]bool, len(s.Files))
	for i, f := range s.Files {
		if f.Path == "" {
			return fmt.Errorf("file %d: path is required", i)
		}
		if seen[f.Path] {
			return fmt.Errorf("file %s listed twice", f.Path)
		}
		seen[f.Path] = true
		for _, m := range f.Methods {
			if err := m.validate(); err != nil {
				return fmt.Errorf("%s: %w", f.Path, err)
			}
		}
	}
	return nil
}

func (m MethodSpec) validate() error {
	if len(m.Events) == 0 || m.Events[0].Op != OpEntry {
		return fmt.Errorf("method %s: first event must be %q", m.Name, OpEntry)
	}
	for i, e := range m.Events {
		switch e.Op {
		case OpEntry, OpInstr, OpExit:
		case OpCond, OpGoto, OpLabel:
			if e.Target == "" {
				return fmt.Errorf("method %s event %d: %s needs a target", m.Name, i, e.Op)
			}
		case OpSwitch:
			if e.Default == "" {
				return fmt.Errorf("method %s event %d: switch needs a default", m.Name, i)
			}
		default:
			return fmt.Errorf("method %s event %d: unknown op %q", m.Name, i, e.Op)
		}
	}
	return nil
}

// LoadSpec reads a project spec from a YAML file.
func LoadSpec(path string) (*ProjectSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event spec: %w", err)
	}
	return ParseSpec(raw)
}

// ParseSpec decodes and validates a YAML project spec.
func ParseSpec(raw []byte) (*ProjectSpec, error) {
	var s ProjectSpec
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to parse event spec: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event spec: %w", err)
	}
	return &s, nil
}
