package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario is a sequence of steps run against a fresh model, followed by
// expectations on the final state.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Schema is a CUE schema directory. LoadScenario resolves it relative
	// to the scenario file.
	Schema string `yaml:"schema,omitempty"`

	// Source is an inline CUE schema, used instead of Schema.
	Source string `yaml:"source,omitempty"`

	Steps  []Step        `yaml:"steps"`
	Expect []Expectation `yaml:"expect,omitempty"`
}

// Step is one operation of a scenario.
type Step struct {
	// Op is one of the Op constants.
	Op string `yaml:"op"`

	// Member names a collection or relation as "shard.member".
	Member string `yaml:"member,omitempty"`

	// Ref names the entity of a collection step.
	Ref string `yaml:"ref,omitempty"`

	// Props are the fields of add and the field updates of modify.
	Props map[string]any `yaml:"props,omitempty"`

	// Parent and Child are the refs of a relation step.
	Parent string `yaml:"parent,omitempty"`
	Child  string `yaml:"child,omitempty"`

	// Steps are the nested steps of a commit.
	Steps []Step `yaml:"steps,omitempty"`

	// Error is the error code the step must fail with.
	Error string `yaml:"error,omitempty"`
}

// Expectation checks the final model or history.
type Expectation struct {
	// Type is one of the Expect constants.
	Type string `yaml:"type"`

	Member string         `yaml:"member,omitempty"`
	Ref    string         `yaml:"ref,omitempty"`
	Props  map[string]any `yaml:"props,omitempty"`
	Parent string         `yaml:"parent,omitempty"`
	Child  string         `yaml:"child,omitempty"`
	Count  int            `yaml:"count,omitempty"`

	// Undo and Redo are the expected stack depths of a history expectation.
	Undo int `yaml:"undo,omitempty"`
	Redo int `yaml:"redo,omitempty"`
}

// Step ops.
const (
	OpAdd    = "add"
	OpModify = "modify"
	OpRemove = "remove"
	OpLink   = "link"
	OpUnlink = "unlink"
	OpUndo   = "undo"
	OpRedo   = "redo"
	OpCommit = "commit"
)

// Expectation types.
const (
	ExpectCount    = "count"
	ExpectEntity   = "entity"
	ExpectAbsent   = "absent"
	ExpectLinked   = "linked"
	ExpectUnlinked = "unlinked"
	ExpectHistory  = "history"
)

// LoadScenario reads a scenario file and resolves its schema directory
// relative to the file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if s.Schema != "" && !filepath.IsAbs(s.Schema) {
		s.Schema = filepath.Join(filepath.Dir(path), s.Schema)
	}
	return s, nil
}

// ParseScenario decodes and validates a scenario. A relative schema
// directory is left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// Validate checks the scenario's structure. Refs must be bound by an add
// before any other step uses them, and bound only once.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if (s.Schema == "") == (s.Source == "") {
		return fmt.Errorf("exactly one of schema and source is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	refs := map[string]bool{}
	for i, step := range s.Steps {
		if err := validateStep(fmt.Sprintf("steps[%d]", i), step, refs, true); err != nil {
			return err
		}
	}
	for i, e := range s.Expect {
		if err := validateExpectation(i, e, refs); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(path string, step Step, refs map[string]bool, top bool) error {
	needMember := func() error {
		if step.Member == "" {
			return fmt.Errorf("%s: member is required for %s", path, step.Op)
		}
		if _, _, ok := splitMember(step.Member); !ok {
			return fmt.Errorf("%s: member %q must be shard.member", path, step.Member)
		}
		return nil
	}
	needRef := func(name, field string) error {
		if name == "" {
			return fmt.Errorf("%s: %s is required for %s", path, field, step.Op)
		}
		if !refs[name] {
			return fmt.Errorf("%s: ref %q is not bound by an earlier add", path, name)
		}
		return nil
	}

	switch step.Op {
	case OpAdd:
		if err := needMember(); err != nil {
			return err
		}
		if step.Ref == "" {
			return fmt.Errorf("%s: ref is required for add", path)
		}
		if refs[step.Ref] {
			return fmt.Errorf("%s: ref %q is already bound", path, step.Ref)
		}
		refs[step.Ref] = true
	case OpModify:
		if err := needMember(); err != nil {
			return err
		}
		if len(step.Props) == 0 {
			return fmt.Errorf("%s: props are required for modify", path)
		}
		return needRef(step.Ref, "ref")
	case OpRemove:
		if err := needMember(); err != nil {
			return err
		}
		return needRef(step.Ref, "ref")
	case OpLink, OpUnlink:
		if err := needMember(); err != nil {
			return err
		}
		if err := needRef(step.Parent, "parent"); err != nil {
			return err
		}
		return needRef(step.Child, "child")
	case OpUndo, OpRedo:
		if !top {
			return fmt.Errorf("%s: %s cannot be nested in a commit", path, step.Op)
		}
	case OpCommit:
		if !top {
			return fmt.Errorf("%s: commits cannot be nested", path)
		}
		if len(step.Steps) == 0 {
			return fmt.Errorf("%s: commit needs steps", path)
		}
		for i, nested := range step.Steps {
			if nested.Error != "" {
				return fmt.Errorf("%s.steps[%d]: expect the error on the commit", path, i)
			}
			if err := validateStep(fmt.Sprintf("%s.steps[%d]", path, i), nested, refs, false); err != nil {
				return err
			}
		}
	case "":
		return fmt.Errorf("%s: op is required", path)
	default:
		return fmt.Errorf("%s: unknown op %q", path, step.Op)
	}
	return nil
}

func validateExpectation(index int, e Expectation, refs map[string]bool) error {
	path := fmt.Sprintf("expect[%d]", index)
	if e.Type == "" {
		return fmt.Errorf("%s: type is required", path)
	}
	if e.Type != ExpectHistory {
		if e.Member == "" {
			return fmt.Errorf("%s: member is required for %s", path, e.Type)
		}
		if _, _, ok := splitMember(e.Member); !ok {
			return fmt.Errorf("%s: member %q must be shard.member", path, e.Member)
		}
	}
	ref := func(name, field string) error {
		if name == "" {
			return fmt.Errorf("%s: %s is required for %s", path, field, e.Type)
		}
		if !refs[name] {
			return fmt.Errorf("%s: ref %q is never bound", path, name)
		}
		return nil
	}

	switch e.Type {
	case ExpectCount:
		if e.Count < 0 {
			return fmt.Errorf("%s: count must be non-negative", path)
		}
	case ExpectEntity, ExpectAbsent:
		return ref(e.Ref, "ref")
	case ExpectLinked, ExpectUnlinked:
		if err := ref(e.Parent, "parent"); err != nil {
			return err
		}
		return ref(e.Child, "child")
	case ExpectHistory:
		if e.Undo < 0 || e.Redo < 0 {
			return fmt.Errorf("%s: stack depths must be non-negative", path)
		}
	default:
		return fmt.Errorf("%s: unknown expectation type %q", path, e.Type)
	}
	return nil
}

func splitMember(name string) (shard, member string, ok bool) {
	shard, member, ok = strings.Cut(name, ".")
	return shard, member, ok && shard != "" && member != ""
}
