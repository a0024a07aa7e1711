package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ActionFactory builds an action from the parameters given in a
// pattern file.
type ActionFactory func(params map[string]any) (ActionFunc, error)

// ActionRegistry maps action names to factories. Pattern files refer to
// actions by name; the registry is how they resolve to callables.
type ActionRegistry map[string]ActionFactory

// Resolve builds the named action or fails when unknown.
func (r ActionRegistry) Resolve(name string, params map[string]any) (ActionFunc, error) {
	factory, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("unknown action: %s", name)
	}
	action, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("action %s: %w", name, err)
	}
	return action, nil
}

// PatternSpec is the YAML form of a pattern.
type PatternSpec struct {
	Name       string        `yaml:"name"`
	Conditions []Condition   `yaml:"conditions"`
	Window     time.Duration `yaml:"window"`
	Threshold  int           `yaml:"threshold"`
	Cooldown   time.Duration `yaml:"cooldown"`
	Action     ActionSpec    `yaml:"action"`
}

// ActionSpec names a registered action and its parameters.
type ActionSpec struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:"params,omitempty"`
}

// Validate checks the spec shape without resolving the action.
func (s *PatternSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("pattern name is required")
	}
	if len(s.Conditions) == 0 {
		return fmt.Errorf("pattern %q: at least one condition is required", s.Name)
	}
	for i := range s.Conditions {
		if err := s.Conditions[i].Validate(); err != nil {
			return fmt.Errorf("pattern %q: condition %d: %w", s.Name, i, err)
		}
	}
	if s.Threshold < 1 {
		return fmt.Errorf("pattern %q: threshold must be >= 1, got %d", s.Name, s.Threshold)
	}
	if s.Window < 0 {
		return fmt.Errorf("pattern %q: window must be >= 0", s.Name)
	}
	if s.Cooldown < 0 {
		return fmt.Errorf("pattern %q: cooldown must be >= 0", s.Name)
	}
	if s.Action.Name == "" {
		return fmt.Errorf("pattern %q: action name is required", s.Name)
	}
	return nil
}

// Bind compiles the spec into a Pattern, resolving the action through
// the registry.
func (s *PatternSpec) Bind(registry ActionRegistry) (*Pattern, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	predicates := make([]Predicate, 0, len(s.Conditions))
	for i := range s.Conditions {
		pred, err := s.Conditions[i].Predicate()
		if err != nil {
			return nil, fmt.Errorf("pattern %q: condition %d: %w", s.Name, i, err)
		}
		predicates = append(predicates, pred)
	}

	action, err := registry.Resolve(s.Action.Name, s.Action.Params)
	if err != nil {
		return nil, fmt.Errorf("pattern %q: %w", s.Name, err)
	}

	return &Pattern{
		Name:       s.Name,
		Predicates: predicates,
		Window:     s.Window,
		Threshold:  s.Threshold,
		Cooldown:   s.Cooldown,
		Action:     action,
	}, nil
}

// ParsePatterns parses one or more pattern specs from YAML bytes.
func ParsePatterns(data []byte) ([]*PatternSpec, error) {
	var specs []*PatternSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		// Try single pattern format.
		var spec PatternSpec
		if singleErr := yaml.Unmarshal(data, &spec); singleErr != nil {
			return nil, fmt.Errorf("failed to parse patterns: %w", err)
		}
		specs = []*PatternSpec{&spec}
	}

	for i, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("pattern %d: %w", i, err)
		}
	}
	return specs, nil
}

// LoadPatternDir parses every .yaml/.yml file in dir and registers the
// bound patterns on the engine. A missing directory is not an error.
func LoadPatternDir(e *Engine, dir string, registry ActionRegistry) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return loaded, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		specs, err := ParsePatterns(data)
		if err != nil {
			return loaded, fmt.Errorf("parse %s: %w", entry.Name(), err)
		}
		for _, spec := range specs {
			pattern, err := spec.Bind(registry)
			if err != nil {
				return loaded, fmt.Errorf("bind %s: %w", entry.Name(), err)
			}
			if err := e.RegisterPattern(pattern); err != nil {
				return loaded, fmt.Errorf("register %s: %w", entry.Name(), err)
			}
			loaded++
		}
	}
	return loaded, nil
}
