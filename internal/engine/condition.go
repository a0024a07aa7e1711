package engine

import (
	"fmt"
	"regexp"
	"strings"

	"hostmend/internal/schema"
)

// Condition is the declarative form of a predicate, loadable from YAML
// pattern files. Field addresses one event attribute: "type", "source",
// "severity", or "data.<key>".
type Condition struct {
	Field    string   `yaml:"field"`
	Operator string   `yaml:"operator"` // eq, ne, gt, gte, lt, lte, contains, regex, in, exists
	Value    any      `yaml:"value,omitempty"`
	Values   []string `yaml:"values,omitempty"` // for the "in" operator
}

// Validate checks the condition shape.
func (c *Condition) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("condition field is required")
	}
	if c.Operator == "" {
		return fmt.Errorf("condition operator is required")
	}

	validOps := map[string]bool{
		"eq": true, "ne": true, "gt": true, "gte": true,
		"lt": true, "lte": true, "contains": true,
		"regex": true, "in": true, "exists": true,
	}
	if !validOps[c.Operator] {
		return fmt.Errorf("invalid operator: %s", c.Operator)
	}

	if c.Operator == "in" && len(c.Values) == 0 {
		return fmt.Errorf("values required for in operator")
	}
	if c.Operator == "regex" {
		if _, err := regexp.Compile(fmt.Sprintf("%v", c.Value)); err != nil {
			return fmt.Errorf("invalid regex %v: %w", c.Value, err)
		}
	}
	return nil
}

// Predicate compiles the condition into an executable predicate.
func (c *Condition) Predicate() (Predicate, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	// Precompile regexes once at registration.
	var re *regexp.Regexp
	if c.Operator == "regex" {
		re = regexp.MustCompile(fmt.Sprintf("%v", c.Value))
	}

	cond := *c
	return PredicateFunc(func(e *schema.Event) bool {
		value, ok := eventField(e, cond.Field)

		switch cond.Operator {
		case "exists":
			return ok && value != nil && value != ""
		case "eq":
			return ok && equalValues(value, cond.Value)
		case "ne":
			return !ok || !equalValues(value, cond.Value)
		case "gt", "gte", "lt", "lte":
			ev, ok1 := toFloat64(value)
			exp, ok2 := toFloat64(cond.Value)
			if !ok1 || !ok2 {
				return false
			}
			switch cond.Operator {
			case "gt":
				return ev > exp
			case "gte":
				return ev >= exp
			case "lt":
				return ev < exp
			case "lte":
				return ev <= exp
			}
		case "contains":
			return ok && strings.Contains(
				strings.ToLower(fmt.Sprintf("%v", value)),
				strings.ToLower(fmt.Sprintf("%v", cond.Value)),
			)
		case "regex":
			return ok && re.MatchString(fmt.Sprintf("%v", value))
		case "in":
			if !ok {
				return false
			}
			str := fmt.Sprintf("%v", value)
			for _, v := range cond.Values {
				if str == v {
					return true
				}
			}
		}
		return false
	}), nil
}

// eventField resolves a condition field address against an event.
func eventField(e *schema.Event, field string) (any, bool) {
	switch field {
	case "type":
		return e.Type, true
	case "source":
		return e.Source, true
	case "severity":
		return e.Severity, true
	}
	if key, found := strings.CutPrefix(field, "data."); found {
		if e.Data == nil {
			return nil, false
		}
		v, ok := e.Data[key]
		return v, ok
	}
	return nil, false
}

func equalValues(a, b any) bool {
	if fa, ok1 := toFloat64(a); ok1 {
		if fb, ok2 := toFloat64(b); ok2 {
			return fa == fb
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
