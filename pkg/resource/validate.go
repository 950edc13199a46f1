package resource

import "strings"

// Validate checks that the spec carries the parameters its kind needs. Only
// presence is enforced; values are opaque to the engine.
func (s Spec) Validate() error {
	if !s.Kind.Valid() {
		return Validationf("unknown resource kind %q", s.Kind)
	}
	if strings.TrimSpace(s.Name) == "" {
		return Validationf("%s has an empty name", s.Kind)
	}

	switch s.Kind {
	case KindNamespace:
		return nil
	case KindCollection:
		if s.Namespace == "" {
			return Validationf("%s: namespace is required", s.Address())
		}
		if s.Collection == nil || s.Collection.SourceURI == "" {
			return Validationf("%s: source uri is required", s.Address())
		}
	case KindParameterizedQuery:
		if s.Namespace == "" {
			return Validationf("%s: namespace is required", s.Address())
		}
		if s.Query == nil || strings.TrimSpace(s.Query.SQL) == "" {
			return Validationf("%s: query sql is required", s.Address())
		}
		seen := make(map[string]bool)
		for _, p := range s.Query.Parameters {
			if p.Name == "" {
				return Validationf("%s: query parameter with empty name", s.Address())
			}
			if seen[p.Name] {
				return Validationf("%s: duplicate query parameter %q", s.Address(), p.Name)
			}
			seen[p.Name] = true
		}
	case KindScheduledAutomation:
		if s.Namespace == "" {
			return Validationf("%s: namespace is required", s.Address())
		}
		if s.Automation == nil {
			return Validationf("%s: automation parameters are required", s.Address())
		}
		if s.Automation.Schedule == "" {
			return Validationf("%s: schedule is required", s.Address())
		}
		if s.Automation.QueryName == "" {
			return Validationf("%s: query reference is required", s.Address())
		}
		if s.Automation.RepeatCount < 0 {
			return Validationf("%s: repeat count must not be negative", s.Address())
		}
	}
	return nil
}
