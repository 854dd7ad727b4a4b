package rules

import "fmt"

// The registry is a closed, compile-time enumerable table. Adding a rule
// means adding a constructor here; nothing registers reflectively at runtime.
var registry = []struct {
	id    string
	build func() Rule
}{
	{"null_check", func() Rule { return NullCheck{} }},
	{"duplicate_check", func() Rule { return DuplicateCheck{} }},
	{"range_check", func() Rule { return RangeCheck{} }},
	{"datatype_check", func() Rule { return DataTypeCheck{} }},
	{"count_check", func() Rule { return CountCheck{} }},
	{"aggregation_check", func() Rule { return AggregationCheck{} }},
	{"pattern_check", func() Rule { return PatternCheck{} }},
	{"uniqueness_check", func() Rule { return UniquenessCheck{} }},
	{"value_set_check", func() Rule { return ValueSetCheck{} }},
}

var byID = func() map[string]func() Rule {
	m := make(map[string]func() Rule, len(registry))
	for _, r := range registry {
		m[r.id] = r.build
	}
	return m
}()

// New instantiates a rule by its identifier.
func New(id string) (Rule, error) {
	build, ok := byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown rule: %s", id)
	}
	return build(), nil
}

// Info describes one available rule for API listings.
type Info struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	ConfigSchema Schema `json:"config_schema"`
}

// List returns all available rules in registration order.
func List() []Info {
	out := make([]Info, 0, len(registry))
	for _, r := range registry {
		rule := r.build()
		out = append(out, Info{
			ID:           r.id,
			Name:         rule.Name(),
			Description:  rule.Description(),
			ConfigSchema: rule.Schema(),
		})
	}
	return out
}
