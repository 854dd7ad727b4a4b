// Package rules implements the quality-check rule framework: a closed set of
// stateless validation rules, each declaring a config schema, validating its
// input, and executing against a single dataset.
//
// Failure policy:
//   - ConfigError / ColumnError are returned to the caller before any row is
//     touched. The batch runner downgrades them to a per-rule failed result so
//     one bad config never blocks the other rules in a run.
//   - Rules never mutate the input dataset.
package rules

import (
	"fmt"
	"math"
	"strings"

	"qc/internal/dataset"
)

// failedRowCap bounds the rows attached to a result for display.
// The full count is always reported separately.
const failedRowCap = 100

// Rule is one stateless validation check.
type Rule interface {
	Name() string
	Description() string
	Schema() Schema
	Execute(ds *dataset.Dataset, cfg Config) (*Result, error)
}

// Config is the declarative per-rule configuration supplied by the caller.
type Config map[string]any

// Schema declares the recognized configuration options for a rule.
type Schema struct {
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Property describes one configuration option.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Default     any       `json:"default,omitempty"`
	Items       *Property `json:"items,omitempty"`
	Minimum     *float64  `json:"minimum,omitempty"`
	Maximum     *float64  `json:"maximum,omitempty"`
}

// ConfigError reports a missing or structurally invalid configuration option.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid config: %s", e.Reason)
	}
	return fmt.Sprintf("invalid config field %q: %s", e.Field, e.Reason)
}

// ColumnError reports referenced columns absent from the dataset.
type ColumnError struct {
	Missing []string
}

func (e *ColumnError) Error() string {
	return fmt.Sprintf("columns not found in data: %s", strings.Join(e.Missing, ", "))
}

// Result is the immutable outcome of one rule execution.
type Result struct {
	RuleName       string           `json:"rule_name"`
	Passed         bool             `json:"passed"`
	Message        string           `json:"message"`
	Details        map[string]any   `json:"details,omitempty"`
	Statistics     map[string]any   `json:"statistics,omitempty"`
	FailedRows     []map[string]any `json:"failed_rows,omitempty"`
	FailedRowCount int              `json:"failed_row_count,omitempty"`
}

// setFailedRows attaches failed rows capped for display and records the
// uncapped count.
func (r *Result) setFailedRows(rows []map[string]any) {
	r.FailedRowCount = len(rows)
	if len(rows) > failedRowCap {
		rows = rows[:failedRowCap]
	}
	r.FailedRows = rows
}

// validateRequired fails fast when a schema-required option is absent.
func validateRequired(cfg Config, s Schema) error {
	for _, field := range s.Required {
		if _, ok := cfg[field]; !ok {
			return &ConfigError{Field: field, Reason: "required field missing"}
		}
	}
	return nil
}

// requireColumns fails when any of the referenced columns is absent.
func requireColumns(ds *dataset.Dataset, cols []string) error {
	if missing := ds.MissingColumns(cols); len(missing) > 0 {
		return &ColumnError{Missing: missing}
	}
	return nil
}

// ---- Config accessors ----
//
// Configs arrive from JSON, so numbers are float64 and lists are []any.
// The accessors below canonicalize both the JSON shapes and the direct Go
// shapes used by tests.

func (c Config) stringVal(key, def string) string {
	if v, ok := c[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func (c Config) stringReq(key string) (string, error) {
	v, ok := c[key]
	if !ok {
		return "", &ConfigError{Field: key, Reason: "required field missing"}
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", &ConfigError{Field: key, Reason: "must be a non-empty string"}
	}
	return s, nil
}

func (c Config) boolVal(key string, def bool) bool {
	if v, ok := c[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func (c Config) floatVal(key string) (float64, bool) {
	v, ok := c[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	}
	return 0, false
}

func (c Config) floatOr(key string, def float64) float64 {
	if f, ok := c.floatVal(key); ok {
		return f
	}
	return def
}

func (c Config) stringsVal(key string) ([]string, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, &ConfigError{Field: key, Reason: "must be a list of strings"}
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, &ConfigError{Field: key, Reason: "must be a list of strings"}
	}
}

func (c Config) anyList(key string) ([]any, bool) {
	v, ok := c[key]
	if !ok {
		return nil, false
	}
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func pct(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) / float64(total) * 100)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
