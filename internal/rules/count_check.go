package rules

import (
	"fmt"

	"qc/internal/dataset"
)

// CountCheck validates the dataset row count under one of four comparison
// modes: exact, min, max, or range.
type CountCheck struct{}

func (CountCheck) Name() string { return "Count Check" }
func (CountCheck) Description() string {
	return "Validates that the dataset has the expected number of rows"
}

func (r CountCheck) Schema() Schema {
	return Schema{
		Properties: map[string]Property{
			"comparison": {
				Type:        "string",
				Enum:        []string{"exact", "min", "max", "range"},
				Default:     "exact",
				Description: "Type of count comparison",
			},
			"expected_count": {Type: "integer", Description: "Expected exact row count"},
			"min_count":      {Type: "integer", Description: "Minimum row count"},
			"max_count":      {Type: "integer", Description: "Maximum row count"},
		},
	}
}

func (r CountCheck) Execute(ds *dataset.Dataset, cfg Config) (*Result, error) {
	if err := validateRequired(cfg, r.Schema()); err != nil {
		return nil, err
	}

	comparison := cfg.stringVal("comparison", "exact")
	expected, hasExpected := cfg.floatVal("expected_count")
	minCount, hasMin := cfg.floatVal("min_count")
	maxCount, hasMax := cfg.floatVal("max_count")

	actual := ds.NumRows()
	passed := true
	details := map[string]any{
		"actual_count":    actual,
		"comparison_type": comparison,
	}
	var message string

	switch comparison {
	case "exact":
		if !hasExpected {
			return nil, &ConfigError{Field: "expected_count", Reason: "required for exact comparison"}
		}
		passed = float64(actual) == expected
		details["expected_count"] = int(expected)
		details["difference"] = actual - int(expected)
		message = fmt.Sprintf("Row count: %d (expected: %d)", actual, int(expected))

	case "min":
		if !hasMin {
			return nil, &ConfigError{Field: "min_count", Reason: "required for min comparison"}
		}
		passed = float64(actual) >= minCount
		details["min_count"] = int(minCount)
		message = fmt.Sprintf("Row count: %d (minimum: %d)", actual, int(minCount))

	case "max":
		if !hasMax {
			return nil, &ConfigError{Field: "max_count", Reason: "required for max comparison"}
		}
		passed = float64(actual) <= maxCount
		details["max_count"] = int(maxCount)
		message = fmt.Sprintf("Row count: %d (maximum: %d)", actual, int(maxCount))

	case "range":
		if !hasMin || !hasMax {
			return nil, &ConfigError{Field: "min_count", Reason: "min_count and max_count are required for range comparison"}
		}
		passed = minCount <= float64(actual) && float64(actual) <= maxCount
		details["min_count"] = int(minCount)
		details["max_count"] = int(maxCount)
		message = fmt.Sprintf("Row count: %d (range: %d-%d)", actual, int(minCount), int(maxCount))

	default:
		return nil, &ConfigError{Field: "comparison", Reason: fmt.Sprintf("unknown comparison type %q", comparison)}
	}

	return &Result{
		RuleName:   r.Name(),
		Passed:     passed,
		Message:    message,
		Details:    details,
		Statistics: map[string]any{"actual_count": actual},
	}, nil
}
