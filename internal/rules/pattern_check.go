package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"qc/internal/dataset"
)

// commonPatterns is the library of named patterns accepted in place of a
// custom regex.
var commonPatterns = map[string]string{
	"email":        `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`,
	"phone_us":     `^\d{3}-\d{3}-\d{4}$`,
	"phone_intl":   `^\+\d{1,3}-\d{3,14}$`,
	"date_iso":     `^\d{4}-\d{2}-\d{2}$`,
	"date_us":      `^\d{2}/\d{2}/\d{4}$`,
	"zip_us":       `^\d{5}(-\d{4})?$`,
	"ssn_us":       `^\d{3}-\d{2}-\d{4}$`,
	"url":          `^https?://\S+$`,
	"ipv4":         `^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`,
	"alphanumeric": `^[a-zA-Z0-9]+$`,
	"alpha_only":   `^[a-zA-Z]+$`,
	"numeric_only": `^\d+$`,
}

// PatternCheck validates that column values match a regex, given either as a
// named common pattern or a custom expression.
type PatternCheck struct{}

func (PatternCheck) Name() string { return "Pattern Check" }
func (PatternCheck) Description() string {
	return "Validates that column values match a specified regex pattern"
}

func (r PatternCheck) Schema() Schema {
	names := make([]string, 0, len(commonPatterns))
	for k := range commonPatterns {
		names = append(names, k)
	}
	sort.Strings(names)
	return Schema{
		Properties: map[string]Property{
			"column": {Type: "string", Description: "Column to validate"},
			"pattern": {
				Type:        "string",
				Description: fmt.Sprintf("Regex pattern or common pattern name: %s", strings.Join(names, ", ")),
			},
			"case_sensitive": {Type: "boolean", Default: true, Description: "Case-sensitive matching"},
			"allow_null":     {Type: "boolean", Default: false, Description: "Allow null values"},
		},
		Required: []string{"column", "pattern"},
	}
}

func (r PatternCheck) Execute(ds *dataset.Dataset, cfg Config) (*Result, error) {
	if err := validateRequired(cfg, r.Schema()); err != nil {
		return nil, err
	}
	column, err := cfg.stringReq("column")
	if err != nil {
		return nil, err
	}
	patternInput, err := cfg.stringReq("pattern")
	if err != nil {
		return nil, err
	}
	caseSensitive := cfg.boolVal("case_sensitive", true)
	allowNull := cfg.boolVal("allow_null", false)

	if err := requireColumns(ds, []string{column}); err != nil {
		return nil, err
	}

	pattern := patternInput
	patternDisplay := patternInput
	if p, ok := commonPatterns[patternInput]; ok {
		pattern = p
		patternDisplay = fmt.Sprintf("%s (%s)", patternInput, p)
	}
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &ConfigError{Field: "pattern", Reason: fmt.Sprintf("invalid regex: %v", err)}
	}

	ci := ds.ColumnIndex(column)
	type violation struct {
		row    int
		value  any
		reason string
	}
	var violations []violation
	nullCount := 0

	for i := 0; i < ds.NumRows(); i++ {
		v := ds.Cell(i, ci)
		if v.IsNull() {
			nullCount++
			if !allowNull {
				violations = append(violations, violation{row: i + 1, value: nil, reason: "Null value not allowed"})
			}
			continue
		}
		s := v.String()
		if !re.MatchString(s) {
			violations = append(violations, violation{
				row:    i + 1,
				value:  s,
				reason: fmt.Sprintf("Does not match pattern: %s", patternDisplay),
			})
		}
	}

	totalRows := ds.NumRows()
	failedCount := len(violations)
	passed := failedCount == 0

	var message string
	if passed {
		message = fmt.Sprintf("All %d values in %q match pattern: %s", totalRows, column, patternDisplay)
	} else {
		message = fmt.Sprintf("%d of %d values in %q do not match pattern", failedCount, totalRows, column)
	}

	failed := make([]map[string]any, 0, failedCount)
	detailViolations := make([]map[string]any, 0, failedCount)
	for i, v := range violations {
		if i >= failedRowCap {
			break
		}
		failed = append(failed, map[string]any{
			column:       v.value,
			"row_number": v.row,
			"reason":     v.reason,
		})
		detailViolations = append(detailViolations, map[string]any{
			"row":    v.row,
			"value":  v.value,
			"reason": v.reason,
		})
	}

	res := &Result{
		RuleName: r.Name(),
		Passed:   passed,
		Message:  message,
		Details: map[string]any{
			"column":           column,
			"pattern":          patternDisplay,
			"violations":       detailViolations,
			"total_violations": failedCount,
			"null_count":       nullCount,
		},
		Statistics: map[string]any{
			"total_rows":    totalRows,
			"valid_count":   totalRows - failedCount,
			"invalid_count": failedCount,
			"null_count":    nullCount,
			"pass_rate":     pct(totalRows-failedCount, totalRows),
		},
	}
	res.FailedRows = failed
	res.FailedRowCount = failedCount
	return res, nil
}
