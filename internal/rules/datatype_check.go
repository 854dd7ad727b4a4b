package rules

import (
	"fmt"
	"math"
	"regexp"

	"qc/internal/dataset"
)

var emailPattern = regexp.MustCompile(`^[\w.-]+@[\w.-]+\.\w+$`)

// DataTypeCheck validates that values in one column can be read as the
// expected logical type. Nulls pass only when allow_nulls is set.
type DataTypeCheck struct{}

func (DataTypeCheck) Name() string { return "Data Type Check" }
func (DataTypeCheck) Description() string {
	return "Validates that column values can be parsed as the expected data type"
}

var typeValidators = map[string]func(dataset.Value) bool{
	"integer": func(v dataset.Value) bool {
		f, ok := numericValue(v)
		return ok && f == math.Trunc(f)
	},
	"float":   func(v dataset.Value) bool { _, ok := numericValue(v); return ok },
	"numeric": func(v dataset.Value) bool { _, ok := numericValue(v); return ok },
	"string":  func(v dataset.Value) bool { return v.Kind == dataset.KindText },
	"date": func(v dataset.Value) bool {
		if v.Kind == dataset.KindTime {
			return true
		}
		_, ok := dataset.ParseTime(v.String())
		return ok
	},
	"datetime": func(v dataset.Value) bool {
		if v.Kind == dataset.KindTime {
			return true
		}
		_, ok := dataset.ParseTime(v.String())
		return ok
	},
	"boolean": func(v dataset.Value) bool {
		if v.Kind == dataset.KindBool {
			return true
		}
		switch v.String() {
		case "true", "false", "True", "False", "1", "0":
			return true
		}
		return false
	},
	"email": func(v dataset.Value) bool {
		return v.Kind == dataset.KindText && emailPattern.MatchString(v.Str)
	},
}

// numericValue accepts tagged numbers and text that parses as a number.
func numericValue(v dataset.Value) (float64, bool) {
	if f, ok := v.AsNumber(); ok {
		return f, true
	}
	if v.Kind == dataset.KindText {
		return dataset.ParseNumber(v.Str)
	}
	return 0, false
}

func typeNames() []string {
	return []string{"integer", "float", "numeric", "string", "date", "datetime", "boolean", "email"}
}

func (r DataTypeCheck) Schema() Schema {
	return Schema{
		Properties: map[string]Property{
			"column": {Type: "string", Description: "Column to check for data type"},
			"expected_type": {
				Type:        "string",
				Enum:        typeNames(),
				Description: "Expected data type",
			},
			"allow_nulls": {Type: "boolean", Default: true, Description: "Whether null values are allowed"},
		},
		Required: []string{"column", "expected_type"},
	}
}

func (r DataTypeCheck) Execute(ds *dataset.Dataset, cfg Config) (*Result, error) {
	if err := validateRequired(cfg, r.Schema()); err != nil {
		return nil, err
	}
	column, err := cfg.stringReq("column")
	if err != nil {
		return nil, err
	}
	expectedType, err := cfg.stringReq("expected_type")
	if err != nil {
		return nil, err
	}
	allowNulls := cfg.boolVal("allow_nulls", true)

	if err := requireColumns(ds, []string{column}); err != nil {
		return nil, err
	}

	validate, ok := typeValidators[expectedType]
	if !ok {
		return nil, &ConfigError{
			Field:  "expected_type",
			Reason: fmt.Sprintf("unknown type %q", expectedType),
		}
	}

	ci := ds.ColumnIndex(column)
	var invalidRows []int
	var sampleInvalid []any
	for i := 0; i < ds.NumRows(); i++ {
		v := ds.Cell(i, ci)
		if v.IsNull() {
			if !allowNulls {
				invalidRows = append(invalidRows, i)
				if len(sampleInvalid) < 10 {
					sampleInvalid = append(sampleInvalid, nil)
				}
			}
			continue
		}
		if !validate(v) {
			invalidRows = append(invalidRows, i)
			if len(sampleInvalid) < 10 {
				sampleInvalid = append(sampleInvalid, v.Export())
			}
		}
	}

	totalRows := ds.NumRows()
	violationCount := len(invalidRows)
	passed := violationCount == 0

	var message string
	if passed {
		message = fmt.Sprintf("All values in %q match type %q", column, expectedType)
	} else {
		message = fmt.Sprintf("%d values in %q do not match type %q", violationCount, column, expectedType)
	}

	colType := dataset.TypeMixed
	for _, c := range ds.Columns() {
		if c.Name == column {
			colType = c.Type
		}
	}

	failed := make([]map[string]any, 0, len(invalidRows))
	for _, i := range invalidRows {
		failed = append(failed, ds.Record(i))
	}

	res := &Result{
		RuleName: r.Name(),
		Passed:   passed,
		Message:  message,
		Details: map[string]any{
			"column":                column,
			"expected_type":         expectedType,
			"allow_nulls":           allowNulls,
			"current_dtype":         string(colType),
			"sample_invalid_values": sampleInvalid,
		},
		Statistics: map[string]any{
			"total_rows":         totalRows,
			"valid_count":        totalRows - violationCount,
			"invalid_count":      violationCount,
			"invalid_percentage": pct(violationCount, totalRows),
		},
	}
	res.setFailedRows(failed)
	return res, nil
}
