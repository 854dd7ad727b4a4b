package reconcile

import (
	"fmt"
	"math"
	"strings"
	"time"

	"qc/internal/dataset"
)

// Status classifies the outcome of comparing one column value between two
// sources.
type Status string

const (
	StatusMatch           Status = "MATCH"
	StatusNullMismatch    Status = "NULL_MISMATCH"
	StatusNumericMismatch Status = "NUMERIC_MISMATCH"
	StatusDateMismatch    Status = "DATE_MISMATCH"
	StatusStringMismatch  Status = "STRING_MISMATCH"
)

// ToleranceMode selects absolute or percentage numeric tolerance.
type ToleranceMode string

const (
	ToleranceAbsolute   ToleranceMode = "absolute"
	TolerancePercentage ToleranceMode = "percentage"
)

// Tolerance is the canonical numeric tolerance configuration.
type Tolerance struct {
	Value float64       `json:"value"`
	Mode  ToleranceMode `json:"mode"`
}

// DateUnit expresses the unit of a date tolerance.
type DateUnit string

const (
	UnitDays    DateUnit = "days"
	UnitHours   DateUnit = "hours"
	UnitMinutes DateUnit = "minutes"
)

// DateTolerance is the maximum allowed time delta between two date values.
type DateTolerance struct {
	Value float64  `json:"value"`
	Unit  DateUnit `json:"unit"`
}

func (d DateTolerance) duration() time.Duration {
	switch d.Unit {
	case UnitHours:
		return time.Duration(d.Value * float64(time.Hour))
	case UnitMinutes:
		return time.Duration(d.Value * float64(time.Minute))
	default:
		return time.Duration(d.Value * 24 * float64(time.Hour))
	}
}

// comparePolicy bundles the per-comparison options of the engine.
type comparePolicy struct {
	numeric        Tolerance
	date           DateTolerance
	ignoreCase     bool
	ignoreSpace    bool
	nullEqualsNull bool
}

// compareValues compares two tagged values under the policy. The branch is
// chosen by the tag pair assigned at ingestion:
//
//	null/null       -> match iff null_equals_null, else NULL_MISMATCH
//	null/other      -> NULL_MISMATCH
//	number/number   -> absolute or percentage tolerance
//	time/time       -> time delta vs date tolerance
//	anything else   -> string comparison after case/whitespace normalization
func compareValues(a, b dataset.Value, p comparePolicy) (Status, string) {
	switch {
	case a.IsNull() && b.IsNull():
		if p.nullEqualsNull {
			return StatusMatch, ""
		}
		return StatusNullMismatch, "both values are null"

	case a.IsNull() || b.IsNull():
		return StatusNullMismatch, "null vs non-null"
	}

	if fa, ok := a.AsNumber(); ok {
		if fb, ok := b.AsNumber(); ok {
			return compareNumbers(fa, fb, p.numeric)
		}
	}
	if a.Kind == dataset.KindTime && b.Kind == dataset.KindTime {
		return compareDates(a.Time, b.Time, p.date)
	}

	sa, sb := a.String(), b.String()
	if p.ignoreCase {
		sa, sb = strings.ToLower(sa), strings.ToLower(sb)
	}
	if p.ignoreSpace {
		sa, sb = strings.TrimSpace(sa), strings.TrimSpace(sb)
	}
	if sa == sb {
		return StatusMatch, ""
	}
	return StatusStringMismatch, fmt.Sprintf("%q != %q", a.String(), b.String())
}

func compareNumbers(a, b float64, tol Tolerance) (Status, string) {
	diff := math.Abs(a - b)
	switch tol.Mode {
	case TolerancePercentage:
		denom := math.Max(math.Abs(a), math.Abs(b))
		if denom == 0 {
			// Both zero: the diff is zero too.
			return StatusMatch, ""
		}
		pctDiff := diff / denom * 100
		if pctDiff <= tol.Value {
			return StatusMatch, ""
		}
		return StatusNumericMismatch, fmt.Sprintf("differs by %.4f (%.2f%% > %g%%)", diff, pctDiff, tol.Value)
	default:
		if diff <= tol.Value {
			return StatusMatch, ""
		}
		return StatusNumericMismatch, fmt.Sprintf("differs by %.4f (tolerance %g)", diff, tol.Value)
	}
}

func compareDates(a, b time.Time, tol DateTolerance) (Status, string) {
	delta := a.Sub(b)
	if delta < 0 {
		delta = -delta
	}
	if delta <= tol.duration() {
		return StatusMatch, ""
	}
	return StatusDateMismatch, fmt.Sprintf("differs by %s (tolerance %g %s)", delta, tol.Value, tol.Unit)
}

// ParseToleranceConfig canonicalizes the external tolerance shapes: a bare
// number means absolute tolerance; an object carries {value, mode}. Anything
// else is rejected here so the engine only ever sees the canonical form.
func ParseToleranceConfig(v any) (Tolerance, error) {
	switch t := v.(type) {
	case nil:
		return Tolerance{Mode: ToleranceAbsolute}, nil
	case float64:
		return Tolerance{Value: t, Mode: ToleranceAbsolute}, nil
	case int:
		return Tolerance{Value: float64(t), Mode: ToleranceAbsolute}, nil
	case map[string]any:
		out := Tolerance{Mode: ToleranceAbsolute}
		switch val := t["value"].(type) {
		case float64:
			out.Value = val
		case int:
			out.Value = float64(val)
		case nil:
		default:
			return Tolerance{}, fmt.Errorf("tolerance value must be a number")
		}
		mode, _ := t["mode"].(string)
		if mode == "" {
			mode, _ = t["type"].(string)
		}
		switch ToleranceMode(mode) {
		case "", ToleranceAbsolute:
		case TolerancePercentage:
			out.Mode = TolerancePercentage
		default:
			return Tolerance{}, fmt.Errorf("unknown tolerance mode %q", mode)
		}
		return out, nil
	default:
		return Tolerance{}, fmt.Errorf("tolerance must be a number or an object")
	}
}
