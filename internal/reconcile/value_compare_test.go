package reconcile

import (
	"testing"
	"time"

	"qc/internal/dataset"
)

func TestCompareValues_NullPairs(t *testing.T) {
	tests := []struct {
		name       string
		a, b       dataset.Value
		nullEquals bool
		want       Status
	}{
		{"both null, equal by default", dataset.Null, dataset.Null, true, StatusMatch},
		{"both null, strict", dataset.Null, dataset.Null, false, StatusNullMismatch},
		{"null vs number", dataset.Null, dataset.Number(1), true, StatusNullMismatch},
		{"text vs null", dataset.Text("x"), dataset.Null, true, StatusNullMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := comparePolicy{nullEqualsNull: tc.nullEquals}
			got, _ := compareValues(tc.a, tc.b, p)
			if got != tc.want {
				t.Fatalf("compareValues()=%s, want %s", got, tc.want)
			}
		})
	}
}

func TestCompareNumbers_AbsoluteTolerance(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		tol  float64
		want Status
	}{
		{"exact", 10, 10, 0, StatusMatch},
		{"at boundary", 10, 10.5, 0.5, StatusMatch},
		{"over boundary", 10, 10.51, 0.5, StatusNumericMismatch},
		{"negative values", -5, -5.2, 0.3, StatusMatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := compareNumbers(tc.a, tc.b, Tolerance{Value: tc.tol, Mode: ToleranceAbsolute})
			if got != tc.want {
				t.Fatalf("compareNumbers(%g, %g, tol=%g)=%s, want %s", tc.a, tc.b, tc.tol, got, tc.want)
			}
		})
	}
}

func TestCompareNumbers_PercentageTolerance(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		tol  float64
		want Status
	}{
		// diff=10, denom=max(100,110)=110, pct~9.09
		{"within percentage", 100, 110, 10, StatusMatch},
		{"over percentage", 100, 110, 9, StatusNumericMismatch},
		{"both zero", 0, 0, 0, StatusMatch},
		// denom is the non-zero side; 5/5*100 = 100%
		{"zero vs non-zero at 100", 0, 5, 100, StatusMatch},
		{"zero vs non-zero strict", 0, 5, 99, StatusNumericMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := compareNumbers(tc.a, tc.b, Tolerance{Value: tc.tol, Mode: TolerancePercentage})
			if got != tc.want {
				t.Fatalf("compareNumbers(%g, %g, %g%%)=%s, want %s", tc.a, tc.b, tc.tol, got, tc.want)
			}
		})
	}
}

func TestCompareDates(t *testing.T) {
	base := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		b    time.Time
		tol  DateTolerance
		want Status
	}{
		{"same instant", base, DateTolerance{}, StatusMatch},
		{"one day within days", base.AddDate(0, 0, 1), DateTolerance{Value: 1, Unit: UnitDays}, StatusMatch},
		{"two days over days", base.AddDate(0, 0, 2), DateTolerance{Value: 1, Unit: UnitDays}, StatusDateMismatch},
		{"90 minutes within hours", base.Add(90 * time.Minute), DateTolerance{Value: 2, Unit: UnitHours}, StatusMatch},
		{"negative delta folds", base.Add(-30 * time.Minute), DateTolerance{Value: 45, Unit: UnitMinutes}, StatusMatch},
		{"over minutes", base.Add(46 * time.Minute), DateTolerance{Value: 45, Unit: UnitMinutes}, StatusDateMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := compareDates(base, tc.b, tc.tol)
			if got != tc.want {
				t.Fatalf("compareDates()=%s, want %s", got, tc.want)
			}
		})
	}
}

func TestCompareValues_StringNormalization(t *testing.T) {
	p := comparePolicy{ignoreCase: true, ignoreSpace: true}
	got, _ := compareValues(dataset.Text(" Berlin"), dataset.Text("berlin "), p)
	if got != StatusMatch {
		t.Fatalf("normalized strings=%s, want MATCH", got)
	}
	got, detail := compareValues(dataset.Text("a"), dataset.Text("b"), comparePolicy{})
	if got != StatusStringMismatch || detail == "" {
		t.Fatalf("got=%s detail=%q, want STRING_MISMATCH with detail", got, detail)
	}
}

func TestCompareValues_MixedKindsFallBackToString(t *testing.T) {
	// A number against text of the same spelling compares lexically.
	got, _ := compareValues(dataset.Number(3), dataset.Text("3"), comparePolicy{})
	if got != StatusMatch {
		t.Fatalf("number vs text \"3\"=%s, want MATCH via string fallback", got)
	}
}

func TestParseToleranceConfig(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    Tolerance
		wantErr bool
	}{
		{"nil", nil, Tolerance{Mode: ToleranceAbsolute}, false},
		{"bare float", 0.5, Tolerance{Value: 0.5, Mode: ToleranceAbsolute}, false},
		{"bare int", 2, Tolerance{Value: 2, Mode: ToleranceAbsolute}, false},
		{"object absolute", map[string]any{"value": 1.5}, Tolerance{Value: 1.5, Mode: ToleranceAbsolute}, false},
		{"object percentage", map[string]any{"value": 5.0, "mode": "percentage"}, Tolerance{Value: 5, Mode: TolerancePercentage}, false},
		{"legacy type key", map[string]any{"value": 5.0, "type": "percentage"}, Tolerance{Value: 5, Mode: TolerancePercentage}, false},
		{"bad mode", map[string]any{"value": 1.0, "mode": "relative"}, Tolerance{}, true},
		{"bad value", map[string]any{"value": "big"}, Tolerance{}, true},
		{"bad shape", "0.5", Tolerance{}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseToleranceConfig(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseToleranceConfig(%v) err=nil, want error", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseToleranceConfig(%v) err=%v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("ParseToleranceConfig(%v)=%+v, want %+v", tc.in, got, tc.want)
			}
		})
	}
}
