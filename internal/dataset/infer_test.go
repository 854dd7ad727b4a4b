package dataset

import (
	"testing"
	"time"
)

func TestInferTypes_PreferenceOrder(t *testing.T) {
	// Integers also parse as floats and bools ("1"/"0"), so the column type
	// must follow the preference order: integer, boolean, date, timestamp,
	// float, string.
	headers := []string{"ints", "bools", "dates", "stamps", "floats", "strings", "empty"}
	rows := [][]string{
		{"1", "yes", "2024-01-01", "2024-01-01 10:00:00", "1.5", "a", ""},
		{"0", "no", "2024-06-30", "2024-06-30 23:59:59", "2", "2x", ""},
	}
	want := []Type{TypeInteger, TypeBool, TypeDate, TypeDateTime, TypeFloat, TypeString, TypeString}
	got := InferTypes(headers, rows)
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("InferTypes()[%d]=%q (column %s), want %q", i, got[i], headers[i], w)
		}
	}
}

func TestInferTypes_EmptyCellsIgnored(t *testing.T) {
	got := InferTypes([]string{"v"}, [][]string{{""}, {"3"}, {""}})
	if got[0] != TypeInteger {
		t.Fatalf("InferTypes()=%q, want integer despite empty cells", got[0])
	}
}

func TestCoerceCell(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		typ  Type
		want Kind
	}{
		{"empty is null", "", TypeString, KindNull},
		{"whitespace is null", "  ", TypeInteger, KindNull},
		{"integer", "42", TypeInteger, KindNumber},
		{"bool", "yes", TypeBool, KindBool},
		{"date", "2024-01-01", TypeDate, KindTime},
		{"unparseable stays text", "abc", TypeInteger, KindText},
		{"mixed picks number", "3.5", TypeMixed, KindNumber},
		{"mixed picks time", "2024-01-01", TypeMixed, KindTime},
		{"mixed falls back to text", "hello", TypeMixed, KindText},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CoerceCell(tc.raw, tc.typ); got.Kind != tc.want {
				t.Fatalf("CoerceCell(%q, %s).Kind=%v, want %v", tc.raw, tc.typ, got.Kind, tc.want)
			}
		})
	}
}

func TestFromStringRows_ShortRowsPadWithNull(t *testing.T) {
	d, err := FromStringRows([]string{"a", "b"}, [][]string{{"1", "x"}, {"2"}})
	if err != nil {
		t.Fatalf("FromStringRows() err=%v", err)
	}
	if !d.Cell(1, 1).IsNull() {
		t.Fatal("short row not padded with null")
	}
}

func TestFromRecords_MissingKeysBecomeNull(t *testing.T) {
	d, err := FromRecords([]string{"a", "b"}, []map[string]any{
		{"a": 1.0, "b": "x"},
		{"a": 2.0},
	})
	if err != nil {
		t.Fatalf("FromRecords() err=%v", err)
	}
	if !d.Cell(1, 1).IsNull() {
		t.Fatal("missing key not null")
	}
	// Uniform numeric column narrows from mixed.
	if got := d.Columns()[0].Type; got != TypeFloat {
		t.Fatalf("column a type=%q, want float", got)
	}
}

func TestFromValues_RefinesUniformColumns(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d, err := FromValues([]string{"n", "s", "t", "m"}, [][]any{
		{int64(1), "a", ts, "x"},
		{2.5, "b", nil, int64(2)},
	})
	if err != nil {
		t.Fatalf("FromValues() err=%v", err)
	}
	cols := d.Columns()
	if cols[0].Type != TypeFloat {
		t.Fatalf("column n type=%q, want float", cols[0].Type)
	}
	if cols[1].Type != TypeString {
		t.Fatalf("column s type=%q, want string", cols[1].Type)
	}
	// Nulls do not break uniformity.
	if cols[2].Type != TypeDateTime {
		t.Fatalf("column t type=%q, want datetime", cols[2].Type)
	}
	// Genuinely mixed stays mixed.
	if cols[3].Type != TypeMixed {
		t.Fatalf("column m type=%q, want mixed", cols[3].Type)
	}
}
