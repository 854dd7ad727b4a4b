package reconcile

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Transform is one named step of the key normalization pipeline. Transforms
// apply in the configured order, before the case/whitespace-insensitive
// options.
type Transform string

const (
	TransformTrim            Transform = "trim"
	TransformLower           Transform = "lower"
	TransformUpper           Transform = "upper"
	TransformRemoveSpecial   Transform = "remove_special"
	TransformNormalizeSpaces Transform = "normalize_spaces"
)

// foldMarks decomposes to NFD, drops combining marks, and recomposes, so
// accented characters fold to their base form before the special-character
// strip.
var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func applyTransform(s string, t Transform) (string, error) {
	switch t {
	case TransformTrim:
		return strings.TrimSpace(s), nil
	case TransformLower:
		return strings.ToLower(s), nil
	case TransformUpper:
		return strings.ToUpper(s), nil
	case TransformRemoveSpecial:
		folded, _, err := transform.String(foldMarks, s)
		if err != nil {
			// Malformed input: keep the raw string for the strip below.
			folded = s
		}
		var b strings.Builder
		b.Grow(len(folded))
		for _, r := range folded {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
				b.WriteRune(r)
			}
		}
		return b.String(), nil
	case TransformNormalizeSpaces:
		return strings.Join(strings.Fields(s), " "), nil
	default:
		return "", fmt.Errorf("unknown key transform %q", t)
	}
}

// applyTransforms runs the configured pipeline over one key component.
func applyTransforms(s string, ts []Transform) (string, error) {
	for _, t := range ts {
		out, err := applyTransform(s, t)
		if err != nil {
			return "", err
		}
		s = out
	}
	return s, nil
}

// validateTransforms rejects unknown transform names up front so the engine
// fails fast instead of mid-pass.
func validateTransforms(ts []Transform) error {
	for _, t := range ts {
		switch t {
		case TransformTrim, TransformLower, TransformUpper, TransformRemoveSpecial, TransformNormalizeSpaces:
		default:
			return fmt.Errorf("unknown key transform %q", t)
		}
	}
	return nil
}
