package ir

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON for hashing.
// CRITICAL: This is the ONLY serialization that should be used for
// content-addressed identity computation.
//
// Key differences from standard json.Marshal:
// 1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
// 2. No HTML escaping (< > & are NOT escaped)
// 3. Strings must be valid UTF-8 in NFC; anything else is rejected rather
//    than rewritten, so distinct inputs never share an output
// 4. Numbers use the ECMAScript shortest round-trip form
// 5. NaN and infinities are rejected
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil, IRNull:
		buf.WriteString("null")
	case IRString:
		return writeCanonicalString(buf, string(val))
	case string:
		return writeCanonicalString(buf, val)
	case IRNumber:
		s, err := formatNumber(float64(val))
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case IRBool:
		writeBool(buf, bool(val))
	case bool:
		writeBool(buf, val)
	case IRArray:
		return writeCanonicalArray(buf, val)
	case IRObject:
		return writeCanonicalObject(buf, val)
	default:
		// Plain Go values (ints, floats, []any, map[string]any) go through FromGo.
		irVal, err := FromGo(v)
		if err != nil {
			return fmt.Errorf("canonical JSON: %w", err)
		}
		return writeCanonical(buf, irVal)
	}
	return nil
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteString("true")
		return
	}
	buf.WriteString("false")
}

// writeCanonicalString writes a canonical JSON string.
// RFC 8785 compliance:
//   - No HTML escaping (<, >, & are NOT escaped)
//   - U+2028 and U+2029 are NOT escaped
//   - Only control characters (U+0000-U+001F), backslash, and quote are escaped
//   - \b \f \n \r \t use their short forms, other controls use lowercase \u00xx
//
// Invalid UTF-8 and text not in NFC fail with *StringError. Use NormalizeString
// at construction time to bring input into canonical form.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	if err := CheckString(s); err != nil {
		return err
	}

	const hex = "0123456789abcdef"
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c >= utf8.RuneSelf {
			_, size := utf8.DecodeRuneInString(s[i:])
			buf.WriteString(s[i : i+size])
			i += size
			continue
		}
		switch c {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if c < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hex[c>>4])
				buf.WriteByte(hex[c&0xF])
			} else {
				buf.WriteByte(c)
			}
		}
		i++
	}
	buf.WriteByte('"')
	return nil
}

// StringError reports text that has no canonical form.
type StringError struct {
	Value  string
	Reason string
}

func (e *StringError) Error() string {
	return fmt.Sprintf("string %q: %s", e.Value, e.Reason)
}

// CheckString reports whether s can be written canonically as is.
func CheckString(s string) error {
	if !utf8.ValidString(s) {
		return &StringError{Value: s, Reason: "invalid UTF-8"}
	}
	if !norm.NFC.IsNormalString(s) {
		return &StringError{Value: s, Reason: "not in Unicode normalization form C"}
	}
	return nil
}

// NormalizeString converts valid UTF-8 to NFC. Invalid UTF-8 is an error;
// it is never repaired, since repair would map different inputs to one value.
func NormalizeString(s string) (string, error) {
	if !utf8.ValidString(s) {
		return "", &StringError{Value: s, Reason: "invalid UTF-8"}
	}
	return norm.NFC.String(s), nil
}

// formatNumber renders a double the way ECMAScript Number.prototype.toString
// does, which is what RFC 8785 requires: shortest round-trip digits, plain
// decimal notation for magnitudes in [1e-6, 1e21), exponent notation outside.
func formatNumber(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("number %v is forbidden in canonical JSON", f)
	}
	if f == 0 {
		// Covers negative zero as well.
		return "0", nil
	}

	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}

	// Go renders "1.5e-07"; ECMAScript renders "1.5e-7".
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "e")
	sign := exp[:1]
	digits := strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mantissa + "e" + sign + digits, nil
}

// writeCanonicalArray writes an array as canonical JSON.
func writeCanonicalArray(buf *bytes.Buffer, arr IRArray) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonical(buf, elem); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

// writeCanonicalObject writes an object with RFC 8785 key ordering.
func writeCanonicalObject(buf *bytes.Buffer, obj IRObject) error {
	buf.WriteByte('{')

	// CRITICAL: RFC 8785 UTF-16 code unit ordering
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonicalString(buf, k); err != nil {
			return fmt.Errorf("key: %w", err)
		}
		buf.WriteByte(':')
		if err := writeCanonical(buf, obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}

	buf.WriteByte('}')
	return nil
}
