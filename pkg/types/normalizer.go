// Package types holds the per-field value normalizers. Indexed values and
// query literals pass through the same normalizer so that index lookups and
// lexicographic range scans agree with typed comparisons.
package types

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	String = "string"
	Number = "number"
	Date   = "date"
	Raw    = "raw"
)

var ErrNormalization = errors.New("value cannot be normalized")

// Normalizer converts raw field values into their indexed form and into
// typed values exposed on documents.
type Normalizer interface {
	Name() string
	// Normalize returns the indexed, lexicographically sortable form of raw.
	Normalize(raw string) (string, error)
	// Typed returns the typed representation of raw: string, float64 or time.Time.
	Typed(raw string) (any, error)
	// RegexFlags returns the regex flag prefix applied when matching patterns
	// against normalized values.
	RegexFlags() string
}

var registry = map[string]Normalizer{
	String: lcNoDiacritics{},
	Number: number{},
	Date:   date{},
	Raw:    raw{},
}

// Lookup returns the normalizer registered under name. An empty name
// resolves to the String normalizer.
func Lookup(name string) (Normalizer, error) {
	if name == "" {
		name = String
	}
	n, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown type normalizer '%s'", name)
	}
	return n, nil
}

// MustLookup is like Lookup but panics on unknown names.
func MustLookup(name string) Normalizer {
	n, err := Lookup(name)
	if err != nil {
		panic(err)
	}
	return n
}

type lcNoDiacritics struct{}

func (lcNoDiacritics) Name() string { return String }

func (lcNoDiacritics) Normalize(raw string) (string, error) {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNormalization, err)
	}
	return strings.ToLower(out), nil
}

func (lcNoDiacritics) Typed(raw string) (any, error) { return raw, nil }

func (lcNoDiacritics) RegexFlags() string { return "(?i)" }

type number struct{}

func (number) Name() string { return Number }

func (number) Normalize(raw string) (string, error) {
	f, err := parseNumber(raw)
	if err != nil {
		return "", err
	}
	return EncodeNumber(f), nil
}

func (number) Typed(raw string) (any, error) {
	return parseNumber(raw)
}

func (number) RegexFlags() string { return "" }

func parseNumber(raw string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) {
		return 0, fmt.Errorf("%w: '%s' is not a number", ErrNormalization, raw)
	}
	return f, nil
}

// EncodeNumber encodes f so that the byte order of encodings matches the
// numeric order of values.
func EncodeNumber(f float64) string {
	if f == 0 {
		f = 0 // fold -0 into +0
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) == 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	return fmt.Sprintf("%016x", bits)
}

// DecodeNumber reverses EncodeNumber.
func DecodeNumber(s string) (float64, error) {
	bits, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: '%s' is not an encoded number", ErrNormalization, s)
	}
	if bits&(1<<63) != 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	return math.Float64frombits(bits), nil
}

const dateFormat = "2006-01-02T15:04:05.000Z"

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"20060102",
}

type date struct{}

func (date) Name() string { return Date }

func (date) Normalize(raw string) (string, error) {
	t, err := parseDate(raw)
	if err != nil {
		return "", err
	}
	return t.Format(dateFormat), nil
}

func (date) Typed(raw string) (any, error) {
	return parseDate(raw)
}

func (date) RegexFlags() string { return "" }

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: '%s' is not a date", ErrNormalization, raw)
}

type raw struct{}

func (raw) Name() string                      { return Raw }
func (raw) Normalize(v string) (string, error) { return v, nil }
func (raw) Typed(v string) (any, error)        { return v, nil }
func (raw) RegexFlags() string                 { return "" }
