package fbexec

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Filter converts output values it matches. Filters of a type are applied
// in order, each one seeing the result of the previous.
type Filter struct {
	Match   func(v any) bool
	Convert func(v any) (any, error)
}

// TypeMap maps semantic types to their output filters. A TypeMap is
// immutable once built and safe for concurrent use.
type TypeMap struct {
	filters map[SemanticType][]Filter
}

// Timestamp is a calendar timestamp with exact seconds and UTC offset.
type Timestamp struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
	// Second holds whole seconds plus the microsecond fraction.
	Second *big.Rat
	// Offset is the UTC offset as a fraction of a day.
	Offset *big.Rat
}

const secondsPerDay = 60 * 60 * 24

var (
	rtrimRE     = regexp.MustCompile(` +\z`)
	outputTypes = OutputTypes()
)

// NewTypeMap builds a TypeMap from base, then replaces the filter lists of
// every type present in overrides.
func NewTypeMap(base, overrides map[SemanticType][]Filter) *TypeMap {
	m := make(map[SemanticType][]Filter, len(base)+len(overrides))
	for t, fs := range base {
		m[t] = append([]Filter(nil), fs...)
	}
	for t, fs := range overrides {
		m[t] = append([]Filter(nil), fs...)
	}
	return &TypeMap{filters: m}
}

// BaseOutputTypes returns the driver-independent output filters.
func BaseOutputTypes() map[SemanticType][]Filter {
	return map[SemanticType][]Filter{
		TypeInteger: {{Match: isTextual, Convert: parseInteger}},
		TypeDecimal: {{Match: isTextual, Convert: parseDecimal}},
		TypeFloat: {
			{Match: isTextual, Convert: parseFloat},
			{Match: isFloat32, Convert: func(v any) (any, error) { return float64(v.(float32)), nil }},
		},
		TypeChar:      {{Match: isBytes, Convert: bytesToString}},
		TypeText:      {{Match: isBytes, Convert: bytesToString}},
		TypeBoolean:   {{Match: isBoolLike, Convert: parseBool}},
		TypeTimestamp: {{Match: isTextual, Convert: parseTime(time.RFC3339Nano, "2006-01-02 15:04:05.999999999")}},
		TypeDate:      {{Match: isTextual, Convert: parseTime(time.DateOnly)}},
		TypeTime:      {{Match: isTextual, Convert: parseTime("15:04:05.999999999")}},
		TypeBlob:      nil,
		TypeDefault:   nil,
	}
}

// OutputTypes returns the base table with the Firebird specific entries:
// TIMESTAMP values become exact Timestamps and CHAR values lose their
// trailing pad.
func OutputTypes() *TypeMap {
	return NewTypeMap(BaseOutputTypes(), map[SemanticType][]Filter{
		TypeTimestamp: {{Match: isTime, Convert: timeToTimestamp}},
		TypeChar:      {{Match: isTextual, Convert: rtrim}},
	})
}

// Filters returns the filters registered for t.
func (m *TypeMap) Filters(t SemanticType) []Filter {
	return append([]Filter(nil), m.filters[t]...)
}

// Convert runs v through the filters of t.
func (m *TypeMap) Convert(t SemanticType, v any) (any, error) {
	for _, f := range m.filters[t] {
		if !f.Match(v) {
			continue
		}
		out, err := f.Convert(v)
		if err != nil {
			return nil, fmt.Errorf("fbexec: convert %s value %v: %w", t, v, err)
		}
		v = out
	}
	return v, nil
}

// ConvertRow converts every value of row according to the schema.
func (m *TypeMap) ConvertRow(s Schema, row []any) ([]any, error) {
	out := make([]any, len(row))
	for i, v := range row {
		t := TypeDefault
		if i < s.Len() {
			t = s.Column(i).Semantic
		}
		cv, err := m.Convert(t, v)
		if err != nil {
			return nil, err
		}
		out[i] = cv
	}
	return out, nil
}

// NewTimestamp converts t into a Timestamp keeping its wall clock fields,
// microsecond precision and UTC offset.
func NewTimestamp(t time.Time) Timestamp {
	_, offset := t.Zone()
	sec := new(big.Rat).SetInt64(int64(t.Second()))
	sec.Add(sec, big.NewRat(int64(t.Nanosecond()/1000), 1_000_000))
	return Timestamp{
		Year:   t.Year(),
		Month:  t.Month(),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
		Second: sec,
		Offset: big.NewRat(int64(offset), secondsPerDay),
	}
}

// Time converts ts back into a time.Time in a fixed zone.
func (ts Timestamp) Time() time.Time {
	var whole, nsec int64
	if ts.Second != nil {
		q := new(big.Int).Quo(ts.Second.Num(), ts.Second.Denom())
		whole = q.Int64()
		frac := new(big.Rat).Sub(ts.Second, new(big.Rat).SetInt(q))
		frac.Mul(frac, big.NewRat(1_000_000_000, 1))
		nsec = new(big.Int).Quo(frac.Num(), frac.Denom()).Int64()
	}
	var offset int64
	if ts.Offset != nil {
		off := new(big.Rat).Mul(ts.Offset, big.NewRat(secondsPerDay, 1))
		offset = new(big.Int).Quo(off.Num(), off.Denom()).Int64()
	}
	loc := time.FixedZone("", int(offset))
	return time.Date(ts.Year, ts.Month, ts.Day, ts.Hour, ts.Minute, int(whole), int(nsec), loc)
}

// String formats ts like an ISO 8601 timestamp.
func (ts Timestamp) String() string {
	return ts.Time().Format("2006-01-02T15:04:05.999999-07:00")
}

func isTime(v any) bool {
	_, ok := v.(time.Time)
	return ok
}

func isBytes(v any) bool {
	_, ok := v.([]byte)
	return ok
}

func isFloat32(v any) bool {
	_, ok := v.(float32)
	return ok
}

func isTextual(v any) bool {
	switch v.(type) {
	case string, []byte:
		return true
	}
	return false
}

func isBoolLike(v any) bool {
	switch v.(type) {
	case string, []byte, int64, int32, int16, int8, int:
		return true
	}
	return false
}

func textOf(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v.(string)
}

func timeToTimestamp(v any) (any, error) {
	return NewTimestamp(v.(time.Time)), nil
}

func rtrim(v any) (any, error) {
	return rtrimRE.ReplaceAllString(textOf(v), ""), nil
}

func bytesToString(v any) (any, error) {
	return string(v.([]byte)), nil
}

func parseInteger(v any) (any, error) {
	return strconv.ParseInt(strings.TrimSpace(textOf(v)), 10, 64)
}

func parseFloat(v any) (any, error) {
	return strconv.ParseFloat(strings.TrimSpace(textOf(v)), 64)
}

func parseDecimal(v any) (any, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(textOf(v)))
	if !ok {
		return nil, fmt.Errorf("invalid decimal %q", textOf(v))
	}
	return r, nil
}

func parseBool(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x != 0, nil
	case int32:
		return x != 0, nil
	case int16:
		return x != 0, nil
	case int8:
		return x != 0, nil
	case int:
		return x != 0, nil
	}
	return strconv.ParseBool(strings.TrimSpace(textOf(v)))
}

func parseTime(layouts ...string) func(any) (any, error) {
	return func(v any) (any, error) {
		s := strings.TrimSpace(textOf(v))
		var err error
		for _, layout := range layouts {
			var t time.Time
			if t, err = time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return nil, err
	}
}
