package fbexec

import "strings"

// NativeType is the base type tag of a native result column.
type NativeType int

const (
	NativeUnknown NativeType = iota
	NativeShort
	NativeLong
	NativeInt64
	NativeInt128
	NativeFloat
	NativeDouble
	NativeDFloat
	NativeDecFloat
	NativeNumeric
	NativeChar
	NativeVarchar
	NativeCString
	NativeBlob
	NativeTimestamp
	NativeTimestampTZ
	NativeDate
	NativeTime
	NativeTimeTZ
	NativeBoolean
	NativeQuad
	NativeArray
)

// SemanticType is the driver-neutral type exposed in a Schema.
type SemanticType int

const (
	TypeDefault SemanticType = iota
	TypeInteger
	TypeDecimal
	TypeFloat
	TypeChar
	TypeText
	TypeBlob
	TypeTimestamp
	TypeDate
	TypeTime
	TypeBoolean
)

// Column describes one result column.
type Column struct {
	Name     string
	Native   NativeType
	Semantic SemanticType
	// Precision and Scale are reserved; executions always leave them zero.
	Precision int
	Scale     int
}

// Schema is the ordered column list of a result, in native ordinal order.
type Schema struct {
	columns []Column
}

var nativeNames = map[NativeType]string{
	NativeUnknown:     "unknown",
	NativeShort:       "short",
	NativeLong:        "long",
	NativeInt64:       "int64",
	NativeInt128:      "int128",
	NativeFloat:       "float",
	NativeDouble:      "double",
	NativeDFloat:      "d_float",
	NativeDecFloat:    "decfloat",
	NativeNumeric:     "numeric",
	NativeChar:        "char",
	NativeVarchar:     "varchar",
	NativeCString:     "cstring",
	NativeBlob:        "blob",
	NativeTimestamp:   "timestamp",
	NativeTimestampTZ: "timestamp_tz",
	NativeDate:        "date",
	NativeTime:        "time",
	NativeTimeTZ:      "time_tz",
	NativeBoolean:     "boolean",
	NativeQuad:        "quad",
	NativeArray:       "array",
}

// nativeAliases accepts the names other clients use for the same tags,
// as reported by database/sql DatabaseTypeName.
var nativeAliases = map[string]NativeType{
	"smallint":                 NativeShort,
	"integer":                  NativeLong,
	"int":                      NativeLong,
	"bigint":                   NativeInt64,
	"hugeint":                  NativeInt128,
	"real":                     NativeFloat,
	"double precision":         NativeDouble,
	"decimal":                  NativeNumeric,
	"text":                     NativeChar,
	"character":                NativeChar,
	"varying":                  NativeVarchar,
	"character varying":        NativeVarchar,
	"string":                   NativeVarchar,
	"blob sub_type text":       NativeBlob,
	"bytea":                    NativeBlob,
	"timestamp with time zone": NativeTimestampTZ,
	"timestamptz":              NativeTimestampTZ,
	"time with time zone":      NativeTimeTZ,
	"timetz":                   NativeTimeTZ,
	"bool":                     NativeBoolean,
}

// ParseNativeType converts a native base type name into its tag. Matching is
// case-insensitive; unknown names yield NativeUnknown.
func ParseNativeType(name string) NativeType {
	name = strings.ToLower(strings.TrimSpace(name))
	if i := strings.IndexByte(name, '('); i >= 0 {
		// DECIMAL(18,2), VARCHAR(40)
		name = strings.TrimSpace(name[:i])
	}
	for t, n := range nativeNames {
		if n == name {
			return t
		}
	}
	if t, ok := nativeAliases[name]; ok {
		return t
	}
	return NativeUnknown
}

// String returns the lower-case native tag name.
func (t NativeType) String() string {
	if n, ok := nativeNames[t]; ok {
		return n
	}
	return nativeNames[NativeUnknown]
}

// Semantic maps the native tag and its scale (a decimal exponent, negative
// for fixed-point values) to the neutral type. The mapping is total.
func (t NativeType) Semantic(scale int) SemanticType {
	switch t {
	case NativeShort, NativeLong, NativeInt64, NativeInt128, NativeQuad:
		if scale != 0 {
			return TypeDecimal
		}
		return TypeInteger
	case NativeNumeric, NativeDecFloat:
		return TypeDecimal
	case NativeFloat, NativeDouble, NativeDFloat:
		return TypeFloat
	case NativeChar:
		return TypeChar
	case NativeVarchar, NativeCString:
		return TypeText
	case NativeBlob:
		return TypeBlob
	case NativeTimestamp, NativeTimestampTZ:
		return TypeTimestamp
	case NativeDate:
		return TypeDate
	case NativeTime, NativeTimeTZ:
		return TypeTime
	case NativeBoolean:
		return TypeBoolean
	default: // NativeUnknown, NativeArray
		return TypeDefault
	}
}

// String returns the name of the semantic type.
func (t SemanticType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeDecimal:
		return "decimal"
	case TypeFloat:
		return "float"
	case TypeChar:
		return "char"
	case TypeText:
		return "text"
	case TypeBlob:
		return "blob"
	case TypeTimestamp:
		return "timestamp"
	case TypeDate:
		return "date"
	case TypeTime:
		return "time"
	case TypeBoolean:
		return "boolean"
	default:
		return "default"
	}
}

// NewSchema returns a schema holding a copy of columns.
func NewSchema(columns []Column) Schema {
	return Schema{columns: append([]Column(nil), columns...)}
}

// Len returns the number of columns.
func (s Schema) Len() int { return len(s.columns) }

// Column returns the column at ordinal i.
func (s Schema) Column(i int) Column { return s.columns[i] }

// Columns returns a copy of the ordered columns.
func (s Schema) Columns() []Column { return append([]Column(nil), s.columns...) }

// Names returns the column aliases in ordinal order.
func (s Schema) Names() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.Name
	}
	return names
}
