package base

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/json"
)

// TypeClass groups declared column types by coercion target
type TypeClass int

const (
	TypeClassUnknown TypeClass = iota
	TypeClassTime
	TypeClassJSON
	TypeClassBool
	TypeClassInt
	TypeClassFloat
)

// timeLayouts are tried in order when a time-like column arrives as text
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"15:04:05.999999999",
	"15:04:05",
}

// ClassifyType maps a declared SQL type to its coercion class.
// Length and precision arguments are ignored except for tinyint(1),
// which MySQL uses for booleans.
func ClassifyType(declared string) TypeClass {
	t := strings.ToLower(strings.TrimSpace(declared))
	if t == "" {
		return TypeClassUnknown
	}
	if strings.HasPrefix(t, "tinyint(1)") {
		return TypeClassBool
	}
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	t = strings.TrimSuffix(t, " unsigned")

	switch {
	case t == "interval":
		return TypeClassUnknown
	case strings.Contains(t, "timestamp"), strings.Contains(t, "date"), strings.HasPrefix(t, "time"):
		return TypeClassTime
	case strings.Contains(t, "json"):
		return TypeClassJSON
	case t == "bool", t == "boolean", t == "bit":
		return TypeClassBool
	case strings.Contains(t, "int"), t == "serial", t == "bigserial", t == "smallserial":
		return TypeClassInt
	case strings.Contains(t, "float"), strings.Contains(t, "double"), t == "real",
		strings.Contains(t, "numeric"), strings.Contains(t, "decimal"), strings.Contains(t, "money"):
		return TypeClassFloat
	default:
		return TypeClassUnknown
	}
}

// CoerceRow converts every value in row according to the declared type of its column.
// Columns missing from the schema and values that fail to parse pass through unchanged.
func CoerceRow(row core.Row, schema *core.TableSchema) core.Row {
	if row == nil {
		return nil
	}
	out := make(core.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	if schema == nil {
		return out
	}
	for _, col := range schema.Columns {
		v, ok := row[col.Name]
		if !ok {
			continue
		}
		out[col.Name] = CoerceValue(v, ClassifyType(col.Type))
	}
	return out
}

// CoerceValue converts one value to the target class. nil stays nil.
func CoerceValue(v interface{}, class TypeClass) interface{} {
	if v == nil {
		return nil
	}
	if b, ok := v.([]byte); ok && class != TypeClassUnknown && class != TypeClassBool {
		v = string(b)
	}

	switch class {
	case TypeClassTime:
		return coerceTime(v)
	case TypeClassJSON:
		if s, ok := v.(string); ok {
			if parsed, ok := json.DecodeText(s); ok {
				return parsed
			}
		}
		return v
	case TypeClassBool:
		return coerceBool(v)
	case TypeClassInt:
		return coerceInt(v)
	case TypeClassFloat:
		return coerceFloat(v)
	default:
		return v
	}
}

// ParseTime interprets v as a point in time using the same rules as time-typed columns
func ParseTime(v interface{}) (time.Time, bool) {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	t, ok := coerceTime(v).(time.Time)
	return t, ok
}

func coerceTime(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		if t == nil {
			return nil
		}
		return *t
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed
			}
		}
		return v
	case int64:
		return time.UnixMilli(t).UTC()
	default:
		return v
	}
}

func coerceBool(v interface{}) interface{} {
	switch b := v.(type) {
	case bool:
		return b
	case []byte:
		if printable(b) {
			return coerceBool(string(b))
		}
		// BIT(n) values arrive as raw bytes
		for _, x := range b {
			if x != 0 {
				return true
			}
		}
		return false
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "", "0", "f", "false", "n", "no", "off":
			return false
		default:
			return true
		}
	case int64:
		return b != 0
	case int:
		return b != 0
	case int32:
		return b != 0
	case int16:
		return b != 0
	case int8:
		return b != 0
	case uint8:
		return b != 0
	case float64:
		return b != 0
	default:
		return v
	}
}

func coerceInt(v interface{}) interface{} {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int8:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		if n > math.MaxInt64 {
			return v
		}
		return int64(n)
	case float64:
		if n == math.Trunc(n) && n >= math.MinInt64 && n <= math.MaxInt64 {
			return int64(n)
		}
		return v
	case float32:
		return coerceInt(float64(n))
	case bool:
		if n {
			return int64(1)
		}
		return int64(0)
	case string:
		if parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return parsed
		}
		return v
	default:
		return v
	}
}

func coerceFloat(v interface{}) interface{} {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return parsed
		}
		return v
	default:
		return v
	}
}

func printable(b []byte) bool {
	for _, x := range b {
		if x < 0x20 || x > 0x7e {
			return false
		}
	}
	return true
}
