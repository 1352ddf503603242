package normalizer

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/nebula-hub/pkg/connector/base"
	"github.com/ajitpratap0/nebula-hub/pkg/json"
)

// Stringify renders a field value for titles, tags and searchable text.
// The boolean is false for nil and for values that cannot be serialized.
func Stringify(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	case bool:
		if t {
			return "yes", true
		}
		return "no", true
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), true
	case *time.Time:
		if t == nil {
			return "", false
		}
		return Stringify(*t)
	case *string:
		if t == nil {
			return "", false
		}
		return *t, true
	case fmt.Stringer:
		return t.String(), true
	case error:
		return "", false
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "", false
		}
		return Stringify(rv.Elem().Interface())
	case reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return "", false
	}

	s, err := json.MarshalString(v)
	if err != nil {
		return "", false
	}
	return s, true
}

// nonEmpty returns the trimmed string form of v when it has visible content
func nonEmpty(v interface{}) (string, bool) {
	s, ok := Stringify(v)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// parseTimestamp accepts time values, common textual layouts and epoch milliseconds
func parseTimestamp(v interface{}) (time.Time, bool) {
	switch n := v.(type) {
	case int:
		return time.UnixMilli(int64(n)).UTC(), true
	case float64:
		return time.UnixMilli(int64(n)).UTC(), true
	}
	return base.ParseTime(v)
}
