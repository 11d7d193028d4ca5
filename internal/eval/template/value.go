package template

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aymerick/raymond"
)

// scope is the variable context a template is rendered against
type scope struct {
	vars  interface{}
	frame *frame
}

// frame holds the bindings a single loop iteration layers over the outer variables
type frame struct {
	item  interface{}
	index int
}

// lookup resolves a dotted path. Any missing or nil step yields nil.
func (sc *scope) lookup(path string) interface{} {
	if path == "" {
		return nil
	}

	keys := strings.Split(path, ".")

	var cur interface{}
	switch {
	case sc.frame != nil && keys[0] == "this":
		cur = sc.frame.item
	case sc.frame != nil && keys[0] == "index":
		cur = sc.frame.index
	default:
		cur = member(sc.vars, keys[0])
	}

	for _, key := range keys[1:] {
		if cur == nil {
			return nil
		}
		cur = member(cur, key)
	}

	return indirect(cur)
}

// member returns the value stored under key in v, or nil
func member(v interface{}, key string) interface{} {
	switch m := v.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		return indirect(m[key])
	case []interface{}:
		if key == "length" {
			return len(m)
		}
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(m) {
			return nil
		}
		return indirect(m[i])
	case string:
		if key == "length" {
			return utf8.RuneCountInString(m)
		}
		return nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil
		}
		val := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !val.IsValid() {
			return nil
		}
		return indirect(val.Interface())

	case reflect.Slice, reflect.Array:
		if key == "length" {
			return rv.Len()
		}
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= rv.Len() {
			return nil
		}
		return indirect(rv.Index(i).Interface())

	case reflect.Struct:
		return structField(rv, key)

	case reflect.String:
		if key == "length" {
			return utf8.RuneCountInString(rv.String())
		}
	}

	return nil
}

// structField finds an exported field by its json name, falling back to the Go field name
func structField(rv reflect.Value, key string) interface{} {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}

		name := f.Name
		if tagName, _, _ := strings.Cut(f.Tag.Get("json"), ","); tagName != "" {
			if tagName == "-" {
				continue
			}
			name = tagName
		}

		if name == key {
			return indirect(rv.Field(i).Interface())
		}
	}
	return nil
}

// indirect unwraps pointers so that a nil pointer is reported as nil
func indirect(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

// truthy applies the conditional rules: nil, false, zero, NaN and "" are false.
// Every other value, including empty lists and maps, is true.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return false
		}
		return truthy(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f != 0 && !math.IsNaN(f)
	case reflect.String:
		return rv.String() != ""
	case reflect.Bool:
		return rv.Bool()
	}

	return true
}

// toNumber coerces v to a float64. ok is false for values with no numeric reading
// (nil, booleans, non-numeric strings, composites).
func toNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case nil, bool:
		return math.NaN(), false
	case float64:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return math.NaN(), false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN(), false
		}
		return f, true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return math.NaN(), false
		}
		return f, true
	}

	rv := reflect.ValueOf(indirect(v))
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.String:
		return toNumber(rv.String())
	}

	return math.NaN(), false
}

// isNumeric reports whether v holds a Go numeric type (strings do not count)
func isNumeric(v interface{}) bool {
	if _, ok := v.(json.Number); ok {
		return true
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// sequence returns the elements of a slice or array value
func sequence(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case nil, string:
		return nil, false
	case []interface{}:
		return t, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	items := make([]interface{}, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

// stringify converts a resolved value to its textual form
func stringify(v interface{}) string {
	switch t := indirect(v).(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return formatNumber(t)
	case float32:
		return formatNumber(float64(t))
	case json.Number:
		return t.String()
	case time.Time:
		return t.Format(time.RFC3339)
	}

	if items, ok := sequence(v); ok {
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = stringify(item)
		}
		return strings.Join(parts, ",")
	}

	return raymond.Str(v)
}

// formatNumber prints a float with the shortest exact representation
func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
