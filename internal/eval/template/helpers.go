package template

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// registerHelpers registers the default helpers
func (e *Engine) registerHelpers() {
	for name, fn := range map[string]HelperFunc{
		// formatting
		"currency": currencyHelper,
		"percent":  percentHelper,
		"date":     dateHelper,

		// arithmetic
		"calcTotal": calcTotalHelper,
		"add":       addHelper,

		// strings
		"uppercase": uppercaseHelper,
		"lowercase": lowercaseHelper,
		"trim":      trimHelper,
		"default":   defaultHelper,
		"contains":  containsHelper,
		"join":      joinHelper,
		"len":       lenHelper,

		// logic
		"if": ifHelper,
		"eq": eqHelper,
		"ne": neHelper,
		"gt": gtHelper,
		"lt": ltHelper,
	} {
		e.helpers[name] = helper{fn: fn}
	}

	for name, fn := range map[string]HelperFunc{
		"raw":      rawHelper,
		"sanitize": sanitizeHelper,
		"markdown": markdownHelper,
	} {
		e.helpers[name] = helper{fn: fn, trusted: true}
	}
}

// arg returns the i-th argument, or nil when it was not supplied
func arg(args []interface{}, i int) interface{} {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func boolString(b bool) string {
	return strconv.FormatBool(b)
}

// currency formats a number as pt-BR currency: {{currency value "USD"}}
func currencyHelper(args ...interface{}) (string, error) {
	value, ok := toNumber(arg(args, 0))
	if !ok || math.IsNaN(value) {
		return "0,00", nil
	}

	code := "BRL"
	if c, ok := arg(args, 1).(string); ok && strings.TrimSpace(c) != "" {
		code = strings.ToUpper(strings.TrimSpace(c))
	}

	return formatCurrency(value, code), nil
}

// percent formats a number with a fixed number of decimals: {{percent value 1}}
func percentHelper(args ...interface{}) (string, error) {
	value, ok := toNumber(arg(args, 0))
	if !ok || math.IsNaN(value) {
		return "0%", nil
	}

	decimals := 2
	if d := arg(args, 1); d != nil {
		n, ok := toNumber(d)
		if !ok || n < 0 || n > 100 {
			return "", fmt.Errorf("percent: decimals must be between 0 and 100, got %v", d)
		}
		decimals = int(n)
	}

	return strconv.FormatFloat(value, 'f', decimals, 64) + "%", nil
}

// date formats a date value: {{date projeto.data "dd/MM/yyyy"}}
func dateHelper(args ...interface{}) (string, error) {
	t, ok := parseDate(arg(args, 0))
	if !ok {
		return "", nil
	}

	format := "dd/MM/yyyy"
	if f, ok := arg(args, 1).(string); ok && f != "" {
		format = f
	}

	return formatDate(t, format), nil
}

// calcTotal computes quantity * unitPrice - discount: {{calcTotal this.quantity, this.unit_price, this.discount}}
func calcTotalHelper(args ...interface{}) (string, error) {
	quantity, qok := toNumber(arg(args, 0))
	unitPrice, pok := toNumber(arg(args, 1))

	discount, dok := 0.0, true
	if d := arg(args, 2); d != nil {
		discount, dok = toNumber(d)
	}

	if !qok || !pok || !dok {
		return "NaN", nil
	}
	if isSpecial(quantity) || isSpecial(unitPrice) || isSpecial(discount) {
		return formatNumber(quantity*unitPrice - discount), nil
	}

	total := decimal.NewFromFloat(quantity).
		Mul(decimal.NewFromFloat(unitPrice)).
		Sub(decimal.NewFromFloat(discount))
	return total.String(), nil
}

// add sums two numbers: {{add index 1}}
func addHelper(args ...interface{}) (string, error) {
	a, aok := toNumber(arg(args, 0))
	b, bok := toNumber(arg(args, 1))
	if !aok || !bok {
		return "NaN", nil
	}
	if isSpecial(a) || isSpecial(b) {
		return formatNumber(a + b), nil
	}
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).String(), nil
}

func isSpecial(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}

// uppercase helper
func uppercaseHelper(args ...interface{}) (string, error) {
	s, ok := arg(args, 0).(string)
	if !ok {
		return "", nil
	}
	return strings.ToUpper(s), nil
}

// lowercase helper
func lowercaseHelper(args ...interface{}) (string, error) {
	s, ok := arg(args, 0).(string)
	if !ok {
		return "", nil
	}
	return strings.ToLower(s), nil
}

// trim helper
func trimHelper(args ...interface{}) (string, error) {
	s, ok := arg(args, 0).(string)
	if !ok {
		return "", nil
	}
	return strings.TrimSpace(s), nil
}

// default returns the fallback when the value is missing or empty: {{default cliente.telefone "-"}}
func defaultHelper(args ...interface{}) (string, error) {
	value := arg(args, 0)
	if value == nil || value == "" {
		return stringify(arg(args, 1)), nil
	}
	return stringify(value), nil
}

// contains reports whether a string contains a substring
func containsHelper(args ...interface{}) (string, error) {
	s, ok := arg(args, 0).(string)
	sub, subOK := arg(args, 1).(string)
	if !ok || !subOK {
		return boolString(false), nil
	}
	return boolString(strings.Contains(s, sub)), nil
}

// join joins list elements with a separator (default ", ")
func joinHelper(args ...interface{}) (string, error) {
	items, ok := sequence(arg(args, 0))
	if !ok {
		return "", nil
	}

	sep := ", "
	if s, ok := arg(args, 1).(string); ok {
		sep = s
	}

	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = stringify(item)
	}
	return strings.Join(parts, sep), nil
}

// len returns the length of a string, list or map
func lenHelper(args ...interface{}) (string, error) {
	value := arg(args, 0)
	if s, ok := value.(string); ok {
		return strconv.Itoa(utf8.RuneCountInString(s)), nil
	}
	if items, ok := sequence(value); ok {
		return strconv.Itoa(len(items)), nil
	}
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Map {
		return strconv.Itoa(rv.Len()), nil
	}
	return "0", nil
}

// if is the inline ternary: {{if cliente.email "sim" "não"}}
func ifHelper(args ...interface{}) (string, error) {
	if truthy(arg(args, 0)) {
		return stringify(arg(args, 1)), nil
	}
	return stringify(arg(args, 2)), nil
}

// eq reports strict equality
func eqHelper(args ...interface{}) (string, error) {
	return boolString(strictEqual(arg(args, 0), arg(args, 1))), nil
}

// ne reports strict inequality
func neHelper(args ...interface{}) (string, error) {
	return boolString(!strictEqual(arg(args, 0), arg(args, 1))), nil
}

// gt helper
func gtHelper(args ...interface{}) (string, error) {
	c, ok := compare(arg(args, 0), arg(args, 1))
	return boolString(ok && c > 0), nil
}

// lt helper
func ltHelper(args ...interface{}) (string, error) {
	c, ok := compare(arg(args, 0), arg(args, 1))
	return boolString(ok && c < 0), nil
}

// strictEqual compares without type coercion, except between Go numeric types
func strictEqual(a, b interface{}) bool {
	a, b = indirect(a), indirect(b)

	switch {
	case a == nil || b == nil:
		return a == nil && b == nil
	case isNumeric(a) && isNumeric(b):
		x, _ := toNumber(a)
		y, _ := toNumber(b)
		return x == y
	}

	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return false
}

// compare orders two values. Two strings compare lexically, anything else numerically.
func compare(a, b interface{}) (int, bool) {
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	}

	x, xok := toNumber(a)
	y, yok := toNumber(b)
	if !xok || !yok || math.IsNaN(x) || math.IsNaN(y) {
		return 0, false
	}

	switch {
	case x < y:
		return -1, true
	case x > y:
		return 1, true
	}
	return 0, true
}

// raw inserts a value without escaping: {{raw projeto.escopo_html}}
func rawHelper(args ...interface{}) (string, error) {
	return stringify(arg(args, 0)), nil
}

var (
	richTextPolicyOnce sync.Once
	richTextPolicy     *bluemonday.Policy

	markdownOnce     sync.Once
	markdownRenderer goldmark.Markdown
)

func richTextSanitizer() *bluemonday.Policy {
	richTextPolicyOnce.Do(func() {
		richTextPolicy = bluemonday.UGCPolicy()
	})
	return richTextPolicy
}

func markdownConverter() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownRenderer = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
		)
	})
	return markdownRenderer
}

// sanitize inserts user-authored HTML after stripping anything unsafe
func sanitizeHelper(args ...interface{}) (string, error) {
	return richTextSanitizer().Sanitize(stringify(arg(args, 0))), nil
}

// markdown converts markdown text to sanitized HTML: {{markdown projeto.escopo}}
func markdownHelper(args ...interface{}) (string, error) {
	src := stringify(arg(args, 0))
	if src == "" {
		return "", nil
	}

	var buf bytes.Buffer
	if err := markdownConverter().Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("markdown conversion failed: %w", err)
	}
	return strings.TrimSpace(richTextSanitizer().Sanitize(buf.String())), nil
}
