package template

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	// helperCallRe matches "name args..." inside a directive
	helperCallRe = regexp.MustCompile(`(?s)^([A-Za-z_$][\w$]*)\s+(.+)$`)

	// identRe matches a helper name
	identRe = regexp.MustCompile(`^[A-Za-z_$][\w$]*$`)

	// pathRe matches a dotted variable path such as precos.itens.0.name
	pathRe = regexp.MustCompile(`^[A-Za-z_$@][\w$@]*(?:\.[\w$@]+)*$`)
)

// splitHelperCall splits "currency precos.total, 'USD'" into its name and argument list
func splitHelperCall(inner string) (name, args string, ok bool) {
	m := helperCallRe.FindStringSubmatch(inner)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// splitArgs splits a helper argument list on commas and whitespace.
// Separators inside single or double quotes, or inside parentheses, are kept.
func splitArgs(s string) []string {
	var (
		args  []string
		cur   strings.Builder
		quote rune
		depth int
	)

	flush := func() {
		if seg := strings.TrimSpace(cur.String()); seg != "" {
			args = append(args, seg)
		}
		cur.Reset()
	}

	for _, r := range s {
		switch {
		case quote != 0:
			cur.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
			cur.WriteRune(r)
		case r == '(':
			depth++
			cur.WriteRune(r)
		case r == ')':
			if depth > 0 {
				depth--
			}
			cur.WriteRune(r)
		case depth == 0 && (r == ',' || unicode.IsSpace(r)):
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()

	return args
}

// isQuoted reports whether arg is a complete single- or double-quoted literal
func isQuoted(arg string) bool {
	if len(arg) < 2 {
		return false
	}
	q := arg[0]
	return (q == '"' || q == '\'') && arg[len(arg)-1] == q
}

// isSubexpr reports whether arg is a parenthesised helper call
func isSubexpr(arg string) bool {
	return len(arg) >= 2 && arg[0] == '(' && arg[len(arg)-1] == ')'
}

// parseNumber reads a numeric literal argument
func parseNumber(arg string) (float64, bool) {
	f, err := strconv.ParseFloat(arg, 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
