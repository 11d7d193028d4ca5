package template

import "strings"

// tagKind classifies a directive by its leading keyword
type tagKind int

const (
	kindExpr tagKind = iota
	kindIfOpen
	kindIfClose
	kindEachOpen
	kindEachClose
	kindOther
)

// tag is a single {{...}} or {{{...}}} directive located in a template string
type tag struct {
	start int
	end   int
	inner string
	raw   bool
}

// text returns the directive exactly as written in s
func (t tag) text(s string) string {
	return s[t.start:t.end]
}

// kind reports which directive form the tag is
func (t tag) kind() tagKind {
	if t.raw {
		return kindExpr
	}

	switch {
	case t.inner == "/if":
		return kindIfClose
	case t.inner == "/each":
		return kindEachClose
	case keyword(t.inner) == "#if":
		return kindIfOpen
	case keyword(t.inner) == "#each":
		return kindEachOpen
	case strings.HasPrefix(t.inner, "#"), strings.HasPrefix(t.inner, "/"), strings.HasPrefix(t.inner, "!"):
		return kindOther
	}
	return kindExpr
}

// argument returns what follows the block keyword, e.g. "precos.itens" for {{#each precos.itens}}
func (t tag) argument() string {
	kw := keyword(t.inner)
	return strings.TrimSpace(t.inner[len(kw):])
}

func keyword(inner string) string {
	if i := strings.IndexAny(inner, " \t\r\n"); i >= 0 {
		return inner[:i]
	}
	return inner
}

// scanTags returns every directive in s in order of appearance.
// An opening delimiter without a matching close ends the scan.
func scanTags(s string) []tag {
	var tags []tag
	pos := 0

	for pos < len(s) {
		i := strings.Index(s[pos:], "{{")
		if i < 0 {
			break
		}
		start := pos + i

		raw := strings.HasPrefix(s[start:], "{{{")
		open, closer := 2, "}}"
		if raw {
			open, closer = 3, "}}}"
		}

		j := strings.Index(s[start+open:], closer)
		if j < 0 {
			break
		}
		body := s[start+open : start+open+j]

		// "{{ {{x}}": the first delimiter is literal text
		if strings.Contains(body, "{{") {
			pos = start + 2
			continue
		}

		end := start + open + j + len(closer)
		tags = append(tags, tag{
			start: start,
			end:   end,
			inner: strings.TrimSpace(body),
			raw:   raw,
		})
		pos = end
	}

	return tags
}

// topLevel marks the tags that sit outside every {{#each}} body.
// The each tags themselves count as top level when they open or close an outermost loop.
func topLevel(tags []tag) []bool {
	top := make([]bool, len(tags))
	depth := 0

	for i, t := range tags {
		switch t.kind() {
		case kindEachOpen:
			top[i] = depth == 0
			depth++
		case kindEachClose:
			if depth > 0 {
				depth--
			}
			top[i] = depth == 0
		default:
			top[i] = depth == 0
		}
	}

	return top
}

// matchEachClose returns the index of the {{/each}} that closes tags[open], honouring nesting.
func matchEachClose(tags []tag, open int) int {
	depth := 0
	for k := open + 1; k < len(tags); k++ {
		switch tags[k].kind() {
		case kindEachOpen:
			depth++
		case kindEachClose:
			if depth == 0 {
				return k
			}
			depth--
		}
	}
	return -1
}
