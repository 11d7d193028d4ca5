package template

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aymerick/raymond"
	"go.uber.org/zap"
)

const (
	// DefaultMaxDepth is the default limit on nested {{#each}} blocks
	DefaultMaxDepth = 8

	// DefaultMaxOutput is the default limit on rendered output, in bytes
	DefaultMaxOutput = 4 << 20
)

var (
	// ErrDepthExceeded is returned when loops nest deeper than the configured limit
	ErrDepthExceeded = errors.New("loop nesting exceeds maximum depth")

	// ErrOutputTooLarge is returned when the rendered document grows past the configured output limit
	ErrOutputTooLarge = errors.New("rendered output exceeds maximum size")

	errUnknownHelper = errors.New("unknown helper")
)

// HelperFunc is a template helper. It receives its resolved arguments positionally;
// arguments that were not supplied, or that resolved to nothing, are absent or nil.
type HelperFunc func(args ...interface{}) (string, error)

type helper struct {
	fn      HelperFunc
	trusted bool
}

// Engine renders proposal templates
type Engine struct {
	helpers  map[string]helper
	mu       sync.RWMutex
	logger   *zap.Logger
	escape   bool
	legacyIf bool

	maxDepth  int
	maxOutput int
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the logger used to report helper failures and guard trips
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithHelpers registers custom helpers over the defaults
func WithHelpers(helpers map[string]HelperFunc) Option {
	return func(e *Engine) {
		for name, fn := range helpers {
			if err := e.AddHelper(name, fn); err != nil {
				e.logger.Warn("ignoring custom helper", zap.String("helper", name), zap.Error(err))
			}
		}
	}
}

// WithEscaping toggles HTML escaping of variable and helper output (on by default)
func WithEscaping(enabled bool) Option {
	return func(e *Engine) {
		e.escape = enabled
	}
}

// WithLegacyConditionals makes {{#if (helper ...)}} use plain string truthiness,
// so a helper returning "false" counts as true.
func WithLegacyConditionals(enabled bool) Option {
	return func(e *Engine) {
		e.legacyIf = enabled
	}
}

// WithMaxDepth limits loop nesting. Zero or less disables the limit.
func WithMaxDepth(depth int) Option {
	return func(e *Engine) {
		e.maxDepth = depth
	}
}

// WithMaxOutput limits the size of the rendered document in bytes, counting the
// template text and everything its loops add. Zero or less disables the limit.
func WithMaxOutput(size int) Option {
	return func(e *Engine) {
		e.maxOutput = size
	}
}

// NewEngine creates a new template engine with the default helpers registered
func NewEngine(opts ...Option) *Engine {
	engine := &Engine{
		helpers:   make(map[string]helper),
		logger:    zap.NewNop(),
		escape:    true,
		maxDepth:  DefaultMaxDepth,
		maxOutput: DefaultMaxOutput,
	}

	// Register default helpers before options so custom helpers can override them
	engine.registerHelpers()

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// AddHelper registers fn under name, replacing any helper with the same name
func (e *Engine) AddHelper(name string, fn HelperFunc) error {
	return e.addHelper(name, fn, false)
}

// AddTrustedHelper registers a helper whose output is inserted without HTML escaping
func (e *Engine) AddTrustedHelper(name string, fn HelperFunc) error {
	return e.addHelper(name, fn, true)
}

func (e *Engine) addHelper(name string, fn HelperFunc, trusted bool) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("invalid helper name %q", name)
	}
	if fn == nil {
		return fmt.Errorf("helper %s: function is nil", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.helpers[name] = helper{fn: fn, trusted: trusted}
	return nil
}

// RemoveHelper unregisters a helper. Removing an unknown name is a no-op.
func (e *Engine) RemoveHelper(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.helpers, name)
}

// HasHelper reports whether a helper is registered under name
func (e *Engine) HasHelper(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.helpers[name]
	return ok
}

// HelperNames returns the registered helper names in sorted order
func (e *Engine) HelperNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.helpers))
	for name := range e.helpers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) lookupHelper(name string) (helper, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.helpers[name]
	return h, ok
}

// renderState carries the guards through recursive loop renders. used counts the
// top-level text outside loops plus the output of finished top-level iterations;
// pending counts iterations of nested loops whose enclosing iteration has not
// finished yet.
type renderState struct {
	err     error
	used    int
	pending int
}

func (st *renderState) fail(err error) {
	if st.err == nil {
		st.err = err
	}
}

// MaxOutput returns the output limit in bytes; zero or less means unlimited
func (e *Engine) MaxOutput() int {
	return e.maxOutput
}

// Render renders a template against vars. vars is usually a map[string]interface{},
// but any map with string keys or struct with json tags is accepted.
//
// Missing data never produces an error. The returned error is non-nil only when a
// resource guard tripped, in which case the output rendered so far is still returned.
func (e *Engine) Render(templateStr string, vars interface{}) (string, error) {
	st := &renderState{}
	out := e.render(templateStr, &scope{vars: vars}, st, 0)
	if e.maxOutput > 0 && len(out) > e.maxOutput {
		st.fail(ErrOutputTooLarge)
	}
	return out, st.err
}

// render runs the four passes in their fixed order
func (e *Engine) render(s string, sc *scope, st *renderState, depth int) string {
	s = e.processHelpers(s, sc)
	s = e.processConditionals(s, sc)
	s = e.processLoops(s, sc, st, depth)
	s = e.processVariables(s, sc)
	return s
}

// processHelpers replaces {{name args}} directives whose name is a registered helper.
// Directives inside loop bodies are skipped; they are evaluated per element.
func (e *Engine) processHelpers(s string, sc *scope) string {
	tags := scanTags(s)
	if len(tags) == 0 {
		return s
	}
	top := topLevel(tags)

	var b strings.Builder
	last := 0

	for i, t := range tags {
		if !top[i] || t.kind() != kindExpr {
			continue
		}

		name, rest, ok := splitHelperCall(t.inner)
		if !ok {
			continue
		}

		out, trusted, err := e.invoke(name, splitArgs(rest), sc)
		if err != nil {
			if !errors.Is(err, errUnknownHelper) {
				e.logger.Error("helper failed",
					zap.String("helper", name),
					zap.String("directive", t.text(s)),
					zap.Error(err),
				)
			}
			continue
		}

		b.WriteString(s[last:t.start])
		b.WriteString(e.emit(out, trusted || t.raw))
		last = t.end
	}

	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

// processConditionals expands {{#if cond}}body{{/if}}. The body ends at the first
// {{/if}}, so conditionals do not nest. The body is emitted unchanged.
func (e *Engine) processConditionals(s string, sc *scope) string {
	tags := scanTags(s)
	if len(tags) == 0 {
		return s
	}
	top := topLevel(tags)

	var b strings.Builder
	last, matched := 0, false

	for i := 0; i < len(tags); i++ {
		open := tags[i]
		if !top[i] || open.kind() != kindIfOpen {
			continue
		}

		// Find the first close at the same loop level
		j := i + 1
		for ; j < len(tags); j++ {
			if top[j] && tags[j].kind() == kindIfClose {
				break
			}
		}
		if j == len(tags) {
			break
		}
		closer := tags[j]

		b.WriteString(s[last:open.start])
		if e.condition(open.argument(), sc) {
			b.WriteString(s[open.end:closer.start])
		}
		last, matched = closer.end, true
		i = j
	}

	if !matched {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

// condition evaluates the argument of an {{#if}}
func (e *Engine) condition(expr string, sc *scope) bool {
	if !isSubexpr(expr) {
		return truthy(sc.lookup(expr))
	}

	out, _, err := e.evalSubexpr(expr, sc)
	if err != nil {
		if !errors.Is(err, errUnknownHelper) {
			e.logger.Error("condition failed", zap.String("condition", expr), zap.Error(err))
		}
		return false
	}

	if !e.legacyIf && out == "false" {
		return false
	}
	return out != ""
}

// processLoops expands {{#each path}}body{{/each}}, rendering the body once per element
func (e *Engine) processLoops(s string, sc *scope, st *renderState, depth int) string {
	tags := scanTags(s)
	if len(tags) == 0 {
		return s
	}

	type loop struct{ open, closer tag }
	var loops []loop
	for i := 0; i < len(tags); i++ {
		if tags[i].kind() != kindEachOpen {
			continue
		}
		j := matchEachClose(tags, i)
		if j < 0 {
			continue
		}
		loops = append(loops, loop{tags[i], tags[j]})
		i = j
	}
	if len(loops) == 0 {
		return s
	}

	// At the top level the loop directives are replaced by their expansions
	if depth == 0 {
		st.used = len(s)
		for _, l := range loops {
			st.used -= l.closer.end - l.open.start
		}
	}

	var b strings.Builder
	last := 0
	for _, l := range loops {
		b.WriteString(s[last:l.open.start])
		b.WriteString(e.expand(l.open.argument(), s[l.open.end:l.closer.start], sc, st, depth))
		last = l.closer.end
	}
	b.WriteString(s[last:])
	return b.String()
}

// expand renders a loop body for each element of the sequence at path
func (e *Engine) expand(path, body string, sc *scope, st *renderState, depth int) string {
	items, ok := sequence(sc.lookup(path))
	if !ok || len(items) == 0 || st.err != nil {
		return ""
	}

	if e.maxDepth > 0 && depth+1 > e.maxDepth {
		e.logger.Warn("loop nesting limit reached",
			zap.String("path", path),
			zap.Int("max_depth", e.maxDepth),
		)
		st.fail(ErrDepthExceeded)
		return ""
	}

	var b strings.Builder
	for i, item := range items {
		iteration := &scope{vars: sc.vars, frame: &frame{item: item, index: i}}
		chunk := e.render(body, iteration, st, depth+1)
		b.WriteString(chunk)

		if depth == 0 {
			st.used += len(chunk)
		} else {
			st.pending += len(chunk)
		}

		if e.maxOutput > 0 && st.used+st.pending > e.maxOutput {
			e.logger.Warn("output limit reached",
				zap.String("path", path),
				zap.Int("max_output", e.maxOutput),
				zap.Int("iterations", i+1),
			)
			st.fail(ErrOutputTooLarge)
			break
		}
	}

	// The enclosing iteration counts this output once it finishes
	if depth > 0 {
		st.pending -= b.Len()
	}

	return b.String()
}

// processVariables substitutes the remaining {{path}} and {{{path}}} directives
func (e *Engine) processVariables(s string, sc *scope) string {
	tags := scanTags(s)
	if len(tags) == 0 {
		return s
	}

	var b strings.Builder
	last := 0

	for _, t := range tags {
		if t.kind() != kindExpr || !pathRe.MatchString(t.inner) {
			continue
		}

		b.WriteString(s[last:t.start])
		b.WriteString(e.emit(stringify(sc.lookup(t.inner)), t.raw))
		last = t.end
	}

	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

// invoke resolves the arguments and runs the helper registered under name
func (e *Engine) invoke(name string, rawArgs []string, sc *scope) (string, bool, error) {
	h, ok := e.lookupHelper(name)
	if !ok {
		return "", false, errUnknownHelper
	}

	args := make([]interface{}, len(rawArgs))
	for i, raw := range rawArgs {
		v, err := e.evalArg(raw, sc)
		if err != nil {
			return "", false, err
		}
		args[i] = v
	}

	out, err := callHelper(name, h.fn, args)
	return out, h.trusted, err
}

// evalArg classifies and resolves a single helper argument
func (e *Engine) evalArg(arg string, sc *scope) (interface{}, error) {
	switch {
	case isQuoted(arg):
		return arg[1 : len(arg)-1], nil
	case isSubexpr(arg):
		out, _, err := e.evalSubexpr(arg, sc)
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	if n, ok := parseNumber(arg); ok {
		return n, nil
	}
	return sc.lookup(arg), nil
}

// evalSubexpr runs a parenthesised helper call such as (calcTotal a, b)
func (e *Engine) evalSubexpr(expr string, sc *scope) (string, bool, error) {
	inner := strings.TrimSpace(expr[1 : len(expr)-1])

	name, rest, ok := splitHelperCall(inner)
	if !ok {
		// A bare name is a call with no arguments
		if !identRe.MatchString(inner) {
			return "", false, fmt.Errorf("malformed sub-expression %s", expr)
		}
		name, rest = inner, ""
	}

	return e.invoke(name, splitArgs(rest), sc)
}

// callHelper runs fn, turning a panic into an error
func callHelper(name string, fn HelperFunc, args []interface{}) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("helper %s panicked: %v", name, r)
		}
	}()
	return fn(args...)
}

// braceEscaper keeps substituted data from forming new directives in later passes
var braceEscaper = strings.NewReplacer("{", "&#123;", "}", "&#125;")

// emit applies output escaping. Trusted output keeps its markup but still has
// braces neutralised.
func (e *Engine) emit(out string, trusted bool) string {
	switch {
	case !e.escape:
		return out
	case trusted:
		return braceEscaper.Replace(out)
	}
	return braceEscaper.Replace(raymond.Escape(out))
}
