// Package template provides the proposal template engine: a small interpreter for a
// Handlebars-like directive language used to merge proposal variables into HTML fragments.
//
// A template is rendered in four passes over the whole string, always in this order:
//
//  1. helper calls        {{currency precos.total, "USD"}}
//  2. conditional blocks  {{#if cliente.email}} ... {{/if}}
//  3. loop blocks         {{#each precos.itens}} ... {{/each}}
//  4. plain variables     {{cliente.nome}} and {{{projeto.escopo_html}}}
//
// Loop bodies are rendered with the full four-pass pipeline once per element, with
// "this" bound to the element and "index" to its zero-based position. Directives inside
// a loop body are left for that per-element render.
//
// Rendering is fail-soft: unknown helpers and helpers that fail leave the directive text
// in place, missing variables render as empty strings. The only errors returned by Render
// come from the resource guards (loop depth and output size).
//
// Example usage:
//
//	engine := template.NewEngine(template.WithLogger(logger))
//
//	vars := map[string]interface{}{
//	    "cliente": map[string]interface{}{"nome": "ACME"},
//	    "precos":  map[string]interface{}{"total": 1234.5},
//	}
//
//	out, err := engine.Render("<p>{{uppercase cliente.nome}}: {{currency precos.total}}</p>", vars)
//	// out: <p>ACME: R$ 1.234,50</p>
//
// Built-in helpers:
//   - currency, percent, date - pt-BR formatting of money, percentages and dates
//   - calcTotal, add - decimal arithmetic
//   - uppercase, lowercase, trim, default, len, join, contains
//   - if - inline ternary
//   - eq, ne, gt, lt - comparisons returning "true" or "false"
//   - raw, sanitize, markdown - trusted output that is not HTML-escaped
//
// Sub-expressions are accepted as helper arguments and as {{#if}} conditions:
//
//	{{currency (calcTotal this.quantity, this.unit_price, this.discount)}}
//	{{#if (gt precos.desconto 0)}}...{{/if}}
package template
