// Package blocks renders proposal documents from ordered lists of typed blocks.
//
// The Catalog maps a block type (hero, objective, scope, pricing, timeline, terms,
// signature, text, divider) to a template string. Built-in templates can be
// overridden from a YAML file, which can be watched and reloaded while running:
//
//	blocks:
//	  hero: |
//	    <h1>{{default props.title projeto.titulo}}</h1>
//
// The Renderer renders each block with the template engine against the proposal
// variables plus two per-block namespaces:
//   - props: the block's own props
//   - block: {id, type}
//
// A block may carry a CEL "when" expression; the block is skipped when it
// evaluates to false.
//
// Example usage:
//
//	renderer := blocks.NewRenderer(template.NewEngine(), blocks.NewCatalog(), cel.NewEvaluator(), logger)
//
//	html, err := renderer.RenderBlocks(ctx, tpl.Blocks, vars.Context())
package blocks
