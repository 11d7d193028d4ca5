package blocks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aescanero/dago-node-proposal/internal/eval/cel"
	"github.com/aescanero/dago-node-proposal/internal/eval/template"
	"github.com/aescanero/dago-node-proposal/internal/proposal"
	"go.uber.org/zap"
)

// Renderer renders ordered block lists into a single HTML document
type Renderer struct {
	engine  *template.Engine
	catalog *Catalog
	rules   *cel.Evaluator
	logger  *zap.Logger
}

// NewRenderer creates a new block renderer. rules may be nil, in which case
// "when" expressions are ignored and every block is rendered.
func NewRenderer(engine *template.Engine, catalog *Catalog, rules *cel.Evaluator, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{
		engine:  engine,
		catalog: catalog,
		rules:   rules,
		logger:  logger,
	}
}

// Catalog returns the catalog the renderer resolves block types against
func (r *Renderer) Catalog() *Catalog {
	return r.catalog
}

// RenderBlocks renders each block against the variables and concatenates the
// fragments in block order. Unknown block types contribute nothing.
//
// Like the engine, rendering is fail-soft. The returned error is non-nil only
// when a resource guard tripped. A block that nests loops too deeply does not
// stop the blocks after it, but once the document passes the engine's output
// limit no further blocks are rendered.
func (r *Renderer) RenderBlocks(ctx context.Context, blocks []proposal.Block, vars map[string]interface{}) (string, error) {
	var (
		b    strings.Builder
		errs []error
	)

	for i, block := range blocks {
		if err := ctx.Err(); err != nil {
			return b.String(), err
		}

		tmpl, ok := r.catalog.Get(block.Type)
		if !ok {
			r.logger.Debug("unknown block type",
				zap.Int("index", i),
				zap.String("block_id", block.ID),
				zap.String("block_type", block.Type),
			)
			continue
		}

		blockCtx := blockContext(vars, block)

		if !r.visible(ctx, block, blockCtx) {
			continue
		}

		out, err := r.engine.Render(tmpl, blockCtx)
		if err != nil {
			r.logger.Warn("block render limit reached",
				zap.String("block_id", block.ID),
				zap.String("block_type", block.Type),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("block %d (%s): %w", i, block.Type, err))
		}
		b.WriteString(out)

		if limit := r.engine.MaxOutput(); limit > 0 && b.Len() > limit {
			if !errors.Is(err, template.ErrOutputTooLarge) {
				errs = append(errs, fmt.Errorf("block %d (%s): %w", i, block.Type, template.ErrOutputTooLarge))
			}
			r.logger.Warn("document output limit reached",
				zap.Int("max_output", limit),
				zap.Int("blocks_rendered", i+1),
				zap.Int("blocks", len(blocks)),
			)
			break
		}
	}

	return b.String(), errors.Join(errs...)
}

// visible evaluates the block's when expression. Evaluation errors show the block.
func (r *Renderer) visible(ctx context.Context, block proposal.Block, blockCtx map[string]interface{}) bool {
	if block.When == "" || r.rules == nil {
		return true
	}

	show, err := r.rules.EvaluateBool(ctx, block.When, blockCtx)
	if err != nil {
		r.logger.Error("failed to evaluate block rule",
			zap.String("block_id", block.ID),
			zap.String("when", block.When),
			zap.Error(err),
		)
		return true
	}

	r.logger.Debug("block rule evaluated",
		zap.String("block_id", block.ID),
		zap.Bool("visible", show),
	)
	return show
}

// blockContext layers the block's props and identity over the shared variables.
// The shared map is not modified.
func blockContext(vars map[string]interface{}, block proposal.Block) map[string]interface{} {
	ctx := make(map[string]interface{}, len(vars)+2)
	for k, v := range vars {
		ctx[k] = v
	}

	props := block.Props
	if props == nil {
		props = map[string]interface{}{}
	}
	ctx["props"] = props
	ctx["block"] = map[string]interface{}{
		"id":   block.ID,
		"type": block.Type,
	}

	return ctx
}
