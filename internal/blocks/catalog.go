package blocks

import (
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/aescanero/dago-node-proposal/internal/eval/cel"
	"github.com/aescanero/dago-node-proposal/internal/proposal"
	"github.com/zeebo/blake3"
)

// Catalog maps block types to template strings. It is safe for concurrent use.
type Catalog struct {
	mu          sync.RWMutex
	templates   map[string]string
	fingerprint string
}

// NewCatalog creates a catalog holding the built-in block templates
func NewCatalog() *Catalog {
	c := &Catalog{}
	c.replace(nil)
	return c
}

// Get returns the template registered for a block type
func (c *Catalog) Get(blockType string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tmpl, ok := c.templates[blockType]
	return tmpl, ok
}

// Set registers or replaces the template of a block type
func (c *Catalog) Set(blockType, tmpl string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.templates[blockType] = tmpl
	c.fingerprint = fingerprint(c.templates)
}

// Types returns the registered block types, sorted
func (c *Catalog) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	types := make([]string, 0, len(c.templates))
	for t := range c.templates {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Fingerprint returns a hex BLAKE3 digest of the catalog content.
// It changes whenever any template changes.
func (c *Catalog) Fingerprint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fingerprint
}

// Validate checks that every block of a template has a known type and that its
// visibility rule, if any, compiles
func (c *Catalog) Validate(rules *cel.Evaluator, blocks []proposal.Block) error {
	for i, b := range blocks {
		if _, ok := c.Get(b.Type); !ok {
			return fmt.Errorf("block %d (%s): unknown block type %q", i, b.ID, b.Type)
		}
		if b.When == "" {
			continue
		}
		if rules == nil {
			return fmt.Errorf("block %d (%s): visibility rules are disabled", i, b.ID)
		}
		if err := rules.ValidateExpression(b.When); err != nil {
			return fmt.Errorf("block %d (%s): invalid when expression: %w", i, b.ID, err)
		}
	}
	return nil
}

// replace resets the catalog to the built-ins overlaid with overrides
func (c *Catalog) replace(overrides map[string]string) {
	templates := make(map[string]string, len(builtin)+len(overrides))
	for t, tmpl := range builtin {
		templates[t] = tmpl
	}
	for t, tmpl := range overrides {
		templates[t] = tmpl
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.templates = templates
	c.fingerprint = fingerprint(templates)
}

func fingerprint(templates map[string]string) string {
	types := make([]string, 0, len(templates))
	for t := range templates {
		types = append(types, t)
	}
	sort.Strings(types)

	h := blake3.New()
	for _, t := range types {
		fmt.Fprintf(h, "%d:%s%d:%s", len(t), t, len(templates[t]), templates[t])
	}
	return hex.EncodeToString(h.Sum(nil))
}
