package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aescanero/dago-node-proposal/internal/proposal"
	"github.com/redis/go-redis/v9"
)

const (
	proposalPrefix = "proposal:doc:"
	templatePrefix = "proposal:template:"
	renderPrefix   = "proposal:render:"
)

// ErrNotFound is returned when a key does not exist
var ErrNotFound = errors.New("not found")

// ProposalStore stores proposals as JSON documents
type ProposalStore struct {
	client redis.Cmdable
}

// NewProposalStore creates a new proposal store
func NewProposalStore(client redis.Cmdable) *ProposalStore {
	return &ProposalStore{client: client}
}

// Save stores a proposal under its id
func (s *ProposalStore) Save(ctx context.Context, p *proposal.Proposal) error {
	if p.ID == "" {
		return fmt.Errorf("failed to save proposal: id is required")
	}
	return saveJSON(ctx, s.client, proposalPrefix+p.ID, p)
}

// Load retrieves a proposal by id
func (s *ProposalStore) Load(ctx context.Context, id string) (*proposal.Proposal, error) {
	var p proposal.Proposal
	if err := loadJSON(ctx, s.client, proposalPrefix+id, &p); err != nil {
		return nil, fmt.Errorf("failed to load proposal %s: %w", id, err)
	}
	return &p, nil
}

// Delete removes a proposal
func (s *ProposalStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, proposalPrefix+id).Err()
}

// TemplateStore stores block templates as JSON documents
type TemplateStore struct {
	client redis.Cmdable
}

// NewTemplateStore creates a new template store
func NewTemplateStore(client redis.Cmdable) *TemplateStore {
	return &TemplateStore{client: client}
}

// Save stores a template under its id
func (s *TemplateStore) Save(ctx context.Context, tpl *proposal.Template) error {
	if tpl.ID == "" {
		return fmt.Errorf("failed to save template: id is required")
	}
	return saveJSON(ctx, s.client, templatePrefix+tpl.ID, tpl)
}

// Load retrieves a template by id
func (s *TemplateStore) Load(ctx context.Context, id string) (*proposal.Template, error) {
	var tpl proposal.Template
	if err := loadJSON(ctx, s.client, templatePrefix+id, &tpl); err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", id, err)
	}
	return &tpl, nil
}

// Delete removes a template
func (s *TemplateStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, templatePrefix+id).Err()
}

func saveJSON(ctx context.Context, client redis.Cmdable, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func loadJSON(ctx context.Context, client redis.Cmdable, key string, v interface{}) error {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}
