package proposal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/jsonc"
)

var (
	// ErrEmptyDocument is returned when the input holds no JSON value
	ErrEmptyDocument = errors.New("empty document")

	// ErrMissingBlockType is returned for a block without a type
	ErrMissingBlockType = errors.New("block type is required")
)

// ParseTemplate decodes and validates a template document
func ParseTemplate(data []byte) (*Template, error) {
	var tpl Template
	if err := decodeStrict(data, &tpl); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	if strings.TrimSpace(tpl.Name) == "" {
		return nil, fmt.Errorf("failed to parse template: name is required")
	}
	if len(tpl.Blocks) == 0 {
		return nil, fmt.Errorf("failed to parse template %q: at least one block is required", tpl.Name)
	}
	if err := normalizeBlocks(tpl.Blocks); err != nil {
		return nil, fmt.Errorf("failed to parse template %q: %w", tpl.Name, err)
	}
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}

	return &tpl, nil
}

// ParseVariables decodes a variables document
func ParseVariables(data []byte) (*Variables, error) {
	var vars Variables
	if err := decodeStrict(data, &vars); err != nil {
		return nil, fmt.Errorf("failed to parse variables: %w", err)
	}
	return &vars, nil
}

// ParseProposal decodes and validates a proposal document
func ParseProposal(data []byte) (*Proposal, error) {
	var p Proposal
	if err := decodeStrict(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse proposal: %w", err)
	}

	if len(p.Blocks) == 0 && p.TemplateID == "" {
		return nil, fmt.Errorf("failed to parse proposal: either blocks or template_id is required")
	}
	if err := normalizeBlocks(p.Blocks); err != nil {
		return nil, fmt.Errorf("failed to parse proposal: %w", err)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	return &p, nil
}

// normalizeBlocks checks block types and assigns ids to blocks that have none
func normalizeBlocks(blocks []Block) error {
	for i := range blocks {
		blocks[i].Type = strings.TrimSpace(blocks[i].Type)
		if blocks[i].Type == "" {
			return fmt.Errorf("block %d: %w", i, ErrMissingBlockType)
		}
		if blocks[i].ID == "" {
			blocks[i].ID = uuid.NewString()
		}
	}
	return nil
}

// decodeStrict decodes a single JSONC value into v, rejecting unknown fields
func decodeStrict(data []byte, v interface{}) error {
	plain := jsonc.ToJSON(data)
	if len(bytes.TrimSpace(plain)) == 0 {
		return ErrEmptyDocument
	}

	dec := json.NewDecoder(bytes.NewReader(plain))
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("unexpected data after the document")
	}

	return nil
}
