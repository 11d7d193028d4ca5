package proposal

import "time"

// Party identifies the client or the vendor of a proposal
type Party struct {
	Nome      string `json:"nome"`
	Empresa   string `json:"empresa,omitempty"`
	Documento string `json:"documento,omitempty"`
	Email     string `json:"email,omitempty"`
	Telefone  string `json:"telefone,omitempty"`
	Endereco  string `json:"endereco,omitempty"`
	Logo      string `json:"logo,omitempty"`
}

// Milestone is one step of the project schedule
type Milestone struct {
	Etapa     string `json:"etapa"`
	Descricao string `json:"descricao,omitempty"`
	Prazo     string `json:"prazo,omitempty"`
}

// Project holds the project metadata
type Project struct {
	Titulo     string      `json:"titulo"`
	Descricao  string      `json:"descricao,omitempty"`
	Objetivo   string      `json:"objetivo,omitempty"`
	Escopo     string      `json:"escopo,omitempty"`
	Cronograma []Milestone `json:"cronograma,omitempty"`
	Validade   string      `json:"validade,omitempty"`
	Data       string      `json:"data,omitempty"`
}

// PriceItem is a pricing line. Quantities and prices are not range checked.
type PriceItem struct {
	Name      string   `json:"name"`
	Quantity  float64  `json:"quantity"`
	UnitPrice float64  `json:"unit_price"`
	Discount  *float64 `json:"discount,omitempty"`
	TaxRate   *float64 `json:"tax_rate,omitempty"`
	Category  string   `json:"category,omitempty"`
}

// Pricing holds the line items and payment terms
type Pricing struct {
	Itens              []PriceItem `json:"itens"`
	Moeda              string      `json:"moeda,omitempty"`
	CondicoesPagamento string      `json:"condicoes_pagamento,omitempty"`
	TotalFormatado     string      `json:"total_formatado,omitempty"`
}

// Variables is the data a proposal is rendered against
type Variables struct {
	Cliente    Party   `json:"cliente"`
	Fornecedor Party   `json:"fornecedor"`
	Projeto    Project `json:"projeto"`
	Precos     Pricing `json:"precos"`
}

// Block is a typed reference into the block catalog. When, if set, is a CEL
// expression that must hold for the block to be rendered.
type Block struct {
	ID    string                 `json:"id,omitempty"`
	Type  string                 `json:"type"`
	Props map[string]interface{} `json:"props,omitempty"`
	When  string                 `json:"when,omitempty"`
}

// Template is a stored, reusable list of blocks
type Template struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Blocks      []Block `json:"blocks"`
}

// Proposal is a document ready to render. Blocks, when present, take precedence
// over those of the template named by TemplateID.
type Proposal struct {
	ID         string    `json:"id"`
	TemplateID string    `json:"template_id,omitempty"`
	Blocks     []Block   `json:"blocks,omitempty"`
	Variables  Variables `json:"variables"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// Context returns the variables as the nested map paths are resolved against.
// Optional item fields that are unset are omitted.
func (v Variables) Context() map[string]interface{} {
	return map[string]interface{}{
		"cliente":    v.Cliente.context(),
		"fornecedor": v.Fornecedor.context(),
		"projeto":    v.Projeto.context(),
		"precos":     v.Precos.context(),
	}
}

func (p Party) context() map[string]interface{} {
	return map[string]interface{}{
		"nome":      p.Nome,
		"empresa":   p.Empresa,
		"documento": p.Documento,
		"email":     p.Email,
		"telefone":  p.Telefone,
		"endereco":  p.Endereco,
		"logo":      p.Logo,
	}
}

func (p Project) context() map[string]interface{} {
	schedule := make([]interface{}, len(p.Cronograma))
	for i, m := range p.Cronograma {
		schedule[i] = map[string]interface{}{
			"etapa":     m.Etapa,
			"descricao": m.Descricao,
			"prazo":     m.Prazo,
		}
	}

	return map[string]interface{}{
		"titulo":     p.Titulo,
		"descricao":  p.Descricao,
		"objetivo":   p.Objetivo,
		"escopo":     p.Escopo,
		"cronograma": schedule,
		"validade":   p.Validade,
		"data":       p.Data,
	}
}

func (p Pricing) context() map[string]interface{} {
	items := make([]interface{}, len(p.Itens))
	for i, item := range p.Itens {
		items[i] = item.context()
	}

	return map[string]interface{}{
		"itens":               items,
		"moeda":               p.Moeda,
		"condicoes_pagamento": p.CondicoesPagamento,
		"total_formatado":     p.TotalFormatado,
	}
}

func (it PriceItem) context() map[string]interface{} {
	m := map[string]interface{}{
		"name":       it.Name,
		"quantity":   it.Quantity,
		"unit_price": it.UnitPrice,
		"category":   it.Category,
	}
	if it.Discount != nil {
		m["discount"] = *it.Discount
	}
	if it.TaxRate != nil {
		m["tax_rate"] = *it.TaxRate
	}
	return m
}
