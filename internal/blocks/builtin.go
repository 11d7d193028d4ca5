package blocks

// Built-in block types
const (
	TypeHero      = "hero"
	TypeObjective = "objective"
	TypeScope     = "scope"
	TypePricing   = "pricing"
	TypeTimeline  = "timeline"
	TypeTerms     = "terms"
	TypeSignature = "signature"
	TypeText      = "text"
	TypeDivider   = "divider"
)

// builtin holds the default template of every built-in block type.
// Each template sees the proposal variables plus "props" and "block".
var builtin = map[string]string{
	TypeHero: `<section class="block block-hero" id="{{block.id}}">
  {{#if fornecedor.logo}}<img class="logo" src="{{fornecedor.logo}}" alt="{{fornecedor.nome}}">{{/if}}
  <h1>{{default props.title projeto.titulo}}</h1>
  <p class="subtitle">Proposta comercial para {{cliente.nome}}</p>
  {{#if projeto.data}}<p class="date">{{date projeto.data}}</p>{{/if}}
</section>
`,

	TypeObjective: `<section class="block block-objective" id="{{block.id}}">
  <h2>{{default props.title "Objetivo"}}</h2>
  <p>{{projeto.objetivo}}</p>
</section>
`,

	TypeScope: `<section class="block block-scope" id="{{block.id}}">
  <h2>{{default props.title "Escopo"}}</h2>
  {{#if projeto.descricao}}<p>{{projeto.descricao}}</p>{{/if}}
  <div class="scope">{{markdown projeto.escopo}}</div>
</section>
`,

	TypePricing: `<section class="block block-pricing" id="{{block.id}}">
  <h2>{{default props.title "Investimento"}}</h2>
  <table>
    <thead><tr><th>Item</th><th>Qtd</th><th>Valor unitário</th><th>Total</th></tr></thead>
    <tbody>
      {{#each precos.itens}}<tr><td>{{this.name}}</td><td>{{this.quantity}}</td><td>{{currency this.unit_price, precos.moeda}}</td><td>{{currency (calcTotal this.quantity, this.unit_price, this.discount), precos.moeda}}</td></tr>
      {{/each}}
    </tbody>
  </table>
  <p class="total">Total: {{precos.total_formatado}}</p>
  {{#if precos.condicoes_pagamento}}<p class="payment">Condições de pagamento: {{precos.condicoes_pagamento}}</p>{{/if}}
</section>
`,

	TypeTimeline: `<section class="block block-timeline" id="{{block.id}}">
  <h2>{{default props.title "Cronograma"}}</h2>
  <ol>
    {{#each projeto.cronograma}}<li><span class="step">{{add index, 1}}.</span> <strong>{{this.etapa}}</strong>{{#if this.prazo}} ({{this.prazo}}){{/if}}{{#if this.descricao}}<p>{{this.descricao}}</p>{{/if}}</li>
    {{/each}}
  </ol>
  {{#if projeto.validade}}<p class="validity">Proposta válida por {{projeto.validade}}.</p>{{/if}}
</section>
`,

	TypeTerms: `<section class="block block-terms" id="{{block.id}}">
  <h2>{{default props.title "Condições gerais"}}</h2>
  {{#if props.content}}<div class="content">{{markdown props.content}}</div>{{/if}}
  {{#if precos.condicoes_pagamento}}<p>Pagamento: {{precos.condicoes_pagamento}}</p>{{/if}}
  {{#if projeto.validade}}<p>Validade da proposta: {{projeto.validade}}.</p>{{/if}}
</section>
`,

	TypeSignature: `<section class="block block-signature" id="{{block.id}}">
  <div class="signature"><p class="name">{{cliente.nome}}</p>{{#if cliente.empresa}}<p>{{cliente.empresa}}</p>{{/if}}<p class="role">Contratante</p></div>
  <div class="signature"><p class="name">{{fornecedor.nome}}</p>{{#if fornecedor.empresa}}<p>{{fornecedor.empresa}}</p>{{/if}}<p class="role">Contratada</p></div>
</section>
`,

	TypeText: `<section class="block block-text" id="{{block.id}}">
  {{#if props.title}}<h2>{{props.title}}</h2>{{/if}}
  {{markdown props.content}}
</section>
`,

	TypeDivider: `<hr class="block block-divider">
`,
}
