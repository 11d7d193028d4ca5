package proposal

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseTemplate(t *testing.T) {
	data := []byte(`{
		// comercial padrão
		"id": "tpl-1",
		"name": "Padrão",
		"blocks": [
			{"type": "hero"},
			{"type": "pricing", "id": "precos", "props": {"title": "Investimento"}},
			{"type": "terms", "when": "precos.moeda == 'BRL'"}, // trailing comma
		],
	}`)

	tpl, err := ParseTemplate(data)
	if err != nil {
		t.Fatalf("ParseTemplate() error = %v", err)
	}

	if tpl.ID != "tpl-1" || tpl.Name != "Padrão" {
		t.Errorf("ParseTemplate() = %+v", tpl)
	}
	if len(tpl.Blocks) != 3 {
		t.Fatalf("len(Blocks) = %d, want 3", len(tpl.Blocks))
	}
	if tpl.Blocks[0].ID == "" {
		t.Errorf("missing block id was not assigned")
	}
	if tpl.Blocks[1].ID != "precos" {
		t.Errorf("Blocks[1].ID = %q, want precos", tpl.Blocks[1].ID)
	}
	if tpl.Blocks[1].Props["title"] != "Investimento" {
		t.Errorf("Blocks[1].Props = %v", tpl.Blocks[1].Props)
	}
	if tpl.Blocks[2].When != "precos.moeda == 'BRL'" {
		t.Errorf("Blocks[2].When = %q", tpl.Blocks[2].When)
	}
}

func TestParseTemplateErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"empty", "  // nada\n", "empty document"},
		{"invalid json", `{"name": `, "failed to parse template"},
		{"unknown field", `{"name": "x", "blocks": [{"type": "hero"}], "autor": "y"}`, "unknown field"},
		{"unknown block field", `{"name": "x", "blocks": [{"type": "hero", "style": {}}]}`, "unknown field"},
		{"missing name", `{"blocks": [{"type": "hero"}]}`, "name is required"},
		{"no blocks", `{"name": "x", "blocks": []}`, "at least one block"},
		{"missing type", `{"name": "x", "blocks": [{"props": {}}]}`, "block type is required"},
		{"trailing data", `{"name": "x", "blocks": [{"type": "hero"}]} {}`, "unexpected data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemplate([]byte(tt.data))
			if err == nil {
				t.Fatalf("ParseTemplate() succeeded, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ParseTemplate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseTemplateMissingTypeIsSentinel(t *testing.T) {
	_, err := ParseTemplate([]byte(`{"name": "x", "blocks": [{"type": "  "}]}`))
	if !errors.Is(err, ErrMissingBlockType) {
		t.Errorf("ParseTemplate() error = %v, want ErrMissingBlockType", err)
	}
}

func TestParseProposal(t *testing.T) {
	p, err := ParseProposal([]byte(`{
		"template_id": "tpl-1",
		"variables": {
			"cliente": {"nome": "ACME"},
			"fornecedor": {"nome": "Dago"},
			"projeto": {"titulo": "Portal"},
			"precos": {"itens": [{"name": "Setup", "quantity": 1, "unit_price": 1000}], "moeda": "BRL"}
		}
	}`))
	if err != nil {
		t.Fatalf("ParseProposal() error = %v", err)
	}
	if p.ID == "" {
		t.Errorf("proposal id was not assigned")
	}
	if p.Variables.Precos.Itens[0].UnitPrice != 1000 {
		t.Errorf("UnitPrice = %v, want 1000", p.Variables.Precos.Itens[0].UnitPrice)
	}

	if _, err := ParseProposal([]byte(`{"variables": {}}`)); err == nil {
		t.Errorf("ParseProposal() without blocks or template_id should fail")
	}
}

func TestParseVariablesRejectsUnknownNamespace(t *testing.T) {
	if _, err := ParseVariables([]byte(`{"cliente": {"nome": "a"}, "extra": {}}`)); err == nil {
		t.Errorf("ParseVariables() with an unknown namespace should fail")
	}
}

func TestVariablesContext(t *testing.T) {
	discount := 10.0
	vars := Variables{
		Cliente: Party{Nome: "ACME", Email: "contato@acme.com"},
		Projeto: Project{
			Titulo:     "Portal",
			Cronograma: []Milestone{{Etapa: "Descoberta", Prazo: "2 semanas"}},
		},
		Precos: Pricing{
			Itens: []PriceItem{
				{Name: "Setup", Quantity: 1, UnitPrice: 1000},
				{Name: "Licença", Quantity: 2, UnitPrice: 50, Discount: &discount},
			},
			Moeda: "BRL",
		},
	}

	ctx := vars.Context()

	cliente := ctx["cliente"].(map[string]interface{})
	if cliente["nome"] != "ACME" || cliente["email"] != "contato@acme.com" {
		t.Errorf("cliente = %v", cliente)
	}

	items := ctx["precos"].(map[string]interface{})["itens"].([]interface{})
	want := []interface{}{
		map[string]interface{}{"name": "Setup", "quantity": 1.0, "unit_price": 1000.0, "category": ""},
		map[string]interface{}{"name": "Licença", "quantity": 2.0, "unit_price": 50.0, "category": "", "discount": 10.0},
	}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Errorf("precos.itens mismatch (-want +got):\n%s", diff)
	}

	schedule := ctx["projeto"].(map[string]interface{})["cronograma"].([]interface{})
	if len(schedule) != 1 || schedule[0].(map[string]interface{})["etapa"] != "Descoberta" {
		t.Errorf("projeto.cronograma = %v", schedule)
	}
}
