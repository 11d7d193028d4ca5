package store

import (
	"math"
	"strings"
	"testing"

	"github.com/aescanero/dago-node-proposal/internal/proposal"
)

func TestCompressRoundTrip(t *testing.T) {
	html := strings.Repeat("<tr><td>Setup</td><td>R$ 1.000,00</td></tr>\n", 200)

	packed := compress([]byte(html))
	if len(packed) >= len(html) {
		t.Errorf("compressed size %d, want less than %d", len(packed), len(html))
	}

	out, err := decompress(packed)
	if err != nil {
		t.Fatalf("decompress() error = %v", err)
	}
	if string(out) != html {
		t.Errorf("decompress() did not restore the document")
	}
}

func TestDecompressRejectsGarbage(t *testing.T) {
	if _, err := decompress([]byte("not zstd")); err == nil {
		t.Errorf("decompress() of garbage should fail")
	}
}

func TestRenderKey(t *testing.T) {
	blocks := []proposal.Block{{ID: "1", Type: "pricing"}}
	vars := map[string]interface{}{"cliente": map[string]interface{}{"nome": "ACME"}}

	key, err := RenderKey(blocks, vars, "cat-1")
	if err != nil {
		t.Fatalf("RenderKey() error = %v", err)
	}
	if !strings.HasPrefix(key, "proposal:render:") || len(key) != len("proposal:render:")+64 {
		t.Errorf("RenderKey() = %q", key)
	}

	same, _ := RenderKey(blocks, map[string]interface{}{"cliente": map[string]interface{}{"nome": "ACME"}}, "cat-1")
	if same != key {
		t.Errorf("RenderKey() is not deterministic: %q != %q", same, key)
	}

	variants := map[string]func() (string, error){
		"variables": func() (string, error) {
			return RenderKey(blocks, map[string]interface{}{"cliente": map[string]interface{}{"nome": "Outra"}}, "cat-1")
		},
		"blocks": func() (string, error) {
			return RenderKey([]proposal.Block{{ID: "1", Type: "hero"}}, vars, "cat-1")
		},
		"catalog": func() (string, error) {
			return RenderKey(blocks, vars, "cat-2")
		},
	}
	for name, fn := range variants {
		other, err := fn()
		if err != nil {
			t.Fatalf("RenderKey(%s) error = %v", name, err)
		}
		if other == key {
			t.Errorf("changing %s did not change the key", name)
		}
	}
}

func TestRenderKeyNonFiniteNumbers(t *testing.T) {
	itens := func(price float64) map[string]interface{} {
		return map[string]interface{}{
			"precos": map[string]interface{}{
				"itens": []interface{}{map[string]interface{}{"name": "Setup", "unit_price": price}},
			},
		}
	}
	blocks := []proposal.Block{{ID: "1", Type: "text", Props: map[string]interface{}{"ratio": math.Inf(1)}}}

	nan, err := RenderKey(blocks, itens(math.NaN()), "cat-1")
	if err != nil {
		t.Fatalf("RenderKey() with NaN error = %v", err)
	}
	again, _ := RenderKey(blocks, itens(math.NaN()), "cat-1")
	if again != nan {
		t.Errorf("RenderKey() with NaN is not deterministic")
	}

	inf, err := RenderKey(blocks, itens(math.Inf(-1)), "cat-1")
	if err != nil {
		t.Fatalf("RenderKey() with -Inf error = %v", err)
	}
	if inf == nan {
		t.Errorf("NaN and -Inf produced the same key")
	}
	if !math.IsInf(blocks[0].Props["ratio"].(float64), 1) {
		t.Errorf("RenderKey() modified the block props")
	}
}
