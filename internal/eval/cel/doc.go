// Package cel provides a CEL (Common Expression Language) evaluator for block visibility rules.
//
// A proposal block may carry a "when" expression. The block is rendered only when the
// expression evaluates to true against the proposal variables and the block's own props.
//
// Example usage:
//
//	evaluator := cel.NewEvaluator()
//
//	vars := map[string]interface{}{
//	    "precos": map[string]interface{}{
//	        "moeda": "USD",
//	    },
//	    "props": map[string]interface{}{
//	        "show_taxes": true,
//	    },
//	}
//
//	show, err := evaluator.EvaluateBool(ctx, "precos.moeda == 'USD' && props.show_taxes", vars)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Declared variables: cliente, fornecedor, projeto, precos, props, block.
// Each is a map(string, dyn); a namespace absent from the input is bound to an empty map.
// Evaluation stops with an error once a rule exceeds CostLimit or its context is done.
//
// Supported operations:
//   - Comparisons: ==, !=, <, <=, >, >=
//   - Boolean logic: &&, ||, !
//   - String operations: contains, startsWith, endsWith, matches
//   - Arithmetic: +, -, *, /, %
//   - List operations: in, size
//   - Map access: precos.moeda, props["title"], has(props.title)
package cel
