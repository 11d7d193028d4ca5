// Package proposal defines the data a proposal document is rendered from.
//
// A Template is an ordered list of typed blocks. A Proposal pairs blocks (its own, or
// those of a referenced template) with Variables: the client, the vendor, the project
// and its pricing. Variables.Context produces the nested map the template engine and
// the block rule evaluator resolve paths against.
//
// Import is strict, unlike rendering: ParseTemplate, ParseVariables and ParseProposal
// accept JSON with comments (JSONC), reject unknown fields and trailing data, and
// return descriptive errors.
package proposal
