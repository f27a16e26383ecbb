// Package prompt maps model identifiers to chat template families and
// applies the matching turn markers around prompts and replies.
package prompt

import "strings"

// Family is a chat template family. The zero value is the generic two-role
// template used for identifiers no rule matches.
type Family int

const (
	FamilyGeneric Family = iota
	FamilyChatML
	FamilyLlamaInst
	FamilyLlama3
	FamilyGemma
	FamilyPhi
)

// String returns the family tag used in logs and status output.
func (f Family) String() string {
	switch f {
	case FamilyChatML:
		return "chatml"
	case FamilyLlamaInst:
		return "llama-inst"
	case FamilyLlama3:
		return "llama3"
	case FamilyGemma:
		return "gemma"
	case FamilyPhi:
		return "phi"
	default:
		return "generic"
	}
}

// detectRules is consulted in order; the first matching pattern wins.
// Patterns are lowercase substrings of the model identifier. llama-3 must
// precede llama-2 so "llama-3.2" never falls into the [INST] family, and
// tinyllama must precede any future bare "llama" rule.
var detectRules = []struct {
	pattern string
	family  Family
}{
	{"llama-3", FamilyLlama3},
	{"llama3", FamilyLlama3},
	{"llama-2", FamilyLlamaInst},
	{"llama2", FamilyLlamaInst},
	{"mistral", FamilyLlamaInst},
	{"mixtral", FamilyLlamaInst},
	{"tinyllama", FamilyChatML},
	{"qwen", FamilyChatML},
	{"smollm", FamilyChatML},
	{"hermes", FamilyChatML},
	{"gemma", FamilyGemma},
	{"phi", FamilyPhi},
}

// Detect maps a model identifier to its template family. Matching is
// case-insensitive substring; unmatched identifiers get FamilyGeneric.
func Detect(identifier string) Family {
	id := strings.ToLower(identifier)
	for _, r := range detectRules {
		if strings.Contains(id, r.pattern) {
			return r.family
		}
	}
	return FamilyGeneric
}
