package prompt

import "strings"

// template holds the turn markers for one family. wrap ends with the
// assistant turn opener so generation continues as the assistant.
type template struct {
	userOpen  string
	userClose string
	asstOpen  string
	asstClose string
}

var templates = map[Family]template{
	FamilyChatML: {
		userOpen:  "<|im_start|>user\n",
		userClose: "<|im_end|>\n",
		asstOpen:  "<|im_start|>assistant\n",
		asstClose: "<|im_end|>",
	},
	FamilyLlamaInst: {
		userOpen:  "[INST] ",
		userClose: " ",
		asstOpen:  "[/INST]",
		asstClose: "</s>",
	},
	FamilyLlama3: {
		userOpen:  "<|start_header_id|>user<|end_header_id|>\n\n",
		userClose: "<|eot_id|>",
		asstOpen:  "<|start_header_id|>assistant<|end_header_id|>\n\n",
		asstClose: "<|eot_id|>",
	},
	FamilyGemma: {
		userOpen:  "<start_of_turn>user\n",
		userClose: "<end_of_turn>\n",
		asstOpen:  "<start_of_turn>model\n",
		asstClose: "<end_of_turn>",
	},
	FamilyPhi: {
		userOpen:  "<|user|>\n",
		userClose: "<|end|>\n",
		asstOpen:  "<|assistant|>\n",
		asstClose: "<|end|>",
	},
	FamilyGeneric: {
		userOpen:  "### User:\n",
		userClose: "\n\n",
		asstOpen:  "### Assistant:\n",
		asstClose: "\n###",
	},
}

// Wrap surrounds a user prompt with the family's turn markers, ending with
// the assistant turn opener.
func Wrap(f Family, userPrompt string) string {
	t := templates[f]
	var b strings.Builder
	b.Grow(len(userPrompt) + len(t.userOpen) + len(t.userClose) + len(t.asstOpen))
	b.WriteString(t.userOpen)
	b.WriteString(userPrompt)
	b.WriteString(t.userClose)
	b.WriteString(t.asstOpen)
	return b.String()
}

// Unwrap extracts the assistant reply from raw model output: slice after the
// last assistant marker when present, truncate at the family's end-of-turn
// marker when present, trim whitespace. Output with no markers passes
// through modulo trimming.
func Unwrap(f Family, output string) string {
	t := templates[f]
	s := output
	if i := strings.LastIndex(s, t.asstOpen); i >= 0 {
		s = s[i+len(t.asstOpen):]
	}
	if i := strings.Index(s, t.asstClose); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// StopSequences returns generation stop strings for the family so backends
// that honor stop lists halt at the end of the assistant turn.
func StopSequences(f Family) []string {
	t := templates[f]
	stops := []string{t.asstClose}
	// [INST] opens follow-up turns inline, so it is not a stop for llama-inst.
	if f != FamilyLlamaInst {
		stops = append(stops, strings.TrimRight(t.userOpen, " \n"))
	}
	return stops
}
