package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"voiced/internal/config"
	"voiced/pkg/types"
)

func TestDefaultHasOneModelPerTask(t *testing.T) {
	c := Default()
	specs := c.Specs()
	if len(specs) != 3 {
		t.Fatalf("expected 3 logical models, got %d", len(specs))
	}
	seen := map[types.TaskKind]bool{}
	for _, s := range specs {
		if s.Key != string(s.Task) {
			t.Fatalf("default key %q should equal its task %q", s.Key, s.Task)
		}
		seen[s.Task] = true
	}
	for _, task := range []types.TaskKind{types.TaskSpeechToText, types.TaskTextGeneration, types.TaskTextToSpeech} {
		if !seen[task] {
			t.Fatalf("missing default model for %s", task)
		}
	}
}

func TestLookup(t *testing.T) {
	c := Default()
	if _, ok := c.Lookup("text-generation"); !ok {
		t.Fatalf("text-generation missing")
	}
	if _, ok := c.Lookup("no-such-key"); ok {
		t.Fatalf("unexpected hit for unknown key")
	}
}

func TestPlanForReturnsCopies(t *testing.T) {
	c := Default()
	spec, _ := c.Lookup("text-generation")
	p1 := c.PlanFor(spec)
	if len(p1.Candidates) == 0 || p1.Emergency == "" {
		t.Fatalf("text-generation plan incomplete: %+v", p1)
	}
	p1.Candidates[0] = "mutated"
	p2 := c.PlanFor(spec)
	if p2.Candidates[0] == "mutated" {
		t.Fatalf("PlanFor must return copies, catalog was mutated")
	}
}

func TestPlanForUnknownTask(t *testing.T) {
	c := Default()
	p := c.PlanFor(types.ModelSpec{Key: "x", Identifier: "y", Task: types.TaskKind("bogus")})
	if len(p.Candidates) != 0 || p.Emergency != "" {
		t.Fatalf("expected empty plan for unknown task, got %+v", p)
	}
}

func TestFromConfigOverridesIdentifier(t *testing.T) {
	cfg := config.Default()
	cfg.Models = []config.ModelEntry{{Key: "text-generation", Identifier: "gemma-2-2b-bundle"}}
	c, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	spec, _ := c.Lookup("text-generation")
	if spec.Identifier != "gemma-2-2b-bundle" {
		t.Fatalf("identifier override lost: %+v", spec)
	}
	if spec.Task != types.TaskTextGeneration {
		t.Fatalf("task should carry over on override: %+v", spec)
	}
}

func TestFromConfigNewKeyNeedsTask(t *testing.T) {
	cfg := config.Default()
	cfg.Models = []config.ModelEntry{{Key: "summarizer", Identifier: "llama-3.2-1b-instruct-q4_k_m"}}
	if _, err := FromConfig(cfg); err == nil {
		t.Fatalf("expected error for new key without task")
	}
	cfg.Models[0].Task = "text-generation"
	c, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	if len(c.Specs()) != 4 {
		t.Fatalf("expected 4 specs after adding a key, got %d", len(c.Specs()))
	}
}

func TestFromConfigFallbackOverride(t *testing.T) {
	cfg := config.Default()
	cfg.Fallbacks = []config.FallbackEntry{{
		Task:       "text-generation",
		Candidates: []string{"a", "b", "c"},
	}}
	c, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	spec, _ := c.Lookup("text-generation")
	p := c.PlanFor(spec)
	if len(p.Candidates) != 3 || p.Candidates[0] != "a" {
		t.Fatalf("candidates not overridden: %+v", p)
	}
	if p.Emergency == "" {
		t.Fatalf("emergency should keep its default when omitted")
	}
}

func TestFromConfigRejectsUnknownTask(t *testing.T) {
	cfg := config.Default()
	cfg.Fallbacks = []config.FallbackEntry{{Task: "image-generation"}}
	if _, err := FromConfig(cfg); err == nil {
		t.Fatalf("expected error for unknown fallback task")
	}
}

func TestInstalledIdentifiers(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"b.gguf", "a.GGUF", "notes.txt", "model.bin"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte(""), 0o644); err != nil {
			t.Fatalf("write temp file: %v", err)
		}
	}
	ids, err := InstalledIdentifiers(dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected identifiers: %v", ids)
	}
}
