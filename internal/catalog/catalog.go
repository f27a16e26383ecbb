// Package catalog maps stable logical model keys to concrete model
// identifiers and owns the fallback plans consulted when a load cascades.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"voiced/internal/config"
	"voiced/pkg/types"
)

// Catalog is immutable after construction; the manager treats lookups as
// pure reads.
type Catalog struct {
	specs map[string]types.ModelSpec
	order []string
	plans map[types.TaskKind]Plan
}

// Plan is the fallback recipe for one load cascade: alternate identifiers
// tried strictly in order, then one emergency identifier.
type Plan struct {
	Candidates []string
	Emergency  string
}

// Default returns the shipped catalog: one logical model per task.
func Default() *Catalog {
	c := &Catalog{
		specs: map[string]types.ModelSpec{},
		plans: map[types.TaskKind]Plan{
			types.TaskSpeechToText: {
				Candidates: []string{"whisper-small-q5_1", "whisper-base-q5_1"},
				Emergency:  "whisper-tiny-q5_1",
			},
			types.TaskTextGeneration: {
				Candidates: []string{
					"llama-3.2-3b-instruct-q4_k_m",
					"llama-3.2-1b-instruct-q4_k_m",
					"qwen2.5-1.5b-instruct-q4_k_m",
				},
				Emergency: "tinyllama-1.1b-chat-v1.0-q4_k_m",
			},
			types.TaskTextToSpeech: {
				Candidates: []string{"piper-en-us-amy-medium", "piper-en-us-lessac-medium"},
				Emergency:  "piper-en-us-amy-low",
			},
		},
	}
	c.put(types.ModelSpec{Key: "speech-to-text", Identifier: "whisper-base-q5_1", Task: types.TaskSpeechToText})
	c.put(types.ModelSpec{Key: "text-generation", Identifier: "llama-3.2-3b-instruct-q4_k_m", Task: types.TaskTextGeneration})
	c.put(types.ModelSpec{Key: "text-to-speech", Identifier: "piper-en-us-amy-medium", Task: types.TaskTextToSpeech})
	return c
}

// FromConfig builds the catalog from Default() with config overrides
// applied: model entries replace or add logical keys, fallback entries
// replace whole per-task plans.
func FromConfig(cfg config.Config) (*Catalog, error) {
	c := Default()
	for _, m := range cfg.Models {
		if m.Key == "" || m.Identifier == "" {
			return nil, fmt.Errorf("model entry needs key and identifier: %+v", m)
		}
		task := types.TaskKind(m.Task)
		if m.Task == "" {
			if prev, ok := c.specs[m.Key]; ok {
				task = prev.Task
			} else {
				return nil, fmt.Errorf("model entry %q adds a new key and must name a task", m.Key)
			}
		} else if _, ok := types.ParseTask(m.Task); !ok {
			return nil, fmt.Errorf("model entry %q has unknown task %q", m.Key, m.Task)
		}
		c.put(types.ModelSpec{Key: m.Key, Identifier: m.Identifier, Task: task})
	}
	for _, f := range cfg.Fallbacks {
		task, ok := types.ParseTask(f.Task)
		if !ok {
			return nil, fmt.Errorf("fallback entry has unknown task %q", f.Task)
		}
		plan := Plan{Candidates: f.Candidates, Emergency: f.Emergency}
		if plan.Emergency == "" {
			plan.Emergency = c.plans[task].Emergency
		}
		c.plans[task] = plan
	}
	return c, nil
}

func (c *Catalog) put(spec types.ModelSpec) {
	if _, ok := c.specs[spec.Key]; !ok {
		c.order = append(c.order, spec.Key)
	}
	c.specs[spec.Key] = spec
}

// Lookup resolves a logical key.
func (c *Catalog) Lookup(key string) (types.ModelSpec, bool) {
	s, ok := c.specs[key]
	return s, ok
}

// Specs returns the catalog entries in stable order.
func (c *Catalog) Specs() []types.ModelSpec {
	out := make([]types.ModelSpec, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.specs[k])
	}
	return out
}

// PlanFor returns the fallback plan for a spec. The returned slices are
// copies; cascades iterate them without touching catalog state.
func (c *Catalog) PlanFor(spec types.ModelSpec) Plan {
	p, ok := c.plans[spec.Task]
	if !ok {
		return Plan{}
	}
	out := Plan{Emergency: p.Emergency}
	out.Candidates = append([]string(nil), p.Candidates...)
	return out
}

// InstalledIdentifiers scans a models directory for *.gguf artifacts and
// returns their identifiers (filename without extension), sorted.
func InstalledIdentifiers(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, filepath.Ext(name)))
	}
	sort.Strings(ids)
	return ids, nil
}
