package manager

import (
	"testing"

	"voiced/internal/capability"
	"voiced/internal/config"
	"voiced/pkg/types"
)

func TestSelectForPolicy(t *testing.T) {
	sel := config.Default().Selector
	full := capability.Report{
		Ranked: []types.Capability{types.CapabilityAccelerated, types.CapabilityPortable, types.CapabilityBaselineCPU},
		Extras: []types.Capability{types.CapabilitySpecialized, types.CapabilityRemoteAPI},
	}
	noExtras := capability.Report{
		Ranked: []types.Capability{types.CapabilityAccelerated, types.CapabilityPortable, types.CapabilityBaselineCPU},
	}
	cpuOnly := capability.Report{
		Ranked: []types.Capability{types.CapabilityBaselineCPU},
	}

	cases := []struct {
		name       string
		identifier string
		override   types.Capability
		report     capability.Report
		want       types.Capability
	}{
		{"override wins", "gemma-2b-it", types.CapabilityBaselineCPU, full, types.CapabilityBaselineCPU},
		{"remote pattern", "gpt-4o-mini", "", full, types.CapabilityRemoteAPI},
		{"remote pattern case-insensitive", "Claude-Haiku", "", full, types.CapabilityRemoteAPI},
		{"remote unavailable falls through", "gpt-4o-mini", "", noExtras, types.CapabilityAccelerated},
		{"specialized family", "gemma-2b-it", "", full, types.CapabilitySpecialized},
		{"converted marker stays local", "gemma-2b-it-q4_k_m", "", full, types.CapabilityAccelerated},
		{"specialized unavailable falls through", "gemma-2b-it", "", noExtras, types.CapabilityAccelerated},
		{"plain takes best ranked", "llama-3.2-3b-instruct", "", full, types.CapabilityAccelerated},
		{"force-portable pin skips accelerated", "mixtral-8x7b-instruct", "", full, types.CapabilityPortable},
		{"pin with cpu-only ranking", "mixtral-8x7b-instruct", "", cpuOnly, types.CapabilityBaselineCPU},
		{"baseline when nothing else ranked", "llama-3.2-3b-instruct", "", cpuOnly, types.CapabilityBaselineCPU},
		{"empty report still lands", "llama-3.2-3b-instruct", "", capability.Report{}, types.CapabilityBaselineCPU},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := selectFor(tc.identifier, tc.override, tc.report, sel)
			if got != tc.want {
				t.Fatalf("selectFor(%q) = %s, want %s", tc.identifier, got, tc.want)
			}
		})
	}
}

func TestSelectForIsDeterministic(t *testing.T) {
	sel := config.Default().Selector
	report := capability.Report{
		Ranked: []types.Capability{types.CapabilityPortable, types.CapabilityBaselineCPU},
		Extras: []types.Capability{types.CapabilitySpecialized},
	}
	first := selectFor("gemma-2b-it", "", report, sel)
	for i := 0; i < 100; i++ {
		if got := selectFor("gemma-2b-it", "", report, sel); got != first {
			t.Fatalf("selection changed between calls: %s then %s", first, got)
		}
	}
}
