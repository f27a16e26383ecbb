package manager

import (
	"strings"

	"voiced/internal/capability"
	"voiced/internal/config"
	"voiced/pkg/types"
)

// selectBackend picks the execution capability for a model identifier.
// See selectFor for the policy; the receiver form snapshots the override
// and the probe report under the read lock.
func (m *Manager) selectBackend(identifier string) types.Capability {
	m.mu.RLock()
	override := m.override
	report := m.report
	m.mu.RUnlock()
	return selectFor(identifier, override, report, m.selector)
}

// selectFor is the pure selection policy. It is deterministic, performs
// no I/O and never fails:
//
//  1. An active override wins unconditionally.
//  2. Identifiers matching a remote pattern run on remote-api when it
//     answered the probe.
//  3. Identifiers matching a specialized pattern run on the specialized
//     runtime when it answered the probe, unless a converted marker shows
//     the artifact was repacked for the local engine.
//  4. Otherwise the best ranked device capability wins; identifiers on
//     the force-portable pin list skip hardware-accelerated.
//
// Matching is case-insensitive substring over ordered lists. The ranked
// list always ends with baseline-cpu, so selection always lands on a
// concrete capability.
func selectFor(identifier string, override types.Capability, report capability.Report, sel config.Selector) types.Capability {
	if override != "" {
		return override
	}
	id := strings.ToLower(identifier)

	if matchAny(id, sel.RemotePatterns) && report.Available(types.CapabilityRemoteAPI) {
		return types.CapabilityRemoteAPI
	}

	if matchAny(id, sel.SpecializedPatterns) && !matchAny(id, sel.ConvertedMarkers) &&
		report.Available(types.CapabilitySpecialized) {
		return types.CapabilitySpecialized
	}

	pinned := matchAny(id, sel.ForcePortable)
	for _, c := range report.Ranked {
		if pinned && c == types.CapabilityAccelerated {
			continue
		}
		return c
	}
	return types.CapabilityBaselineCPU
}

func matchAny(id string, patterns []string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(id, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
