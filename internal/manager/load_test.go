package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"voiced/internal/backend"
	"voiced/internal/capability"
	"voiced/internal/catalog"
	"voiced/pkg/types"
)

func TestLoadUnknownModel(t *testing.T) {
	m := newTestManager(t, catalog.Default(), capability.Report{
		Ranked: []types.Capability{types.CapabilityBaselineCPU},
	})
	err := m.Load(context.Background(), "no-such-model", nil)
	if !IsUnknownModel(err) {
		t.Fatalf("expected unknown-model error, got %v", err)
	}
}

func TestLoadOnRankedBackend(t *testing.T) {
	portable := &scriptedBackend{capability: types.CapabilityPortable}
	m := newTestManager(t, catalog.Default(), capability.Report{
		Ranked: []types.Capability{types.CapabilityPortable, types.CapabilityBaselineCPU},
	}, portable)

	var percents []int
	err := m.Load(context.Background(), "text-generation", func(p int, _ string) {
		percents = append(percents, p)
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	ms := modelStatus(t, m, "text-generation")
	if ms.State != string(StateReady) {
		t.Fatalf("state = %s, want ready", ms.State)
	}
	if ms.Backend != types.CapabilityPortable {
		t.Fatalf("backend = %s, want portable-bytecode", ms.Backend)
	}
	if ms.Fallback {
		t.Fatalf("fallback set on a direct load")
	}
	if got := portable.attemptList(); len(got) != 1 || got[0] != "llama-3.2-3b-instruct-q4_k_m" {
		t.Fatalf("attempts = %v", got)
	}
	if len(percents) == 0 || percents[len(percents)-1] != 100 {
		t.Fatalf("progress did not end at 100: %v", percents)
	}
	p, ok := m.Progress("text-generation")
	if !ok || !p.Done || p.Percent != 100 {
		t.Fatalf("Progress = %+v, ok=%v", p, ok)
	}
	if st := m.Status(); st.LoadsTotal != 1 || st.FallbacksTotal != 0 {
		t.Fatalf("counters = %d/%d", st.LoadsTotal, st.FallbacksTotal)
	}
}

func TestLoadReplacesAndInvalidatesPriorHandle(t *testing.T) {
	portable := &scriptedBackend{capability: types.CapabilityPortable}
	m := newTestManager(t, catalog.Default(), capability.Report{
		Ranked: []types.Capability{types.CapabilityPortable, types.CapabilityBaselineCPU},
	}, portable)

	if err := m.Load(context.Background(), "text-generation", nil); err != nil {
		t.Fatalf("first load: %v", err)
	}
	first := portable.lastHandle()
	if err := m.Load(context.Background(), "text-generation", nil); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if !first.isClosed() {
		t.Fatalf("prior handle not invalidated on replacement")
	}
	if portable.lastHandle().isClosed() {
		t.Fatalf("replacement handle closed")
	}
}

func TestLoadTimeoutDiscardsLateResult(t *testing.T) {
	portable := &scriptedBackend{capability: types.CapabilityPortable, loadDelay: 200 * time.Millisecond}
	m := NewWithConfig(catalog.Default(), ManagerConfig{
		Backends:    backend.NewSet(portable),
		Prober:      &fixedProber{report: capability.Report{Ranked: []types.Capability{types.CapabilityPortable, types.CapabilityBaselineCPU}}},
		LoadTimeout: 20 * time.Millisecond,
		Publisher:   NewMemoryPublisher(0),
		Logger:      zerolog.Nop(),
	})
	m.Initialize(context.Background())

	err := m.Load(context.Background(), "text-generation", nil)
	if !IsStageTimeout(err) {
		t.Fatalf("expected stage timeout, got %v", err)
	}
	ms := modelStatus(t, m, "text-generation")
	if ms.State != string(StateFailed) {
		t.Fatalf("state = %s, want failed", ms.State)
	}
	p, _ := m.Progress("text-generation")
	if p.Percent != -1 || p.Error == "" {
		t.Fatalf("failure progress = %+v", p)
	}

	// The losing result arrives later and must be closed, never
	// registered.
	waitFor(t, time.Second, func() bool {
		h := portable.lastHandle()
		return h != nil && h.isClosed()
	})
	if ms := modelStatus(t, m, "text-generation"); ms.State == string(StateReady) {
		t.Fatalf("late result was applied to state")
	}
}

func TestAcceleratedDowngradesOnce(t *testing.T) {
	accel := &scriptedBackend{capability: types.CapabilityAccelerated, failAll: errors.New("gpu init failed")}
	portable := &scriptedBackend{capability: types.CapabilityPortable}
	m := newTestManager(t, catalog.Default(), capability.Report{
		Ranked: []types.Capability{types.CapabilityAccelerated, types.CapabilityPortable, types.CapabilityBaselineCPU},
	}, accel, portable)

	if err := m.Load(context.Background(), "text-generation", nil); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := accel.attemptList(); len(got) != 1 {
		t.Fatalf("accelerated attempts = %v, want one", got)
	}
	if got := portable.attemptList(); len(got) != 1 || got[0] != "llama-3.2-3b-instruct-q4_k_m" {
		t.Fatalf("portable retry attempts = %v", got)
	}
	ms := modelStatus(t, m, "text-generation")
	if ms.Backend != types.CapabilityPortable {
		t.Fatalf("backend = %s, want portable-bytecode after downgrade", ms.Backend)
	}
	if ms.Fallback {
		t.Fatalf("downgrade must not count as identifier fallback")
	}
	if !hasEvent(m, "load_downgrade") {
		t.Fatalf("missing load_downgrade event")
	}
}

func TestAcceleratedDowngradeFailureStops(t *testing.T) {
	accel := &scriptedBackend{capability: types.CapabilityAccelerated, failAll: errors.New("gpu init failed")}
	portable := &scriptedBackend{capability: types.CapabilityPortable, failAll: errors.New("mmap failed")}
	baseline := &scriptedBackend{capability: types.CapabilityBaselineCPU}
	m := newTestManager(t, catalog.Default(), capability.Report{
		Ranked: []types.Capability{types.CapabilityAccelerated, types.CapabilityPortable, types.CapabilityBaselineCPU},
	}, accel, portable, baseline)

	err := m.Load(context.Background(), "text-generation", nil)
	if !IsLoadFailed(err) {
		t.Fatalf("expected load error, got %v", err)
	}
	// Exactly one downgrade: baseline is never consulted.
	if got := baseline.attemptList(); len(got) != 0 {
		t.Fatalf("baseline attempts = %v, want none", got)
	}
	if got := portable.attemptList(); len(got) != 1 {
		t.Fatalf("portable attempts = %v, want one", got)
	}
}

func TestLoadAsyncCompletes(t *testing.T) {
	portable := &scriptedBackend{capability: types.CapabilityPortable}
	m := newTestManager(t, catalog.Default(), capability.Report{
		Ranked: []types.Capability{types.CapabilityPortable, types.CapabilityBaselineCPU},
	}, portable)

	op, err := m.LoadAsync("text-generation")
	if err != nil {
		t.Fatalf("LoadAsync: %v", err)
	}
	if op == "" {
		t.Fatalf("empty operation id")
	}
	waitFor(t, 2*time.Second, func() bool {
		return modelStatus(t, m, "text-generation").State == string(StateReady)
	})

	if _, err := m.LoadAsync("nope"); !IsUnknownModel(err) {
		t.Fatalf("expected unknown-model error, got %v", err)
	}
}
