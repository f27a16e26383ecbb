// Package capability discovers which execution backends can serve at
// startup and ranks them. Probing degrades, never fails: any individual
// check that errors or times out just leaves its capability out of the
// report.
package capability

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"voiced/internal/backend"
	"voiced/pkg/types"
)

// Report is the probe outcome. Ranked lists device-execution capabilities
// best first and always ends with baseline-cpu; Extras lists the non-device
// capabilities (specialized runtime, remote API) that answered their health
// checks.
type Report struct {
	Ranked []types.Capability
	Extras []types.Capability
}

// Available reports whether a capability appears anywhere in the report.
func (r Report) Available(c types.Capability) bool {
	for _, x := range r.Ranked {
		if x == c {
			return true
		}
	}
	for _, x := range r.Extras {
		if x == c {
			return true
		}
	}
	return false
}

// Best returns the top-ranked device capability. Ranked is never empty
// because baseline-cpu is unconditional.
func (r Report) Best() types.Capability {
	if len(r.Ranked) == 0 {
		return types.CapabilityBaselineCPU
	}
	return r.Ranked[0]
}

// ProberConfig bounds the individual checks. AccelTimeout caps the
// asynchronous hardware probe; CheckTimeout caps each synchronous health
// check.
type ProberConfig struct {
	AccelTimeout time.Duration
	CheckTimeout time.Duration
}

type Prober struct {
	set *backend.Set
	cfg ProberConfig
	log zerolog.Logger
}

func NewProber(set *backend.Set, cfg ProberConfig, log zerolog.Logger) *Prober {
	if cfg.AccelTimeout <= 0 {
		cfg.AccelTimeout = 3 * time.Second
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 2 * time.Second
	}
	return &Prober{set: set, cfg: cfg, log: log}
}

// Probe builds the capability report. It is pure with respect to manager
// state and safe to re-run; the manager caches the first result.
func (p *Prober) Probe(ctx context.Context) Report {
	var ranked []types.Capability

	// portable-bytecode: synchronous check, effectively always true in
	// target environments with the engine installed.
	if p.check(ctx, types.CapabilityPortable, p.cfg.CheckTimeout) {
		ranked = append(ranked, types.CapabilityPortable)
	}

	// hardware-accelerated: asynchronous attempt raced against a timeout; a
	// result arriving late is discarded and the capability stays absent.
	if b, ok := p.set.Get(types.CapabilityAccelerated); ok {
		probeCtx, cancel := context.WithTimeout(ctx, p.cfg.AccelTimeout)
		res := make(chan error, 1)
		go func() {
			res <- b.Probe(probeCtx)
			cancel()
		}()
		select {
		case err := <-res:
			if err == nil {
				ranked = append([]types.Capability{types.CapabilityAccelerated}, ranked...)
			} else {
				p.log.Debug().Err(err).Msg("hardware acceleration unavailable")
			}
		case <-time.After(p.cfg.AccelTimeout):
			p.log.Debug().Msg("hardware acceleration probe timed out")
		}
	}

	// baseline-cpu closes the ranking unconditionally, exactly once.
	ranked = append(ranked, types.CapabilityBaselineCPU)

	var extras []types.Capability
	for _, c := range []types.Capability{types.CapabilitySpecialized, types.CapabilityRemoteAPI} {
		if p.check(ctx, c, p.cfg.CheckTimeout) {
			extras = append(extras, c)
		}
	}

	p.log.Info().
		Interface("ranked", ranked).
		Interface("extras", extras).
		Msg("capability probe complete")
	return Report{Ranked: ranked, Extras: extras}
}

func (p *Prober) check(ctx context.Context, c types.Capability, timeout time.Duration) bool {
	b, ok := p.set.Get(c)
	if !ok {
		return false
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := b.Probe(checkCtx); err != nil {
		p.log.Debug().Err(err).Str("capability", string(c)).Msg("capability unavailable")
		return false
	}
	return true
}
