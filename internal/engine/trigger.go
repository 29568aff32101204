package engine

import (
	"fmt"
	"time"

	"github.com/helixlabs/helixmarket/internal/domain"
)

// TriggerConfig selects and parameterizes the funding-trigger policy.
type TriggerConfig struct {
	// Policy is "elapsed" or "twap".
	Policy string
	// Window is the minimum observation window before funding can release.
	Window time.Duration
	// Threshold is the YES confidence level the (average) price must exceed.
	Threshold float64
	// RequireTarget additionally requires the funding-currency treasury to
	// have reached the proposal's funding target.
	RequireTarget bool
}

// NewTriggerPolicy builds the configured policy.
func NewTriggerPolicy(cfg TriggerConfig) (domain.TriggerPolicy, error) {
	switch cfg.Policy {
	case "", "elapsed":
		return &ElapsedGate{Window: cfg.Window, Threshold: cfg.Threshold, RequireTarget: cfg.RequireTarget}, nil
	case "twap":
		return &TWAPPolicy{Window: cfg.Window, Threshold: cfg.Threshold, RequireTarget: cfg.RequireTarget}, nil
	default:
		return nil, fmt.Errorf("engine: unknown trigger policy %q", cfg.Policy)
	}
}

// targetMet applies the optional funding-target gate.
func targetMet(p *domain.Proposal, require bool) bool {
	if !require || p.FundingTarget.Amount == 0 {
		return true
	}
	return p.Treasury.Get(p.FundingTarget.Currency) >= p.FundingTarget.Amount
}

// ElapsedGate releases funding once the proposal has existed for at least
// Window and the latest sampled YES price is at or above Threshold. It is the
// original elapsed-time stand-in for a real TWAP, kept as the default policy.
type ElapsedGate struct {
	Window        time.Duration
	Threshold     float64
	RequireTarget bool
}

// Name implements domain.TriggerPolicy.
func (g *ElapsedGate) Name() string { return "elapsed" }

// ShouldRelease implements domain.TriggerPolicy.
func (g *ElapsedGate) ShouldRelease(p *domain.Proposal, now time.Time) bool {
	if now.Sub(p.CreatedAt) < g.Window {
		return false
	}
	if len(p.History) == 0 {
		return false
	}
	latest := p.History[len(p.History)-1]
	return latest.PriceYes >= g.Threshold && targetMet(p, g.RequireTarget)
}

// TWAPPolicy releases funding once the time-weighted average YES price over
// the trailing Window is at or above Threshold. Each sample is weighted by
// the time until the next sample (or now, for the last one); the price in
// force at the window's left edge is carried in from the preceding sample.
type TWAPPolicy struct {
	Window        time.Duration
	Threshold     float64
	RequireTarget bool
}

// Name implements domain.TriggerPolicy.
func (t *TWAPPolicy) Name() string { return "twap" }

// ShouldRelease implements domain.TriggerPolicy.
func (t *TWAPPolicy) ShouldRelease(p *domain.Proposal, now time.Time) bool {
	if now.Sub(p.CreatedAt) < t.Window {
		return false
	}
	avg, ok := TWAP(p.History, now.Add(-t.Window), now)
	if !ok {
		return false
	}
	return avg >= t.Threshold && targetMet(p, t.RequireTarget)
}

// TWAP computes the time-weighted average YES price over [from, to] from the
// given samples, which must be in ascending time order. It returns false when
// no sample covers any part of the window.
func TWAP(samples []domain.PricePoint, from, to time.Time) (float64, bool) {
	if len(samples) == 0 || !to.After(from) {
		return 0, false
	}

	var weighted float64
	var covered time.Duration

	for i, s := range samples {
		start := s.Time
		end := to
		if i+1 < len(samples) {
			end = samples[i+1].Time
		}

		// Clamp the interval this sample's price was in force to the window.
		if start.Before(from) {
			start = from
		}
		if end.After(to) {
			end = to
		}
		if !end.After(start) {
			continue
		}

		d := end.Sub(start)
		weighted += s.PriceYes * d.Seconds()
		covered += d
	}

	if covered <= 0 {
		return 0, false
	}
	return weighted / covered.Seconds(), true
}
