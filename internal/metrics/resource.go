package metrics

import (
	"math"
	"strings"
	"time"

	"github.com/fyrsmithlabs/switchboard/internal/config"
)

// Tier classifies a resource for complexity-based scoring.
type Tier string

const (
	TierStandard    Tier = ""
	TierHeavyweight Tier = config.TierHeavyweight
	TierLightweight Tier = config.TierLightweight
)

// minCostPerUnit keeps efficiency finite.
const minCostPerUnit = 0.01

// Resource is a named, selectable backing capability.
type Resource struct {
	Name            string        `json:"name"`
	Provider        string        `json:"provider"`
	Model           string        `json:"model"`
	CostPerUnit     float64       `json:"cost_per_unit"`
	Tier            Tier          `json:"tier,omitempty"`
	Expertise       []string      `json:"expertise"`
	BaselineQuality float64       `json:"baseline_quality"`
	BaselineLatency time.Duration `json:"baseline_latency"`
}

// HasExpertise reports whether tag is one of the declared expertise tags.
// Comparison is case-insensitive.
func (r Resource) HasExpertise(tag string) bool {
	for _, e := range r.Expertise {
		if strings.EqualFold(e, tag) {
			return true
		}
	}
	return false
}

func (r Resource) clone() Resource {
	r.Expertise = append([]string(nil), r.Expertise...)
	return r
}

func normalizeResource(r Resource) Resource {
	r.Name = strings.TrimSpace(r.Name)
	if math.IsNaN(r.CostPerUnit) || r.CostPerUnit < minCostPerUnit {
		r.CostPerUnit = minCostPerUnit
	}
	r.BaselineQuality = clamp01(r.BaselineQuality)
	if r.BaselineLatency < 0 {
		r.BaselineLatency = 0
	}
	tags := make([]string, 0, len(r.Expertise))
	for _, e := range r.Expertise {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			tags = append(tags, e)
		}
	}
	r.Expertise = tags
	return r
}

// ResourcesFromConfig converts configured resources, preserving order.
func ResourcesFromConfig(cfgs []config.ResourceConfig) []Resource {
	out := make([]Resource, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, Resource{
			Name:            c.Name,
			Provider:        c.Provider,
			Model:           c.Model,
			CostPerUnit:     c.CostPerUnit,
			Tier:            Tier(c.Tier),
			Expertise:       append([]string(nil), c.Expertise...),
			BaselineQuality: c.BaselineQuality,
			BaselineLatency: c.BaselineLatency.Duration(),
		})
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
