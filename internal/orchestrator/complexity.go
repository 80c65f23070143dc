package orchestrator

import (
	"math"

	"github.com/fyrsmithlabs/switchboard/internal/generator"
)

// deepTerms raise the estimated complexity of a query.
var deepTerms = map[string]bool{
	"architecture": true, "architect": true, "design": true, "distributed": true,
	"concurrency": true, "consensus": true, "optimize": true, "performance": true,
	"scalability": true, "scale": true, "tradeoff": true, "tradeoffs": true,
	"compare": true, "migration": true, "migrate": true, "security": true,
	"analyze": true, "analysis": true, "debug": true, "proof": true,
}

// EstimateComplexity scores a query in [0,1] from its keyword count and the
// presence of terms that usually need a heavyweight resource.
func EstimateComplexity(query string) float64 {
	kws := generator.Keywords(query)
	c := 0.1 + 0.05*float64(len(kws))
	for _, kw := range kws {
		if deepTerms[kw] {
			c += 0.15
		}
	}
	return math.Min(1, c)
}
