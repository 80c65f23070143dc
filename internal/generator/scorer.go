package generator

import "math"

// Scorer rates a response's quality in [0,1].
type Scorer interface {
	Score(req Request, resp *Response) float64
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(req Request, resp *Response) float64

// Score calls f.
func (f ScorerFunc) Score(req Request, resp *Response) float64 {
	return f(req, resp)
}

// HeuristicScorer rates answers by keyword coverage of the prompt, length
// and sentence structure. Weights must sum to 1.
type HeuristicScorer struct {
	CoverageWeight  float64
	LengthWeight    float64
	StructureWeight float64

	// TargetWords is the answer length that earns the full length score.
	TargetWords int
}

// NewHeuristicScorer returns a scorer with the default weights.
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{
		CoverageWeight:  0.5,
		LengthWeight:    0.3,
		StructureWeight: 0.2,
		TargetWords:     40,
	}
}

// Score implements Scorer.
func (h *HeuristicScorer) Score(req Request, resp *Response) float64 {
	if resp == nil || resp.Text == "" {
		return 0
	}

	answer := words(resp.Text)
	if len(answer) == 0 {
		return 0
	}

	coverage := 1.0
	if kws := Keywords(req.Prompt); len(kws) > 0 {
		have := make(map[string]bool, len(answer))
		for _, w := range answer {
			have[w] = true
		}
		hit := 0
		for _, kw := range kws {
			if have[kw] {
				hit++
			}
		}
		coverage = float64(hit) / float64(len(kws))
	}

	target := h.TargetWords
	if target <= 0 {
		target = 40
	}
	length := math.Min(1, float64(len(answer))/float64(target))

	structure := 0.5
	if sentenceCount(resp.Text) > 0 {
		structure = 1
	}

	score := h.CoverageWeight*coverage + h.LengthWeight*length + h.StructureWeight*structure
	return math.Max(0, math.Min(1, score))
}
