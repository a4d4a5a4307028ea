package provider

import (
	"strings"
)

type scoreRule struct {
	any    []string
	weight int
}

// Applied additively; each rule counts once however many of its substrings match.
var scoreRules = []scoreRule{
	{any: []string{"llama"}, weight: 50},
	{any: []string{"3.3", "3.2", "3.1"}, weight: 25},
	{any: []string{"70b"}, weight: 20},
	{any: []string{"versatile", "instruct", "it"}, weight: 10},
	{any: []string{"8b"}, weight: 5},
	{any: []string{"vision"}, weight: -5},
	{any: []string{"whisper", "tts", "embedding"}, weight: -100},
}

// Score rates a model id for general-purpose chat. Large instruction-tuned
// Llama models score highest; audio and embedding models are pushed far
// below anything usable.
func Score(model string) int {
	s := strings.ToLower(model)
	score := 0
	for _, rule := range scoreRules {
		for _, sub := range rule.any {
			if strings.Contains(s, sub) {
				score += rule.weight
				break
			}
		}
	}
	return score
}

// SelectModel picks a model from catalog. An override present in the catalog
// (exact match) wins; otherwise the highest Score wins and ties go to the
// earliest candidate. An empty catalog yields "".
func SelectModel(catalog []string, override string) string {
	if override != "" {
		for _, m := range catalog {
			if m == override {
				return override
			}
		}
	}

	if len(catalog) == 0 {
		return ""
	}

	best := catalog[0]
	bestScore := Score(best)
	for _, m := range catalog[1:] {
		if sc := Score(m); sc > bestScore {
			best, bestScore = m, sc
		}
	}
	return best
}

// RankedModel is a catalog entry with its score.
type RankedModel struct {
	ID    string
	Score int
}

// Rank scores every catalog entry, preserving catalog order.
func Rank(catalog []string) []RankedModel {
	ranked := make([]RankedModel, 0, len(catalog))
	for _, m := range catalog {
		ranked = append(ranked, RankedModel{ID: m, Score: Score(m)})
	}
	return ranked
}
