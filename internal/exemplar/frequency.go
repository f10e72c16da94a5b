// Package exemplar picks a human-readable representative line for a cluster.
package exemplar

import (
	"math"
	"regexp"
	"strings"
)

// FrequencyPicker ranks lines by how common their tokens are across the cluster.
type FrequencyPicker struct {
	tokenPattern *regexp.Regexp
}

// NewFrequencyPicker creates a frequency-based exemplar picker.
func NewFrequencyPicker() *FrequencyPicker {
	return &FrequencyPicker{
		tokenPattern: regexp.MustCompile(`<[A-Za-z_]+>|\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
	}
}

// Pick returns the line whose tokens are most frequent across lines, the
// earliest on ties. It returns "" for no lines.
func (p *FrequencyPicker) Pick(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	// Document frequency: a token counts once per line.
	freq := map[string]float64{}
	for _, line := range lines {
		seen := map[string]struct{}{}
		for _, tok := range p.tokens(line) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			freq[tok]++
		}
	}
	n := float64(len(lines))
	best, bestScore := 0, -1.0
	for i, line := range lines {
		toks := p.tokens(line)
		score := 0.0
		for _, tok := range toks {
			score += freq[tok] / n
		}
		// Normalize by line length to avoid bias
		if l := float64(len(toks)); l > 0 {
			score /= math.Sqrt(l)
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return strings.TrimSpace(lines[best])
}

func (p *FrequencyPicker) tokens(text string) []string {
	return p.tokenPattern.FindAllString(strings.ToLower(text), -1)
}
