package genai

import (
	"math/rand"
)

func capSamples(prompts []string, max int) []string {
	if max <= 0 || len(prompts) <= max {
		return prompts
	}
	return prompts[:max]
}

// samplePrompts random-samples the pool down to size without mutating the
// caller's slice.
func samplePrompts(pool []string, size int) []string {
	if size <= 0 || len(pool) <= size {
		out := make([]string, len(pool))
		copy(out, pool)
		return out
	}
	indices := rand.Perm(len(pool))[:size]
	out := make([]string, 0, size)
	for _, idx := range indices {
		out = append(out, pool[idx])
	}
	return out
}

func firstN(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
