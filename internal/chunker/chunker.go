// Package chunker splits large text into line-preserving pieces sized by an
// approximate word budget.
package chunker

import (
	"iter"
	"strings"
)

// DefaultBudget is the word budget used when none is configured
const DefaultBudget = 1500

// EstimateTokens approximates the size of text as its whitespace-delimited
// word count.
func EstimateTokens(text string) int {
	return len(strings.Fields(text))
}

// Chunks yields consecutive pieces of text. Lines are never split; the budget
// is checked after appending each line, so the line that crosses it still
// belongs to the current chunk. Blank lines following a crossing line stay in
// that chunk as well. Joining the chunks with "\n" reproduces text exactly.
//
// Empty text yields nothing. A budget <= 0 yields text as a single chunk.
// The sequence can be ranged over any number of times.
func Chunks(text string, budget int) iter.Seq[string] {
	return func(yield func(string) bool) {
		if text == "" {
			return
		}
		if budget <= 0 {
			yield(text)
			return
		}

		lines := strings.Split(text, "\n")
		start := 0
		tokens := 0
		full := false

		for i, line := range lines {
			weight := EstimateTokens(line)
			if full && weight > 0 {
				if !yield(strings.Join(lines[start:i], "\n")) {
					return
				}
				start = i
				tokens = 0
				full = false
			}
			tokens += weight
			if tokens > budget {
				full = true
			}
		}

		yield(strings.Join(lines[start:], "\n"))
	}
}

// Split collects Chunks into a slice
func Split(text string, budget int) []string {
	chunks := []string{}
	for chunk := range Chunks(text, budget) {
		chunks = append(chunks, chunk)
	}
	return chunks
}
