// Package retrieval ranks knowledge fragments against a query by naive
// keyword overlap. It is intentionally simple: no stemming, no tf-idf, and
// substring containment rather than token equality, so a short query word can
// match inside a longer unrelated word. That imprecision is accepted
// behavior.
package retrieval

import (
	"sort"
	"strings"

	"github.com/lordofthechatbot/server/domain/entities"
)

// DefaultFragmentCount is the number of fragments handed to the response
// generator when the caller does not specify one.
const DefaultFragmentCount = 3

// minWordLength filters out short stopword-like tokens ("a", "to", "is").
const minWordLength = 3

// TopFragments returns up to count fragments from the knowledge base ranked
// by how many distinct query words each contains. Fragments that match no
// query word are dropped. Ties keep the original fragment order, so the
// result is deterministic for a fixed corpus ordering.
func TopFragments(query string, knowledge entities.Knowledge, count int) []string {
	if count <= 0 || len(knowledge.Texts) == 0 {
		return nil
	}

	queryWords := queryWordSet(query)
	if len(queryWords) == 0 {
		return nil
	}

	type scored struct {
		index int
		score int
	}

	var matches []scored
	for i, fragment := range knowledge.Texts {
		lower := strings.ToLower(fragment.Text)
		score := 0
		for word := range queryWords {
			if strings.Contains(lower, word) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{index: i, score: score})
		}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].score > matches[b].score
	})

	if len(matches) > count {
		matches = matches[:count]
	}

	result := make([]string, len(matches))
	for i, m := range matches {
		result[i] = knowledge.Texts[m.index].Text
	}
	return result
}

// queryWordSet tokenizes the query by whitespace, lower-cases it and keeps
// distinct words longer than two characters.
func queryWordSet(query string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) < minWordLength {
			continue
		}
		words[w] = struct{}{}
	}
	return words
}
