// Package search looks up package names in a local index.
package search

import (
	"slices"
	"sort"

	"github.com/agnivade/levenshtein"
	"github.com/gobwas/glob"
)

// Index is an ordered list of searchable package names. A nil *Index is
// valid and never matches anything.
type Index struct {
	names []string
}

func NewIndex(names []string) *Index {
	return &Index{names: slices.Clone(names)}
}

// Len returns the number of names in the index.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.names)
}

// Search returns the names containing query, closest first by edit distance.
// Names at the same distance keep their index order. The query is matched
// literally and case-sensitively; glob metacharacters in it are escaped.
func (ix *Index) Search(query string) []string {
	if ix == nil || query == "" {
		return []string{}
	}

	g, err := glob.Compile("*" + glob.QuoteMeta(query) + "*")
	if err != nil {
		return []string{}
	}

	type candidate struct {
		name     string
		distance int
	}
	var candidates []candidate
	for _, name := range ix.names {
		if g.Match(name) {
			candidates = append(candidates, candidate{name, levenshtein.ComputeDistance(query, name)})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})

	results := make([]string, len(candidates))
	for i, c := range candidates {
		results[i] = c.name
	}
	return results
}
