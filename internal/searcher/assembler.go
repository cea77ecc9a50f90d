package searcher

import (
	"sort"
	"strings"

	"github.com/dshills/docsearch/pkg/types"
)

const (
	// DefaultMinOverlap is the shortest suffix/prefix match that joins two passages
	DefaultMinOverlap = 10

	// DefaultGapMarker separates excerpts that are not contiguous in the document
	DefaultGapMarker = "\n\n[...]\n\n"
)

// Assembler turns similarity-ranked passage hits into one result per document
type Assembler struct {
	MinOverlap int
	GapMarker  string
}

// NewAssembler returns an assembler with the default overlap and gap marker
func NewAssembler() *Assembler {
	return &Assembler{MinOverlap: DefaultMinOverlap, GapMarker: DefaultGapMarker}
}

// group collects one document's hits
type group struct {
	documentID int64
	title      string
	hits       []types.RankedHit
}

// run is a sequence of passages whose contents overlap end to start
type run struct {
	indices []int
	text    []rune
	last    []rune
}

// Assemble groups hits by document, stitches overlapping passages back into
// contiguous text, scores each document by the mean similarity of its hits
// and returns at most limit results, best first. Documents with equal scores
// keep the order in which they first appear in hits.
func (a *Assembler) Assemble(hits []types.RankedHit, limit int) []types.GroupedResult {
	if limit <= 0 || len(hits) == 0 {
		return []types.GroupedResult{}
	}

	groups := groupHits(hits)

	results := make([]types.GroupedResult, 0, len(groups))
	for _, g := range groups {
		results = append(results, a.assembleGroup(g))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// groupHits buckets hits by document in order of first appearance. A repeated
// (document, index) pair keeps only its first, highest ranked, hit.
func groupHits(hits []types.RankedHit) []*group {
	var order []*group
	byID := make(map[int64]*group)
	seen := make(map[[2]int64]bool)

	for _, h := range hits {
		k := [2]int64{h.DocumentID, int64(h.PassageIndex)}
		if seen[k] {
			continue
		}
		seen[k] = true

		g, ok := byID[h.DocumentID]
		if !ok {
			g = &group{documentID: h.DocumentID, title: h.DocumentTitle}
			byID[h.DocumentID] = g
			order = append(order, g)
		}
		g.hits = append(g.hits, h)
	}

	for _, g := range order {
		sort.SliceStable(g.hits, func(i, j int) bool {
			return g.hits[i].PassageIndex < g.hits[j].PassageIndex
		})
	}
	return order
}

func (a *Assembler) assembleGroup(g *group) types.GroupedResult {
	var sum float64
	indices := make([]int, len(g.hits))
	for i, h := range g.hits {
		sum += h.Similarity
		indices[i] = h.PassageIndex
	}

	runs := a.findRuns(g.hits)

	var b strings.Builder
	for i, r := range runs {
		if i > 0 {
			prev := runs[i-1].indices
			if r.indices[0] != prev[len(prev)-1]+1 {
				b.WriteString(a.gapMarker())
			}
		}
		b.WriteString(string(r.text))
	}

	return types.GroupedResult{
		DocumentID:    g.documentID,
		DocumentTitle: g.title,
		Content:       b.String(),
		Score:         sum / float64(len(g.hits)),
		ChunkIndices:  indices,
	}
}

// findRuns partitions index-sorted hits into runs. Each run starts at the
// lowest unused passage and grows by the unused passage with the longest
// qualifying overlap against its last passage, lowest index on ties.
func (a *Assembler) findRuns(hits []types.RankedHit) []*run {
	contents := make([][]rune, len(hits))
	for i, h := range hits {
		contents[i] = []rune(h.Content)
	}

	used := make([]bool, len(hits))
	var runs []*run

	for start := range hits {
		if used[start] {
			continue
		}
		used[start] = true
		r := &run{
			indices: []int{hits[start].PassageIndex},
			text:    append([]rune(nil), contents[start]...),
			last:    contents[start],
		}

		for {
			best, bestOverlap := -1, 0
			for j := range hits {
				if used[j] {
					continue
				}
				if n := longestOverlap(r.last, contents[j], a.minOverlap()); n > bestOverlap {
					best, bestOverlap = j, n
				}
			}
			if best < 0 {
				break
			}
			used[best] = true
			r.indices = append(r.indices, hits[best].PassageIndex)
			r.text = append(r.text, contents[best][bestOverlap:]...)
			r.last = contents[best]
		}

		runs = append(runs, r)
	}
	return runs
}

func (a *Assembler) minOverlap() int {
	if a.MinOverlap <= 0 {
		return 1
	}
	return a.MinOverlap
}

func (a *Assembler) gapMarker() string {
	if a.GapMarker == "" {
		return DefaultGapMarker
	}
	return a.GapMarker
}

// longestOverlap returns the length of the longest suffix of prev that is also
// a prefix of next, or 0 when it is shorter than minOverlap. A next shorter
// than minOverlap still matches when prev ends with all of it, which is how a
// document's last passages repeat the tail of their predecessor.
func longestOverlap(prev, next []rune, minOverlap int) int {
	minOverlap = min(minOverlap, len(next))
	if minOverlap == 0 {
		return 0
	}
	maxLen := min(len(prev), len(next))
	for n := maxLen; n >= minOverlap; n-- {
		if equalRunes(prev[len(prev)-n:], next[:n]) {
			return n
		}
	}
	return 0
}

func equalRunes(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Stitch joins parts in order, dropping from each part the longest prefix of
// at least minOverlap runes that repeats the end of the previous part. Parts
// without such an overlap are concatenated whole.
func Stitch(parts []string, minOverlap int) string {
	if minOverlap <= 0 {
		minOverlap = 1
	}

	var out []rune
	var prev []rune
	for i, p := range parts {
		cur := []rune(p)
		if i == 0 {
			out = append(out, cur...)
			prev = cur
			continue
		}
		n := longestOverlap(prev, cur, minOverlap)
		out = append(out, cur[n:]...)
		prev = cur
	}
	return string(out)
}
