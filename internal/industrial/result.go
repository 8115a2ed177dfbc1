package industrial

import (
	"sort"
	"strings"
)

// Criteria is a bitmask of the reasons a building was classified industrial.
type Criteria uint8

// Classification criteria.
const (
	// SelfTagged: the building's own tags mark it industrial.
	SelfTagged Criteria = 1 << iota
	// IndustrialArea: a containing landuse area is tagged industrial.
	IndustrialArea
	// IndustrialLikeArea: a containing area is industrial-like and contains at
	// least one self-tagged industrial building.
	IndustrialLikeArea
)

var criteriaNames = []struct {
	c    Criteria
	name string
}{
	{SelfTagged, "self_tagged"},
	{IndustrialArea, "industrial_area"},
	{IndustrialLikeArea, "industrial_like_area"},
}

// Has reports whether all bits of o are set in c.
func (c Criteria) Has(o Criteria) bool { return c&o == o && o != 0 }

// Names returns the names of the set criteria in a fixed order.
func (c Criteria) Names() []string {
	var names []string
	for _, cn := range criteriaNames {
		if c&cn.c != 0 {
			names = append(names, cn.name)
		}
	}
	return names
}

// String joins Names with "|", or returns "none".
func (c Criteria) String() string {
	if c == 0 {
		return "none"
	}
	return strings.Join(c.Names(), "|")
}

// Match is one industrial building with its provenance.
type Match struct {
	ID       ID
	Criteria Criteria
}

// Result is the deduplicated set of industrial buildings produced by a
// finalized engine. It is immutable.
type Result struct {
	matches map[ID]Criteria
}

func newResult() *Result {
	return &Result{matches: make(map[ID]Criteria)}
}

// Len returns the number of industrial buildings.
func (r *Result) Len() int { return len(r.matches) }

// Contains reports whether the building was classified industrial.
func (r *Result) Contains(id ID) bool {
	_, ok := r.matches[id]
	return ok
}

// Criteria returns the criteria a building satisfied.
func (r *Result) Criteria(id ID) (Criteria, bool) {
	c, ok := r.matches[id]
	return c, ok
}

// IDs returns the industrial building IDs ordered by kind, then ref.
func (r *Result) IDs() []ID {
	ids := make([]ID, 0, len(r.matches))
	for id := range r.matches {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].less(ids[j]) })
	return ids
}

// Matches returns every industrial building with its criteria, ordered like IDs.
func (r *Result) Matches() []Match {
	ids := r.IDs()
	out := make([]Match, len(ids))
	for i, id := range ids {
		out[i] = Match{ID: id, Criteria: r.matches[id]}
	}
	return out
}

// CountBy returns how many buildings satisfied each single criterion. A
// building matching several criteria is counted under each of them.
func (r *Result) CountBy() map[Criteria]int {
	counts := make(map[Criteria]int, len(criteriaNames))
	for _, c := range r.matches {
		for _, cn := range criteriaNames {
			if c&cn.c != 0 {
				counts[cn.c]++
			}
		}
	}
	return counts
}
