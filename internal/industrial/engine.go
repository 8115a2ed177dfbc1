package industrial

import (
	"github.com/rotisserie/eris"
)

// Usage errors. Data-quality problems are never reported as errors.
var (
	ErrSealed          = eris.New("industrial: engine is sealed")
	ErrMatcherMismatch = eris.New("industrial: engines use different vocabularies")
)

type state uint8

const (
	accumulating state = iota
	sealed
)

// Stats summarises what an engine has ingested.
type Stats struct {
	Buildings    int
	Areas        int
	Containments int
	Duplicates   int
}

// Engine accumulates building, area and containment records for one run and
// classifies every building once the run is complete. Records may arrive in
// any order. An Engine is not safe for concurrent use; give each worker its
// own engine and Merge them before Finalize.
type Engine struct {
	matcher *Matcher
	acc     *accumulator
	state   state
	result  *Result
}

// NewEngine returns an engine in the accumulating state.
func NewEngine(m *Matcher) *Engine {
	return &Engine{matcher: m, acc: newAccumulator()}
}

// Matcher returns the vocabulary the engine classifies with.
func (e *Engine) Matcher() *Matcher { return e.matcher }

// RecordBuilding records a building's own tags.
func (e *Engine) RecordBuilding(id ID, tags Tags) error {
	if e.state == sealed {
		return ErrSealed
	}
	e.acc.recordBuilding(id, e.matcher.BuildingIsIndustrial(tags))
	return nil
}

// RecordArea records a landuse area's tags.
func (e *Engine) RecordArea(id ID, tags Tags) error {
	if e.state == sealed {
		return ErrSealed
	}
	industrial, like := e.matcher.AreaFlags(tags)
	e.acc.recordArea(id, industrial, like)
	return nil
}

// RecordContainment records that building lies within area. Neither needs to
// have been recorded yet.
func (e *Engine) RecordContainment(building, area ID) error {
	if e.state == sealed {
		return ErrSealed
	}
	e.acc.recordContainment(building, area)
	return nil
}

// Merge folds other's records into e and seals other.
func (e *Engine) Merge(other *Engine) error {
	if e.state == sealed || other.state == sealed {
		return ErrSealed
	}
	if e.matcher != other.matcher {
		return ErrMatcherMismatch
	}
	e.acc.merge(other.acc)
	other.state = sealed
	other.acc = newAccumulator()
	return nil
}

// Finalize seals the engine and classifies every building whose tags were
// recorded. It may be called once; afterwards the result is available from
// Result.
func (e *Engine) Finalize() (*Result, error) {
	if e.state == sealed {
		return nil, ErrSealed
	}
	e.state = sealed

	e.acc.linkIndustrial()

	res := newResult()
	for id, b := range e.acc.buildings {
		// A building known only from containment facts never had its tags
		// recorded and is excluded.
		if !b.seen {
			continue
		}
		if c := e.acc.criteria(b); c != 0 {
			res.matches[id] = c
		}
	}
	e.result = res
	return res, nil
}

// Result returns the finalized result, or nil before Finalize.
func (e *Engine) Result() *Result { return e.result }

// Sealed reports whether Finalize or Merge has sealed the engine.
func (e *Engine) Sealed() bool { return e.state == sealed }

// Stats returns ingestion counts.
func (e *Engine) Stats() Stats {
	return Stats{
		Buildings:    len(e.acc.buildings),
		Areas:        len(e.acc.areas),
		Containments: e.acc.containments,
		Duplicates:   e.acc.duplicates,
	}
}
