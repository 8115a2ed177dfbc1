package industrial

type idSet map[ID]struct{}

func (s idSet) add(id ID) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

// BuildingEvidence is what is known about one building during a run.
// ContainingAreas only grows until finalization.
type BuildingEvidence struct {
	SelfIndustrial  bool
	ContainingAreas idSet

	// seen is set once the building's own tags have been recorded. Placeholder
	// entries created by a containment fact stay unseen.
	seen bool
}

// AreaState is what is known about one landuse area during a run.
// ContainedIndustrial is filled only at finalization, from self-tagged
// buildings, never from buildings that qualify through an area.
type AreaState struct {
	IndustrialTagged    bool
	IndustrialLike      bool
	ContainedIndustrial idSet

	seen bool
}

// accumulator owns the per-run building evidence and area registry.
type accumulator struct {
	buildings map[ID]*BuildingEvidence
	areas     map[ID]*AreaState

	containments int
	duplicates   int
}

func newAccumulator() *accumulator {
	return &accumulator{
		buildings: make(map[ID]*BuildingEvidence),
		areas:     make(map[ID]*AreaState),
	}
}

func (a *accumulator) building(id ID) *BuildingEvidence {
	b, ok := a.buildings[id]
	if !ok {
		b = &BuildingEvidence{ContainingAreas: make(idSet)}
		a.buildings[id] = b
	}
	return b
}

func (a *accumulator) area(id ID) *AreaState {
	s, ok := a.areas[id]
	if !ok {
		s = &AreaState{ContainedIndustrial: make(idSet)}
		a.areas[id] = s
	}
	return s
}

// recordBuilding sets the building's own industrial flag. A repeated
// sighting overwrites the previous one.
func (a *accumulator) recordBuilding(id ID, selfIndustrial bool) {
	b := a.building(id)
	if b.seen {
		a.duplicates++
	}
	b.seen = true
	b.SelfIndustrial = selfIndustrial
}

// recordArea sets the area's flags. A repeated sighting overwrites the
// previous one.
func (a *accumulator) recordArea(id ID, industrial, like bool) {
	s := a.area(id)
	if s.seen {
		a.duplicates++
	}
	s.seen = true
	s.IndustrialTagged = industrial
	s.IndustrialLike = like
}

// recordContainment notes that building lies within area. Either side is
// created with non-industrial defaults if it has not been seen yet.
func (a *accumulator) recordContainment(building, area ID) {
	a.area(area)
	if a.building(building).ContainingAreas.add(area) {
		a.containments++
	}
}

// merge folds other into a. Containment sets are unioned; flags from other
// win only where other saw the record's tags.
func (a *accumulator) merge(other *accumulator) {
	for id, ob := range other.buildings {
		b := a.building(id)
		if ob.seen {
			if b.seen {
				a.duplicates++
			}
			b.seen = true
			b.SelfIndustrial = ob.SelfIndustrial
		}
		for area := range ob.ContainingAreas {
			if b.ContainingAreas.add(area) {
				a.containments++
			}
		}
	}
	for id, oa := range other.areas {
		s := a.area(id)
		if oa.seen {
			if s.seen {
				a.duplicates++
			}
			s.seen = true
			s.IndustrialTagged = oa.IndustrialTagged
			s.IndustrialLike = oa.IndustrialLike
		}
	}
	a.duplicates += other.duplicates
}

// linkIndustrial resolves the reverse side of containment: every area learns
// which self-tagged industrial buildings it contains.
func (a *accumulator) linkIndustrial() {
	for id, b := range a.buildings {
		if !b.SelfIndustrial {
			continue
		}
		for area := range b.ContainingAreas {
			a.area(area).ContainedIndustrial.add(id)
		}
	}
}

// criteria evaluates all three criteria for one building.
func (a *accumulator) criteria(b *BuildingEvidence) Criteria {
	var c Criteria
	if b.SelfIndustrial {
		c |= SelfTagged
	}
	for areaID := range b.ContainingAreas {
		s, ok := a.areas[areaID]
		if !ok {
			continue
		}
		if s.IndustrialTagged {
			c |= IndustrialArea
		}
		if s.IndustrialLike && len(s.ContainedIndustrial) > 0 {
			c |= IndustrialLikeArea
		}
	}
	return c
}
