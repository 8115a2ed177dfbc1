package industrial

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Default tag keys and values.
var (
	DefaultBuildingValues = []string{
		"industrial", "warehouse", "manufacture", "factory",
		"depot", "works", "workshop", "industrial_unit",
	}
	DefaultIndustrialLanduse = []string{"industrial"}
	DefaultIndustrialLike    = []string{"commercial", "industrial_park", "harbour", "logistics", "port"}
)

// Vocabulary lists the tag values that mark buildings and landuse areas as
// industrial or industrial-like.
type Vocabulary struct {
	BuildingKey       string   `yaml:"building_key" mapstructure:"building_key"`
	LanduseKey        string   `yaml:"landuse_key" mapstructure:"landuse_key"`
	BuildingValues    []string `yaml:"building_values" mapstructure:"building_values"`
	IndustrialLanduse []string `yaml:"industrial_landuse" mapstructure:"industrial_landuse"`
	IndustrialLike    []string `yaml:"industrial_like" mapstructure:"industrial_like"`

	// IndustrialCountsAsLike makes an industrial-tagged area also satisfy the
	// industrial-like half of the shared-area criterion.
	IndustrialCountsAsLike bool `yaml:"industrial_counts_as_like" mapstructure:"industrial_counts_as_like"`
}

// DefaultVocabulary returns the stock OSM vocabulary.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		BuildingKey:       "building",
		LanduseKey:        "landuse",
		BuildingValues:    append([]string(nil), DefaultBuildingValues...),
		IndustrialLanduse: append([]string(nil), DefaultIndustrialLanduse...),
		IndustrialLike:    append([]string(nil), DefaultIndustrialLike...),
	}
}

// Compile validates the vocabulary and builds a Matcher.
func (v Vocabulary) Compile() (*Matcher, error) {
	m := &Matcher{
		buildingKey:     strings.TrimSpace(v.BuildingKey),
		landuseKey:      strings.TrimSpace(v.LanduseKey),
		buildingValues:  toSet(v.BuildingValues),
		industrialAreas: toSet(v.IndustrialLanduse),
		likeAreas:       toSet(v.IndustrialLike),
		countsAsLike:    v.IndustrialCountsAsLike,
	}
	if m.buildingKey == "" || m.landuseKey == "" {
		return nil, eris.New("industrial: vocabulary building_key and landuse_key are required")
	}
	if len(m.buildingValues) == 0 {
		return nil, eris.New("industrial: vocabulary needs at least one industrial building value")
	}
	if len(m.industrialAreas) == 0 && len(m.likeAreas) == 0 {
		return nil, eris.New("industrial: vocabulary needs at least one industrial or industrial-like landuse value")
	}
	return m, nil
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}

// Matcher answers vocabulary questions about tag sets. It is immutable and
// safe for concurrent use.
type Matcher struct {
	buildingKey     string
	landuseKey      string
	buildingValues  map[string]struct{}
	industrialAreas map[string]struct{}
	likeAreas       map[string]struct{}
	countsAsLike    bool
}

// IsBuilding reports whether the tags describe a building.
func (m *Matcher) IsBuilding(tags Tags) bool {
	_, ok := tags[m.buildingKey]
	return ok
}

// IsLanduse reports whether the tags describe a landuse area.
func (m *Matcher) IsLanduse(tags Tags) bool {
	_, ok := tags[m.landuseKey]
	return ok
}

// BuildingIsIndustrial reports whether a building's own tags mark it industrial.
func (m *Matcher) BuildingIsIndustrial(tags Tags) bool {
	_, ok := m.buildingValues[strings.TrimSpace(tags[m.buildingKey])]
	return ok
}

// AreaFlags returns whether a landuse area is tagged industrial and whether it
// carries an industrial-like value.
func (m *Matcher) AreaFlags(tags Tags) (industrial, like bool) {
	val := strings.TrimSpace(tags[m.landuseKey])
	if val == "" {
		return false, false
	}
	_, industrial = m.industrialAreas[val]
	_, like = m.likeAreas[val]
	if industrial && m.countsAsLike {
		like = true
	}
	return industrial, like
}

// BuildingValue returns the trimmed building tag value, or "" when absent.
func (m *Matcher) BuildingValue(tags Tags) string {
	return strings.TrimSpace(tags[m.buildingKey])
}

// LanduseValue returns the trimmed landuse tag value, or "" when absent.
func (m *Matcher) LanduseValue(tags Tags) string {
	return strings.TrimSpace(tags[m.landuseKey])
}

// LanduseTags returns the tag set of an area known only by its landuse value.
func (m *Matcher) LanduseTags(value string) Tags {
	return Tags{m.landuseKey: value}
}
