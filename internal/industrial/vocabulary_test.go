package industrial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_BuildingIsIndustrial(t *testing.T) {
	m := testMatcher(t)

	for _, v := range DefaultBuildingValues {
		assert.True(t, m.BuildingIsIndustrial(Tags{"building": v}), v)
	}
	assert.True(t, m.BuildingIsIndustrial(Tags{"building": " warehouse "}))
	assert.False(t, m.BuildingIsIndustrial(Tags{"building": "yes"}))
	assert.False(t, m.BuildingIsIndustrial(Tags{"building": "Industrial"}))
	assert.False(t, m.BuildingIsIndustrial(Tags{"landuse": "industrial"}))
	assert.False(t, m.BuildingIsIndustrial(nil))
}

func TestMatcher_AreaFlags(t *testing.T) {
	tests := []struct {
		name         string
		countsAsLike bool
		tags         Tags
		industrial   bool
		like         bool
	}{
		{name: "industrial", tags: Tags{"landuse": "industrial"}, industrial: true},
		{name: "industrial counts as like", countsAsLike: true, tags: Tags{"landuse": "industrial"}, industrial: true, like: true},
		{name: "commercial", tags: Tags{"landuse": "commercial"}, like: true},
		{name: "port", tags: Tags{"landuse": "port"}, like: true},
		{name: "residential", tags: Tags{"landuse": "residential"}},
		{name: "no landuse", tags: Tags{"building": "industrial"}},
		{name: "empty value", tags: Tags{"landuse": ""}},
		{name: "nil tags", tags: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := DefaultVocabulary()
			v.IndustrialCountsAsLike = tt.countsAsLike
			m, err := v.Compile()
			require.NoError(t, err)

			industrial, like := m.AreaFlags(tt.tags)
			assert.Equal(t, tt.industrial, industrial)
			assert.Equal(t, tt.like, like)
		})
	}
}

func TestMatcher_IsBuildingIsLanduse(t *testing.T) {
	m := testMatcher(t)
	assert.True(t, m.IsBuilding(Tags{"building": "yes"}))
	assert.False(t, m.IsBuilding(Tags{"landuse": "industrial"}))
	assert.True(t, m.IsLanduse(Tags{"landuse": "industrial"}))
	assert.False(t, m.IsLanduse(Tags{"amenity": "parking"}))
}

func TestVocabulary_CompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(v *Vocabulary)
		errMsg string
	}{
		{"missing building key", func(v *Vocabulary) { v.BuildingKey = " " }, "building_key"},
		{"missing landuse key", func(v *Vocabulary) { v.LanduseKey = "" }, "landuse_key"},
		{"no building values", func(v *Vocabulary) { v.BuildingValues = []string{"", "  "} }, "building value"},
		{"no landuse values", func(v *Vocabulary) {
			v.IndustrialLanduse = nil
			v.IndustrialLike = nil
		}, "landuse value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := DefaultVocabulary()
			tt.mutate(&v)
			_, err := v.Compile()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDefaultVocabulary_ReturnsCopies(t *testing.T) {
	v := DefaultVocabulary()
	v.BuildingValues[0] = "changed"
	assert.Equal(t, "industrial", DefaultBuildingValues[0])
}
