package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"go.uber.org/goleak"

	"github.com/sells-group/industrial-cli/internal/containment"
	"github.com/sells-group/industrial-cli/internal/industrial"
	"github.com/sells-group/industrial-cli/internal/model"
	"github.com/sells-group/industrial-cli/internal/osm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSource replays a fixed record list.
type fakeSource struct {
	nodes     []osm.Node
	ways      []osm.Feature
	relations []osm.Relation
	err       error
}

func (s *fakeSource) Apply(ctx context.Context, h osm.Handler) error {
	for _, n := range s.nodes {
		if err := h.Node(n); err != nil {
			return err
		}
	}
	for _, w := range s.ways {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.Way(w); err != nil {
			return err
		}
	}
	for _, r := range s.relations {
		if err := h.Relation(r); err != nil {
			return err
		}
	}
	return s.err
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Containing(ctx context.Context, b osm.Feature) ([]industrial.ID, error) {
	args := m.Called(ctx, b)
	ids, _ := args.Get(0).([]industrial.ID)
	return ids, args.Error(1)
}

func square(minX, minY, size float64) *geom.MultiPolygon {
	poly := geom.NewPolygon(geom.XY)
	ring := geom.NewLinearRingFlat(geom.XY, []float64{
		minX, minY, minX + size, minY, minX + size, minY + size, minX, minY + size, minX, minY,
	})
	if err := poly.Push(ring); err != nil {
		panic(err)
	}
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	if err := mp.Push(poly); err != nil {
		panic(err)
	}
	return mp
}

func buildingAt(ref int64, value string, x, y float64) osm.Feature {
	return osm.Feature{
		ID:       industrial.WayID(ref),
		Tags:     industrial.Tags{"building": value},
		Geometry: square(x, y, 0.001),
	}
}

func landuseAt(ref int64, value string, x, y, size float64) osm.Feature {
	return osm.Feature{
		ID:       industrial.WayID(ref),
		Tags:     industrial.Tags{"landuse": value},
		Geometry: square(x, y, size),
	}
}

func testMatcher(t *testing.T) *industrial.Matcher {
	t.Helper()
	m, err := industrial.DefaultVocabulary().Compile()
	require.NoError(t, err)
	return m
}

// fixture: an industrial zone at (0,0), a commercial zone at (1,1) holding one
// warehouse, a residential zone at (2,2) holding a factory.
func fixture() *fakeSource {
	return &fakeSource{
		nodes: []osm.Node{{ID: 1}, {ID: 2}},
		ways: []osm.Feature{
			buildingAt(1, "yes", 0.1, 0.1),
			landuseAt(100, "industrial", 0, 0, 0.5),
			buildingAt(2, "yes", 1.1, 1.1),
			buildingAt(3, "warehouse", 1.2, 1.2),
			landuseAt(200, "commercial", 1, 1, 0.5),
			buildingAt(4, "yes", 5, 5),
			buildingAt(5, "factory", 2.1, 2.1),
			landuseAt(300, "residential", 2, 2, 0.5),
			buildingAt(6, "yes", 2.2, 2.2),
			// Open way and a duplicate sighting.
			{ID: industrial.WayID(7), Tags: industrial.Tags{"building": "industrial"}},
			buildingAt(2, "yes", 1.1, 1.1),
		},
		relations: []osm.Relation{{ID: 1}},
	}
}

func TestRun_ClassifiesFixture(t *testing.T) {
	m := testMatcher(t)

	for _, workers := range []int{1, 2, 8} {
		p := New(fixture(), m, containment.NewIndex(0.25), WithWorkers(workers))
		out, err := p.Run(context.Background(), "run-1")
		require.NoError(t, err)

		assert.Equal(t, "run-1", out.RunID)
		assert.Equal(t, []industrial.ID{
			industrial.WayID(1), industrial.WayID(2), industrial.WayID(3),
			industrial.WayID(5), industrial.WayID(7),
		}, out.Result.IDs())

		c, _ := out.Result.Criteria(industrial.WayID(1))
		assert.Equal(t, industrial.IndustrialArea, c)
		c, _ = out.Result.Criteria(industrial.WayID(2))
		assert.Equal(t, industrial.IndustrialLikeArea, c)
		c, _ = out.Result.Criteria(industrial.WayID(3))
		assert.Equal(t, industrial.SelfTagged|industrial.IndustrialLikeArea, c)
		assert.False(t, out.Result.Contains(industrial.WayID(6)), "residential zone is not industrial-like")

		assert.Equal(t, 2, out.Stats.Nodes)
		assert.Equal(t, 11, out.Stats.Ways)
		assert.Equal(t, 1, out.Stats.Relations)
		assert.Equal(t, 7, out.Stats.Buildings)
		assert.Equal(t, 3, out.Stats.Areas)
		assert.Equal(t, 1, out.Stats.Unresolved)
		assert.Equal(t, 5, out.Stats.Industrial)
		assert.Equal(t, 5, out.Stats.Containments)
		assert.Equal(t, 1, out.Stats.Duplicates)
	}
}

func TestRun_Rows(t *testing.T) {
	p := New(fixture(), testMatcher(t), containment.NewIndex(0.25))
	out, err := p.Run(context.Background(), "")
	require.NoError(t, err)
	require.NotEmpty(t, out.RunID)
	require.Len(t, out.Buildings, 5)

	first := out.Buildings[0]
	assert.Equal(t, out.RunID, first.RunID)
	assert.Equal(t, "way", first.OSMType)
	assert.Equal(t, int64(1), first.OSMID)
	assert.Equal(t, "yes", first.Building)
	assert.Equal(t, []string{"industrial_area"}, first.Criteria)
	require.NotNil(t, first.Lon)
	assert.InDelta(t, 0.1005, *first.Lon, 1e-9)
	assert.InDelta(t, 0.1005, *first.Lat, 1e-9)
	wkb, err := osm.EncodeWKB(square(0.1, 0.1, 0.001))
	require.NoError(t, err)
	assert.Equal(t, model.EWKB(wkb), first.Footprint)
	require.NotNil(t, first.AreaM2)
	assert.InDelta(t, 12364, *first.AreaM2, 5)

	open := out.Buildings[4]
	assert.Equal(t, int64(7), open.OSMID)
	assert.Equal(t, []string{"self_tagged"}, open.Criteria)
	assert.Nil(t, open.Lon)
	assert.Empty(t, open.Footprint)
	assert.Nil(t, open.AreaM2)
}

func TestRun_SourceError(t *testing.T) {
	src := fixture()
	src.err = errors.New("truncated file")

	_, err := New(src, testMatcher(t), containment.NewIndex(0.25)).Run(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "truncated file")
}

func TestRun_ResolverError(t *testing.T) {
	r := new(mockResolver)
	r.On("Containing", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	_, err := New(fixture(), testMatcher(t), r, WithWorkers(3)).Run(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestRun_ExternalResolver(t *testing.T) {
	src := &fakeSource{ways: []osm.Feature{
		buildingAt(1, "yes", 0, 0),
		{ID: industrial.RelationID(9), Tags: industrial.Tags{"landuse": "industrial"}},
	}}
	r := new(mockResolver)
	r.On("Containing", mock.Anything, mock.MatchedBy(func(f osm.Feature) bool {
		return f.ID == industrial.WayID(1)
	})).Return([]industrial.ID{industrial.RelationID(9)}, nil).Once()

	out, err := New(src, testMatcher(t), r).Run(context.Background(), "ext")
	require.NoError(t, err)
	assert.True(t, out.Result.Contains(industrial.WayID(1)))
	r.AssertExpectations(t)
}

// labelledResolver answers from a fixed table and labels the areas it knows.
type labelledResolver struct {
	containing map[industrial.ID][]industrial.ID
	landuse    map[industrial.ID]string
}

func (r *labelledResolver) Containing(_ context.Context, b osm.Feature) ([]industrial.ID, error) {
	return r.containing[b.ID], nil
}

func (r *labelledResolver) AreaLanduse() map[industrial.ID]string { return r.landuse }

func TestRun_StoredAreaLanduse(t *testing.T) {
	src := &fakeSource{ways: []osm.Feature{
		buildingAt(1, "yes", 0, 0),
		buildingAt(2, "yes", 1, 1),
		buildingAt(3, "works", 1.1, 1.1),
		buildingAt(4, "yes", 2, 2),
		// Source tags beat the stored value.
		{ID: industrial.WayID(400), Tags: industrial.Tags{"landuse": "residential"}},
	}}
	r := &labelledResolver{
		containing: map[industrial.ID][]industrial.ID{
			industrial.WayID(1): {industrial.WayID(100)},
			industrial.WayID(2): {industrial.RelationID(200)},
			industrial.WayID(3): {industrial.RelationID(200)},
			industrial.WayID(4): {industrial.WayID(400)},
		},
		landuse: map[industrial.ID]string{
			industrial.WayID(100):      "industrial",
			industrial.RelationID(200): "port",
			industrial.WayID(400):      "industrial",
		},
	}

	cached, err := containment.NewCached(r, 10)
	require.NoError(t, err)

	out, err := New(src, testMatcher(t), cached).Run(context.Background(), "stored")
	require.NoError(t, err)
	assert.Equal(t, []industrial.ID{
		industrial.WayID(1), industrial.WayID(2), industrial.WayID(3),
	}, out.Result.IDs())

	c, _ := out.Result.Criteria(industrial.WayID(1))
	assert.Equal(t, industrial.IndustrialArea, c)
	c, _ = out.Result.Criteria(industrial.WayID(2))
	assert.Equal(t, industrial.IndustrialLikeArea, c)
	assert.Equal(t, 1, out.Stats.Areas, "stored areas are not counted as source areas")
	assert.Equal(t, 0, out.Stats.Duplicates)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(fixture(), testMatcher(t), containment.NewIndex(0.25)).Run(ctx, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_Empty(t *testing.T) {
	out, err := New(&fakeSource{}, testMatcher(t), containment.NewIndex(0)).Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 0, out.Result.Len())
	assert.Empty(t, out.Buildings)
}
