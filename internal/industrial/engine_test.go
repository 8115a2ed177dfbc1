package industrial

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMatcher(t *testing.T) *Matcher {
	t.Helper()
	m, err := DefaultVocabulary().Compile()
	require.NoError(t, err)
	return m
}

// op is one record delivered to an engine.
type op func(e *Engine) error

func building(id ID, value string) op {
	return func(e *Engine) error { return e.RecordBuilding(id, Tags{"building": value}) }
}

func area(id ID, value string) op {
	return func(e *Engine) error { return e.RecordArea(id, Tags{"landuse": value}) }
}

func contains(a, b ID) op {
	return func(e *Engine) error { return e.RecordContainment(b, a) }
}

func run(t *testing.T, m *Matcher, ops []op) *Result {
	t.Helper()
	e := NewEngine(m)
	for _, o := range ops {
		require.NoError(t, o(e))
	}
	res, err := e.Finalize()
	require.NoError(t, err)
	return res
}

var (
	b1 = WayID(1)
	b2 = WayID(2)
	b3 = WayID(3)
	b4 = WayID(4)
	a1 = WayID(100)
	a2 = WayID(200)
	a3 = RelationID(1)
)

func TestFinalize_Criteria(t *testing.T) {
	m := testMatcher(t)

	tests := []struct {
		name string
		ops  []op
		want map[ID]Criteria
	}{
		{
			name: "self tagged, no containing area",
			ops:  []op{building(b1, "industrial")},
			want: map[ID]Criteria{b1: SelfTagged},
		},
		{
			name: "untagged in industrial landuse",
			ops:  []op{building(b1, "yes"), area(a1, "industrial"), contains(a1, b1)},
			want: map[ID]Criteria{b1: IndustrialArea},
		},
		{
			name: "untagged in industrial-like area with an industrial neighbour",
			ops: []op{
				building(b2, "yes"), building(b3, "industrial"), area(a2, "commercial"),
				contains(a2, b2), contains(a2, b3),
			},
			want: map[ID]Criteria{b2: IndustrialLikeArea, b3: SelfTagged | IndustrialLikeArea},
		},
		{
			name: "industrial-like area without industrial buildings",
			ops: []op{
				building(b1, "yes"), building(b2, "yes"), area(a2, "harbour"),
				contains(a2, b1), contains(a2, b2),
			},
			want: map[ID]Criteria{},
		},
		{
			name: "untagged in plain area",
			ops:  []op{building(b1, "yes"), area(a1, "residential"), contains(a1, b1)},
			want: map[ID]Criteria{},
		},
		{
			name: "building qualifying via industrial area does not seed industrial-like area",
			ops: []op{
				building(b1, "yes"), building(b2, "yes"),
				area(a1, "industrial"), area(a2, "port"),
				contains(a1, b1), contains(a2, b1), contains(a2, b2),
			},
			want: map[ID]Criteria{b1: IndustrialArea},
		},
		{
			name: "all three criteria counted once",
			ops: []op{
				building(b1, "warehouse"), area(a1, "industrial"), area(a2, "logistics"),
				contains(a1, b1), contains(a2, b1),
			},
			want: map[ID]Criteria{b1: SelfTagged | IndustrialArea | IndustrialLikeArea},
		},
		{
			name: "industrial building in unrelated area stays industrial",
			ops:  []op{building(b1, "factory"), area(a1, "farmland"), contains(a1, b1)},
			want: map[ID]Criteria{b1: SelfTagged},
		},
		{
			name: "missing tags are not industrial",
			ops: []op{
				func(e *Engine) error { return e.RecordBuilding(b1, nil) },
				func(e *Engine) error { return e.RecordArea(a1, Tags{"name": "Works"}) },
				contains(a1, b1),
			},
			want: map[ID]Criteria{},
		},
		{
			name: "building tags never arrive",
			ops:  []op{area(a1, "industrial"), contains(a1, b1)},
			want: map[ID]Criteria{},
		},
		{
			name: "building tags arrive after containment",
			ops:  []op{area(a1, "industrial"), contains(a1, b1), building(b1, "yes")},
			want: map[ID]Criteria{b1: IndustrialArea},
		},
		{
			name: "area tags never arrive",
			ops:  []op{building(b1, "yes"), contains(a3, b1)},
			want: map[ID]Criteria{},
		},
		{
			name: "industrial landuse is not industrial-like by default",
			ops: []op{
				building(b1, "yes"), building(b2, "industrial"), area(a1, "industrial"),
				building(b4, "yes"), area(a2, "meadow"),
				contains(a1, b1), contains(a1, b2), contains(a2, b4),
			},
			want: map[ID]Criteria{b1: IndustrialArea, b2: SelfTagged | IndustrialArea},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, m, tt.ops)
			got := make(map[ID]Criteria, res.Len())
			for _, match := range res.Matches() {
				got[match.ID] = match.Criteria
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFinalize_NoDoubleCounting(t *testing.T) {
	res := run(t, testMatcher(t), []op{
		building(b1, "industrial"), area(a1, "industrial"), contains(a1, b1),
	})
	assert.Equal(t, []ID{b1}, res.IDs())
	c, ok := res.Criteria(b1)
	require.True(t, ok)
	assert.True(t, c.Has(SelfTagged|IndustrialArea))
}

func TestFinalize_OrderIndependent(t *testing.T) {
	m := testMatcher(t)
	ops := []op{
		building(b2, "yes"),
		building(b3, "industrial"),
		area(a2, "industrial_park"),
		contains(a2, b2),
		contains(a2, b3),
		area(a1, "industrial"),
		contains(a1, b4),
	}
	want := run(t, m, ops).Matches()
	require.Len(t, want, 3)

	permute(ops, func(p []op) {
		got := run(t, m, p).Matches()
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("result depends on record order (-want +got):\n%s", diff)
		}
	})
}

// permute calls fn with every ordering of ops (Heap's algorithm).
func permute(ops []op, fn func([]op)) {
	p := append([]op(nil), ops...)
	c := make([]int, len(p))
	fn(p)
	for i := 0; i < len(p); {
		if c[i] < i {
			if i%2 == 0 {
				p[0], p[i] = p[i], p[0]
			} else {
				p[c[i]], p[i] = p[i], p[c[i]]
			}
			fn(p)
			c[i]++
			i = 0
		} else {
			c[i] = 0
			i++
		}
	}
}

func TestFinalize_IdempotentReingestion(t *testing.T) {
	m := testMatcher(t)
	once := []op{
		building(b2, "yes"), building(b3, "industrial"), area(a2, "commercial"),
		contains(a2, b2), contains(a2, b3),
	}
	twice := append(append([]op(nil), once...), once...)

	e1 := NewEngine(m)
	e2 := NewEngine(m)
	for _, o := range once {
		require.NoError(t, o(e1))
	}
	for _, o := range twice {
		require.NoError(t, o(e2))
	}

	assert.Equal(t, e1.Stats().Buildings, e2.Stats().Buildings)
	assert.Equal(t, e1.Stats().Areas, e2.Stats().Areas)
	assert.Equal(t, e1.Stats().Containments, e2.Stats().Containments)
	assert.Equal(t, 3, e2.Stats().Duplicates)

	r1, err := e1.Finalize()
	require.NoError(t, err)
	r2, err := e2.Finalize()
	require.NoError(t, err)
	assert.Equal(t, r1.Matches(), r2.Matches())
}

func TestRecord_LastWriteWins(t *testing.T) {
	res := run(t, testMatcher(t), []op{
		building(b1, "industrial"),
		building(b1, "yes"),
		area(a1, "industrial"),
		area(a1, "residential"),
		building(b2, "yes"),
		contains(a1, b2),
	})
	assert.Equal(t, 0, res.Len())
}

func TestEngine_SealedRejectsRecords(t *testing.T) {
	e := NewEngine(testMatcher(t))
	require.NoError(t, e.RecordBuilding(b1, Tags{"building": "industrial"}))
	assert.Nil(t, e.Result())

	res, err := e.Finalize()
	require.NoError(t, err)
	assert.True(t, e.Sealed())
	assert.Same(t, res, e.Result())

	assert.ErrorIs(t, e.RecordBuilding(b2, nil), ErrSealed)
	assert.ErrorIs(t, e.RecordArea(a1, nil), ErrSealed)
	assert.ErrorIs(t, e.RecordContainment(b1, a1), ErrSealed)

	_, err = e.Finalize()
	assert.ErrorIs(t, err, ErrSealed)
	assert.Equal(t, 1, e.Result().Len())
}

func TestEngine_Merge(t *testing.T) {
	m := testMatcher(t)

	primary := NewEngine(m)
	require.NoError(t, primary.RecordBuilding(b1, Tags{"building": "yes"}))
	require.NoError(t, primary.RecordBuilding(b2, Tags{"building": "industrial"}))
	require.NoError(t, primary.RecordArea(a2, Tags{"landuse": "port"}))

	shard := NewEngine(m)
	require.NoError(t, shard.RecordContainment(b1, a2))
	require.NoError(t, shard.RecordContainment(b2, a2))

	require.NoError(t, primary.Merge(shard))
	assert.True(t, shard.Sealed())
	assert.ErrorIs(t, shard.RecordContainment(b1, a1), ErrSealed)

	// Placeholders created by the shard must not erase flags primary already had.
	res, err := primary.Finalize()
	require.NoError(t, err)
	assert.Equal(t, []ID{b1, b2}, res.IDs())
	assert.Equal(t, 2, primary.Stats().Containments)
}

func TestEngine_MergeOverwritesSeenFlags(t *testing.T) {
	m := testMatcher(t)

	primary := NewEngine(m)
	require.NoError(t, primary.RecordArea(a1, Tags{"landuse": "residential"}))
	require.NoError(t, primary.RecordBuilding(b1, Tags{"building": "yes"}))
	require.NoError(t, primary.RecordContainment(b1, a1))

	shard := NewEngine(m)
	require.NoError(t, shard.RecordArea(a1, Tags{"landuse": "industrial"}))

	require.NoError(t, primary.Merge(shard))
	res, err := primary.Finalize()
	require.NoError(t, err)
	assert.True(t, res.Contains(b1))
	assert.Equal(t, 1, primary.Stats().Duplicates)
}

func TestEngine_MergeErrors(t *testing.T) {
	m := testMatcher(t)
	other, err := DefaultVocabulary().Compile()
	require.NoError(t, err)

	assert.ErrorIs(t, NewEngine(m).Merge(NewEngine(other)), ErrMatcherMismatch)

	sealedEngine := NewEngine(m)
	_, err = sealedEngine.Finalize()
	require.NoError(t, err)
	assert.ErrorIs(t, NewEngine(m).Merge(sealedEngine), ErrSealed)
	assert.ErrorIs(t, sealedEngine.Merge(NewEngine(m)), ErrSealed)
}

func TestEngine_IndustrialCountsAsLike(t *testing.T) {
	v := DefaultVocabulary()
	v.IndustrialLanduse = []string{"industrial"}
	v.IndustrialLike = []string{"commercial"}
	v.IndustrialCountsAsLike = true
	m, err := v.Compile()
	require.NoError(t, err)

	res := run(t, m, []op{
		building(b1, "yes"), building(b2, "industrial"), area(a1, "industrial"),
		contains(a1, b1), contains(a1, b2),
	})
	c, ok := res.Criteria(b1)
	require.True(t, ok)
	assert.Equal(t, IndustrialArea|IndustrialLikeArea, c)
}

func TestResult_CountBy(t *testing.T) {
	res := run(t, testMatcher(t), []op{
		building(b1, "industrial"), area(a1, "industrial"), contains(a1, b1),
		building(b2, "yes"), contains(a1, b2),
	})
	counts := res.CountBy()
	assert.Equal(t, 1, counts[SelfTagged])
	assert.Equal(t, 2, counts[IndustrialArea])
	assert.Equal(t, 0, counts[IndustrialLikeArea])
}
