package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/industrial-cli/internal/model"
)

func ptr(f float64) *float64 { return &f }

func sample() []model.IndustrialBuilding {
	return []model.IndustrialBuilding{
		{RunID: "r", OSMType: "way", OSMID: 1, Building: "factory", Criteria: []string{"self_tagged", "industrial_area"}, Lon: ptr(13.5), Lat: ptr(52.25),
			AreaM2: ptr(410.5), Footprint: model.EWKB{0x01, 0x06, 0xff}},
		{RunID: "r", OSMType: "relation", OSMID: 9, Building: "yes", Criteria: []string{"industrial_like_area"}},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", FormatCSV, false},
		{" CSV ", FormatCSV, false},
		{"jsonl", FormatJSONL, false},
		{"json", FormatJSONL, false},
		{"ndjson", FormatJSONL, false},
		{"xlsx", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sample()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "osm_type,osm_id,building,criteria,lon,lat,area_m2,footprint", lines[0])
	assert.Equal(t, "way,1,factory,self_tagged|industrial_area,13.5,52.25,410.5,0106ff", lines[1])
	assert.Equal(t, "relation,9,yes,industrial_like_area,,,,", lines[2])

	var rows []csvRow
	require.NoError(t, csvutil.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Nil(t, rows[1].Lon)
	assert.Empty(t, rows[1].Footprint)
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "osm_type,osm_id,building,criteria,lon,lat,area_m2,footprint\n", buf.String())
}

func TestWriteJSONL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSONL, sample()))

	sc := bufio.NewScanner(&buf)
	var got []model.IndustrialBuilding
	for sc.Scan() {
		var b model.IndustrialBuilding
		require.NoError(t, json.Unmarshal(sc.Bytes(), &b))
		got = append(got, b)
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, sample(), got)
}

func TestWrite_UnknownFormat(t *testing.T) {
	err := Write(&bytes.Buffer{}, Format("xml"), sample())
	require.Error(t, err)
}

func TestWriteSummary(t *testing.T) {
	done := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	run := model.Run{
		ID:          "run-1",
		Source:      "berlin.osm.pbf",
		Format:      "pbf",
		Status:      model.RunStatusComplete,
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		CompletedAt: &done,
		Stats:       &model.RunStats{Buildings: 100, Industrial: 12, SelfTagged: 8, IndustrialArea: 5, IndustrialLikeArea: 2, DurationMS: 950},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, run))
	out := buf.String()

	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "completed")
	assert.Regexp(t, `industrial\s+12`, out)
	assert.Regexp(t, `self tagged\s+8`, out)
	assert.Regexp(t, `in industrial-like landuse\s+2`, out)
	assert.Contains(t, out, "950ms")
}

func TestWriteSummary_Failed(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, model.Run{ID: "r", Status: model.RunStatusFailed, Error: "bad input"}))
	assert.Regexp(t, `error\s+bad input`, buf.String())
	assert.NotContains(t, buf.String(), "buildings")
}
