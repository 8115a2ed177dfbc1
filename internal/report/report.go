// Package report writes classified buildings as CSV or JSON lines and
// renders a per-criterion summary.
package report

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/industrial-cli/internal/model"
)

// Format selects an output encoding.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSONL:
		return f, nil
	case "json", "ndjson":
		return FormatJSONL, nil
	default:
		return "", eris.Errorf("report: unknown output format %q", s)
	}
}

// csvRow flattens an IndustrialBuilding for csvutil.
type csvRow struct {
	OSMType  string   `csv:"osm_type"`
	OSMID    int64    `csv:"osm_id"`
	Building string   `csv:"building"`
	Criteria string   `csv:"criteria"`
	Lon      *float64 `csv:"lon,omitempty"`
	Lat      *float64 `csv:"lat,omitempty"`
	AreaM2   *float64 `csv:"area_m2,omitempty"`

	// Footprint is hex EWKB.
	Footprint string `csv:"footprint,omitempty"`
}

// Write encodes the buildings to w in the given format.
func Write(w io.Writer, f Format, buildings []model.IndustrialBuilding) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, buildings)
	case FormatJSONL:
		return WriteJSONL(w, buildings)
	default:
		return eris.Errorf("report: unknown output format %q", f)
	}
}

// WriteCSV writes a header row followed by one row per building. Criteria are
// joined with "|" and footprints are hex EWKB.
func WriteCSV(w io.Writer, buildings []model.IndustrialBuilding) error {
	rows := make([]csvRow, 0, len(buildings))
	for _, b := range buildings {
		rows = append(rows, csvRow{
			OSMType:  b.OSMType,
			OSMID:    b.OSMID,
			Building: b.Building,
			Criteria: b.CriteriaString(),
			Lon:      b.Lon,
			Lat:      b.Lat,
			AreaM2:   b.AreaM2,

			Footprint: hex.EncodeToString(b.Footprint),
		})
	}
	if len(rows) == 0 {
		header, err := csvutil.Header(csvRow{}, "csv")
		if err != nil {
			return eris.Wrap(err, "report: csv header")
		}
		_, err = fmt.Fprintln(w, strings.Join(header, ","))
		return eris.Wrap(err, "report: write csv header")
	}

	b, err := csvutil.Marshal(rows)
	if err != nil {
		return eris.Wrap(err, "report: marshal csv")
	}
	_, err = w.Write(b)
	return eris.Wrap(err, "report: write csv")
}

// WriteJSONL writes one JSON object per line.
func WriteJSONL(w io.Writer, buildings []model.IndustrialBuilding) error {
	enc := json.NewEncoder(w)
	for _, b := range buildings {
		if err := enc.Encode(b); err != nil {
			return eris.Wrapf(err, "report: encode %s/%d", b.OSMType, b.OSMID)
		}
	}
	return nil
}

// WriteSummary renders the run counts as an aligned table.
func WriteSummary(w io.Writer, run model.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	line := func(k, v string) { fmt.Fprintf(tw, "%s\t%s\n", k, v) }

	line("run", run.ID)
	line("source", run.Source)
	if run.Format != "" {
		line("format", run.Format)
	}
	line("status", string(run.Status))
	line("created", run.CreatedAt.Format("2006-01-02 15:04:05"))
	if run.CompletedAt != nil {
		line("completed", run.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	if run.Error != "" {
		line("error", run.Error)
	}
	if s := run.Stats; s != nil {
		line("buildings", strconv.Itoa(s.Buildings))
		line("landuse areas", strconv.Itoa(s.Areas))
		line("containments", strconv.Itoa(s.Containments))
		line("duplicates", strconv.Itoa(s.Duplicates))
		line("without geometry", strconv.Itoa(s.Unresolved))
		line("industrial", strconv.Itoa(s.Industrial))
		line("  self tagged", strconv.Itoa(s.SelfTagged))
		line("  in industrial landuse", strconv.Itoa(s.IndustrialArea))
		line("  in industrial-like landuse", strconv.Itoa(s.IndustrialLikeArea))
		line("duration", fmt.Sprintf("%dms", s.DurationMS))
	}
	return eris.Wrap(tw.Flush(), "report: flush summary")
}
