package model

import (
	"encoding/hex"
	"strings"
)

// IndustrialBuilding is one building classified industrial by a run.
type IndustrialBuilding struct {
	RunID    string   `json:"run_id"`
	OSMType  string   `json:"osm_type"`
	OSMID    int64    `json:"osm_id"`
	Building string   `json:"building"`
	Criteria []string `json:"criteria"`
	Lon      *float64 `json:"lon,omitempty"`
	Lat      *float64 `json:"lat,omitempty"`

	// Footprint is the building polygon as EWKB (SRID 4326); AreaM2 is its
	// approximate area in square metres. Both are empty for buildings without
	// polygon geometry.
	Footprint EWKB     `json:"footprint,omitempty"`
	AreaM2    *float64 `json:"area_m2,omitempty"`
}

// EWKB is extended well-known binary geometry. Its text form is the hex
// encoding PostGIS prints.
type EWKB []byte

// MarshalText implements encoding.TextMarshaler.
func (g EWKB) MarshalText() ([]byte, error) {
	out := make([]byte, hex.EncodedLen(len(g)))
	hex.Encode(out, g)
	return out, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *EWKB) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*g = nil
		return nil
	}
	out := make([]byte, hex.DecodedLen(len(text)))
	if _, err := hex.Decode(out, text); err != nil {
		return err
	}
	*g = out
	return nil
}

// CriteriaString joins the criteria with "|".
func (b IndustrialBuilding) CriteriaString() string {
	return strings.Join(b.Criteria, "|")
}

// SplitCriteria is the inverse of CriteriaString.
func SplitCriteria(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "|")
}
