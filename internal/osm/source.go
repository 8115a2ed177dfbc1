package osm

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Format names an input encoding.
type Format string

// Supported input formats.
const (
	FormatPBF       Format = "pbf"
	FormatXML       Format = "xml"
	FormatShapefile Format = "shapefile"
)

// ParseFormat converts a string into a Format. An empty string means "detect
// from the path".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return "", nil
	case "pbf", "osm.pbf":
		return FormatPBF, nil
	case "xml", "osm":
		return FormatXML, nil
	case "shapefile", "shp":
		return FormatShapefile, nil
	default:
		return "", eris.Errorf("unknown input format: %q (valid: pbf, xml, shapefile)", s)
	}
}

// DetectFormat guesses the format from a path. Directories are treated as
// Geofabrik shapefile extracts.
func DetectFormat(path string) (Format, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return FormatShapefile, nil
	}
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".pbf"):
		return FormatPBF, nil
	case strings.HasSuffix(lower, ".osm"), strings.HasSuffix(lower, ".xml"):
		return FormatXML, nil
	case strings.HasSuffix(lower, ".shp"):
		return FormatShapefile, nil
	default:
		return "", eris.Errorf("osm: cannot detect format of %s", path)
	}
}

// Options configures Open.
type Options struct {
	Format Format

	// Procs is the number of PBF decoder goroutines.
	Procs int

	// BuildingsLayer and LanduseLayer are shapefile layer names, resolved
	// relative to the input directory.
	BuildingsLayer string
	LanduseLayer   string

	BuildingKey string
	LanduseKey  string
}

// Open returns a Source for path.
func Open(path string, opts Options) (Source, error) {
	format := opts.Format
	if format == "" {
		f, err := DetectFormat(path)
		if err != nil {
			return nil, err
		}
		format = f
	}

	switch format {
	case FormatPBF:
		return &PBFSource{Path: path, Procs: opts.Procs}, nil
	case FormatXML:
		return &XMLSource{Path: path}, nil
	case FormatShapefile:
		dir := path
		if strings.HasSuffix(strings.ToLower(path), ".shp") {
			dir = filepath.Dir(path)
		}
		buildings := opts.BuildingsLayer
		if buildings == "" {
			buildings = DefaultBuildingsLayer
		}
		landuse := opts.LanduseLayer
		if landuse == "" {
			landuse = DefaultLanduseLayer
		}
		return &ShapefileSource{
			BuildingsPath: filepath.Join(dir, buildings),
			LandusePath:   filepath.Join(dir, landuse),
			BuildingKey:   opts.BuildingKey,
			LanduseKey:    opts.LanduseKey,
		}, nil
	default:
		return nil, eris.Errorf("osm: unsupported format %q", format)
	}
}
