package containment

import (
	"context"
	"math"
	"sync"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/industrial-cli/internal/industrial"
	"github.com/sells-group/industrial-cli/internal/osm"
)

// DefaultCellSize is the grid cell edge in degrees (roughly 1km at mid
// latitudes).
const DefaultCellSize = 0.01

type cell struct{ x, y int64 }

type indexedArea struct {
	id     industrial.ID
	bounds *geom.Bounds
	geom   *geom.MultiPolygon
}

// Index is an in-memory uniform grid over landuse area bounds. A building is
// contained by an area when the building's centroid lies inside one of the
// area's outer rings and outside that polygon's holes.
//
// AddArea must not be called concurrently with Containing; Containing may be
// called from many goroutines once all areas are added.
type Index struct {
	cellSize float64

	mu    sync.RWMutex
	areas []indexedArea
	cells map[cell][]int
}

// NewIndex returns an empty index. A non-positive cellSize selects
// DefaultCellSize.
func NewIndex(cellSize float64) *Index {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	return &Index{cellSize: cellSize, cells: make(map[cell][]int)}
}

// AddArea implements Collector. Areas without polygon geometry are ignored.
func (ix *Index) AddArea(area osm.Feature) {
	if !area.Closed() {
		return
	}
	b := area.Geometry.Bounds()

	ix.mu.Lock()
	defer ix.mu.Unlock()

	i := len(ix.areas)
	ix.areas = append(ix.areas, indexedArea{id: area.ID, bounds: b, geom: area.Geometry})

	minX, minY := ix.cellOf(b.Min(0), b.Min(1))
	maxX, maxY := ix.cellOf(b.Max(0), b.Max(1))
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			c := cell{x, y}
			ix.cells[c] = append(ix.cells[c], i)
		}
	}
}

// Len returns the number of indexed areas.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.areas)
}

// Containing implements Resolver.
func (ix *Index) Containing(_ context.Context, building osm.Feature) ([]industrial.ID, error) {
	if !building.Closed() {
		return nil, nil
	}
	pt, err := building.Centroid()
	if err != nil {
		return nil, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []industrial.ID
	for _, i := range ix.cells[ix.cellKey(pt)] {
		a := ix.areas[i]
		if a.id == building.ID {
			continue
		}
		if !a.bounds.OverlapsPoint(geom.XY, pt) {
			continue
		}
		if containsPoint(a.geom, pt) {
			out = append(out, a.id)
		}
	}
	return out, nil
}

func (ix *Index) cellOf(x, y float64) (int64, int64) {
	return int64(math.Floor(x / ix.cellSize)), int64(math.Floor(y / ix.cellSize))
}

func (ix *Index) cellKey(pt geom.Coord) cell {
	x, y := ix.cellOf(pt[0], pt[1])
	return cell{x, y}
}

func containsPoint(mp *geom.MultiPolygon, pt geom.Coord) bool {
	for i := 0; i < mp.NumPolygons(); i++ {
		p := mp.Polygon(i)
		if !xy.IsPointInRing(p.Layout(), pt, p.LinearRing(0).FlatCoords()) {
			continue
		}
		inHole := false
		for j := 1; j < p.NumLinearRings(); j++ {
			if xy.IsPointInRing(p.Layout(), pt, p.LinearRing(j).FlatCoords()) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}
