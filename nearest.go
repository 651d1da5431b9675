package gazetteer

import (
	"math"
	"sort"
	"unicode/utf8"

	"github.com/golang/geo/s2"
)

// s2CellLevel sets the spatial index granularity. Level 10 cells are roughly
// 10km x 10km at the equator, which keeps each cell's candidate list short
// without needing many neighbor lookups.
const s2CellLevel = 10

// maxNearestDistance is ~100km in radians on the unit sphere. Coordinates
// farther than this from every city resolve to no match.
const maxNearestDistance = 0.0157

type nearestCandidate struct {
	record CityRecord
	dist   float64
}

// cellAndNeighbors returns the cell plus its edge and corner neighbors.
func cellAndNeighbors(cell s2.CellID) []s2.CellID {
	cells := make([]s2.CellID, 0, 9)
	cells = append(cells, cell)

	edgeNeighbors := cell.EdgeNeighbors()
	for i := 0; i < 4; i++ {
		cells = append(cells, edgeNeighbors[i])
	}

	seen := make(map[s2.CellID]bool)
	for _, c := range cells {
		seen[c] = true
	}
	for i := 0; i < 4; i++ {
		for _, corner := range edgeNeighbors[i].EdgeNeighbors() {
			if !seen[corner] {
				cells = append(cells, corner)
				seen[corner] = true
			}
		}
	}
	return cells
}

// Nearest returns the gazetteer city closest to the given coordinates. It
// backs the manual latitude/longitude entry path: a typed coordinate pair can
// be labeled with a city name. ok is false when no city lies within ~100km or
// the coordinates are not finite.
func (g *Gazetteer) Nearest(lat, lng float64) (CityRecord, bool, error) {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return CityRecord{}, false, nil
	}
	if err := g.ensureLoaded(); err != nil {
		return CityRecord{}, false, err
	}

	queryLL := s2.LatLngFromDegrees(lat, lng)
	queryCell := s2.CellIDFromLatLng(queryLL).Parent(s2CellLevel)

	var candidates []nearestCandidate
	for _, cell := range cellAndNeighbors(queryCell) {
		for _, idx := range g.cellIndex[cell] {
			rec := g.cities[idx].record
			cityLL := s2.LatLngFromDegrees(rec.Latitude, rec.Longitude)
			candidates = append(candidates, nearestCandidate{
				record: rec,
				dist:   float64(queryLL.Distance(cityLL)),
			})
		}
	}
	if len(candidates) == 0 {
		return CityRecord{}, false, nil
	}

	// Distance, then name length, then name, for full determinism.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		li, lj := utf8.RuneCountInString(candidates[i].record.Name), utf8.RuneCountInString(candidates[j].record.Name)
		if li != lj {
			return li < lj
		}
		return candidates[i].record.Name < candidates[j].record.Name
	})

	best := candidates[0]
	if best.dist > maxNearestDistance {
		return CityRecord{}, false, nil
	}
	return best.record, true, nil
}
