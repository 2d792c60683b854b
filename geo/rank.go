package geo

import (
	"sort"
	"time"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"github.com/farmaturno/farmacias-api/minsalparser/entities"
)

// Filters narrows a candidate set before ranking.
type Filters struct {
	Comuna      string // canonical comuna name, empty disables
	OnDutyOnly  bool
	OpenNowOnly bool
	RadiusKm    float64 // 0 disables the radius cut
	Limit       int     // 0 disables the cap
	Now         time.Time
}

// Ranked is a pharmacy annotated with its distance from the query
// point.
type Ranked struct {
	entities.Pharmacy
	DistanceKm float64 `json:"distance_km"`
}

// Rank returns the candidates ordered ascending by distance from
// (lat, lng). Pharmacies without coordinates never appear because the
// ordering is meaningless for them. A radius prefilter runs on a
// bounding box before any distance is computed, which keeps full-table
// scans cheap for small radii.
func Rank(candidates []entities.Pharmacy, lat, lng float64, f Filters) []Ranked {
	var box *orb.Bound
	if f.RadiusKm > 0 {
		b := orbgeo.NewBoundAroundPoint(orb.Point{lng, lat}, f.RadiusKm*1000)
		box = &b
	}

	out := make([]Ranked, 0, 32)
	for i := range candidates {
		p := &candidates[i]
		if !matches(p, f) {
			continue
		}
		if !p.HasCoordinates() {
			continue
		}
		if box != nil && !box.Contains(orb.Point{p.Lng, p.Lat}) {
			continue
		}

		d := Distance(lat, lng, p.Lat, p.Lng)
		if f.RadiusKm > 0 && d > f.RadiusKm {
			continue
		}
		out = append(out, Ranked{Pharmacy: *p, DistanceKm: d})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceKm < out[j].DistanceKm
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Filter applies the non-geographic filters while keeping dataset
// order, for queries that carry no origin point. Pharmacies without
// coordinates are kept here.
func Filter(candidates []entities.Pharmacy, f Filters) []entities.Pharmacy {
	out := make([]entities.Pharmacy, 0, 32)
	for i := range candidates {
		p := &candidates[i]
		if !matches(p, f) {
			continue
		}
		out = append(out, *p)
	}

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func matches(p *entities.Pharmacy, f Filters) bool {
	if f.Comuna != "" && p.Comuna != f.Comuna {
		return false
	}
	if f.OnDutyOnly && !p.EsTurno {
		return false
	}
	if f.OpenNowOnly {
		if !OpenOn(p.DiaFuncionamiento, f.Now) {
			return false
		}
		if !OpenAt(p.HoraApertura, p.HoraCierre, f.Now) {
			return false
		}
	}
	return true
}
