package geo

import (
	"sosdesk/models"

	"github.com/golang/geo/s2"
	geojson "github.com/paulmach/go.geojson"
)

// CellLevel is the S2 level used to bucket report locations (roughly 1km cells).
const CellLevel = 13

// CellToken returns the S2 cell token containing the location, or "" without a location.
func CellToken(loc *models.Location) string {
	if loc == nil {
		return ""
	}
	ll := s2.LatLngFromDegrees(loc.Latitude, loc.Longitude)
	if !ll.IsValid() {
		return ""
	}
	return s2.CellIDFromLatLng(ll).Parent(CellLevel).ToToken()
}

// FeatureCollection renders the located reports as GeoJSON points. Reports without a
// location are skipped.
func FeatureCollection(reports []models.Report) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range reports {
		if r.Location == nil {
			continue
		}
		f := geojson.NewPointFeature([]float64{r.Location.Longitude, r.Location.Latitude})
		f.ID = r.ID
		f.SetProperty("mode", string(r.Mode))
		f.SetProperty("status", string(r.Status))
		f.SetProperty("submittedAt", r.SubmittedAt)
		if r.Location.Accuracy != nil {
			f.SetProperty("accuracy", *r.Location.Accuracy)
		}
		if r.Cell != "" {
			f.SetProperty("cell", r.Cell)
		}
		fc.AddFeature(f)
	}
	return fc
}
