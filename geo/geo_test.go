package geo

import (
	"testing"

	"sosdesk/models"

	"github.com/golang/geo/s2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellToken(t *testing.T) {
	assert.Empty(t, CellToken(nil))
	assert.Empty(t, CellToken(&models.Location{Latitude: 95, Longitude: 10}))

	token := CellToken(&models.Location{Latitude: 12.9, Longitude: 77.5})
	require.NotEmpty(t, token)

	cell := s2.CellIDFromToken(token)
	assert.Equal(t, CellLevel, cell.Level())
	assert.True(t, cell.Contains(s2.CellIDFromLatLng(s2.LatLngFromDegrees(12.9, 77.5))))
}

func TestFeatureCollection(t *testing.T) {
	acc := 5.0
	reports := []models.Report{
		{ID: 1, Mode: models.ModeForm, Status: models.StatusPending, Location: &models.Location{Latitude: 12.9, Longitude: 77.5, Accuracy: &acc}},
		{ID: 2, Mode: models.ModeAudio, Status: models.StatusPending},
	}

	fc := FeatureCollection(reports)
	require.Len(t, fc.Features, 1)

	f := fc.Features[0]
	assert.Equal(t, []float64{77.5, 12.9}, f.Geometry.Point)
	assert.Equal(t, "form", f.Properties["mode"])
	assert.Equal(t, 5.0, f.Properties["accuracy"])
}
