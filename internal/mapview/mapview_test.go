package mapview

import (
	"bytes"
	"context"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafe-compass/compass-cli/internal/config"
	"github.com/cafe-compass/compass-cli/internal/model"
)

func TestLinearColormap(t *testing.T) {
	cm := NewLinearColormap(0, 1)
	assert.Equal(t, Red, cm.At(0))
	assert.Equal(t, Yellow, cm.At(0.5))
	assert.Equal(t, Green, cm.At(1))
	assert.Equal(t, color.RGBA{R: 0xff, G: 0x80, A: 0xff}, cm.At(0.25))

	assert.Equal(t, Red, cm.At(-3), "clamped low")
	assert.Equal(t, Green, cm.At(7), "clamped high")

	assert.Equal(t, "#ff0000", cm.Hex(0))
	assert.Equal(t, "#008000", cm.Hex(1))
	assert.Equal(t, "linear-gradient(to right, #ff0000, #ffff00, #008000)", cm.Gradient())

	flat := NewLinearColormap(0.4, 0.4)
	assert.Equal(t, Red, flat.At(0.4))

	single := NewLinearColormap(0, 1, Green)
	assert.Equal(t, Green, single.At(0.2))
}

func sampleScores() []model.TractScore {
	p := 0.7
	return []model.TractScore{
		{TractID: "1", City: "Dearborn", Lat: 42.31, Lon: -83.2, SuccessScore: 0.9, Probability: &p},
		{TractID: "2", City: "<Troy>", Lat: 42.6, Lon: -83.1, SuccessScore: 0.1},
	}
}

func TestNewPage(t *testing.T) {
	shops := []model.Shop{{Name: "Qahwa & Co", Lat: 42.32, Lon: -83.17}}
	p, err := NewPage(sampleScores(), shops, config.MapConfig{}, "")
	require.NoError(t, err)

	assert.InDelta(t, DefaultCenterLat, p.CenterLat, 1e-12)
	assert.Equal(t, DefaultZoom, p.Zoom)
	assert.Equal(t, DefaultCaption, p.Caption)
	assert.InDelta(t, 0.1, p.Min, 1e-12)
	assert.InDelta(t, 0.9, p.Max, 1e-12)

	require.Len(t, p.Tracts, 2)
	assert.Equal(t, "#008000", p.Tracts[0].Color)
	assert.Equal(t, "#ff0000", p.Tracts[1].Color)
	assert.Equal(t, "Score: 0.90<br>City: Dearborn", p.Tracts[0].Popup)
	assert.Equal(t, "Score: 0.10<br>City: &lt;Troy&gt;", p.Tracts[1].Popup)

	require.Len(t, p.Shops, 1)
	assert.Equal(t, "Qahwa &amp; Co", p.Shops[0].Popup)
}

func TestNewPage_ProbabilityColumn(t *testing.T) {
	p, err := NewPage(sampleScores(), nil, config.MapConfig{CenterLat: 42, CenterLon: -83, Zoom: 11, Caption: "Odds"}, ColumnProbability)
	require.NoError(t, err)
	require.Len(t, p.Tracts, 1)
	assert.InDelta(t, 0.7, p.Tracts[0].Value, 1e-12)
	assert.Equal(t, 11, p.Zoom)
	assert.Equal(t, "Odds", p.Caption)

	_, err = NewPage(nil, nil, config.MapConfig{}, "rent")
	assert.ErrorContains(t, err, "unknown column")

	empty, err := NewPage(nil, nil, config.MapConfig{}, "")
	require.NoError(t, err)
	assert.Zero(t, empty.Min)
	assert.Empty(t, empty.Tracts)
}

func TestRender(t *testing.T) {
	p, err := NewPage(sampleScores(), []model.Shop{{Name: "Haraz", Lat: 42.3, Lon: -83.2}}, config.MapConfig{}, "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, p))
	out := buf.String()

	assert.Contains(t, out, "<title>Yemeni Coffee Shop Success Score</title>")
	assert.Regexp(t, `setView\(\[\s*42\.3\s*,\s*-83\.1\s*\],\s*9\s*\)`, out)
	assert.Contains(t, out, "radius: 6")
	assert.Contains(t, out, "fillOpacity: 0.8")
	assert.Contains(t, out, `Score: 0.90\u003cbr\u003eCity: Dearborn`)
	assert.Contains(t, out, `markerColor: "blue"`)
	assert.Contains(t, out, `icon: "coffee"`)
	assert.Contains(t, out, "linear-gradient(to right, #ff0000, #ffff00, #008000)")
	assert.Contains(t, out, "Haraz")
	assert.NotContains(t, out, "ZgotmplZ")
}

func TestComponent(t *testing.T) {
	p, err := NewPage(sampleScores(), nil, config.MapConfig{}, "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Component(p).Render(context.Background(), &buf))
	assert.Contains(t, buf.String(), "L.circleMarker")
}
