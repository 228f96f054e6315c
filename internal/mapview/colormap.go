// Package mapview renders scored tracts and known shops as a Leaflet map.
package mapview

import (
	"fmt"
	"image/color"
	"math"
)

// Named stop colors, matching their CSS keywords.
var (
	Red    = color.RGBA{R: 0xff, A: 0xff}
	Yellow = color.RGBA{R: 0xff, G: 0xff, A: 0xff}
	Green  = color.RGBA{G: 0x80, A: 0xff}
)

// LinearColormap interpolates evenly spaced color stops over [Min, Max].
type LinearColormap struct {
	Stops []color.RGBA
	Min   float64
	Max   float64
}

// NewLinearColormap returns a colormap over [min, max]. With no stops it
// uses red, yellow, green.
func NewLinearColormap(min, max float64, stops ...color.RGBA) LinearColormap {
	if len(stops) == 0 {
		stops = []color.RGBA{Red, Yellow, Green}
	}
	return LinearColormap{Stops: stops, Min: min, Max: max}
}

// At returns the color for v. Values outside the range clamp to the end
// stops; a zero-width range maps everything to the first stop.
func (c LinearColormap) At(v float64) color.RGBA {
	if len(c.Stops) == 1 {
		return c.Stops[0]
	}
	span := c.Max - c.Min
	if span <= 0 || math.IsNaN(v) {
		return c.Stops[0]
	}
	pos := (v - c.Min) / span
	pos = math.Max(0, math.Min(1, pos))

	seg := pos * float64(len(c.Stops)-1)
	i := int(math.Floor(seg))
	if i >= len(c.Stops)-1 {
		return c.Stops[len(c.Stops)-1]
	}
	frac := seg - float64(i)
	a, b := c.Stops[i], c.Stops[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*frac))
	}
	return color.RGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 0xff}
}

// Hex returns the color for v as #rrggbb.
func (c LinearColormap) Hex(v float64) string {
	return Hex(c.At(v))
}

// Gradient returns a CSS linear-gradient through the stops.
func (c LinearColormap) Gradient() string {
	s := "linear-gradient(to right"
	for _, stop := range c.Stops {
		s += ", " + Hex(stop)
	}
	return s + ")"
}

// Hex formats c as #rrggbb.
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
