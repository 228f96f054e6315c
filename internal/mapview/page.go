package mapview

import (
	"fmt"
	"html"
	"html/template"
	"math"

	"github.com/rotisserie/eris"

	"github.com/cafe-compass/compass-cli/internal/config"
	"github.com/cafe-compass/compass-cli/internal/model"
)

// Score columns a map can color by.
const (
	ColumnScore       = "success_score"
	ColumnProbability = "success_probability"
)

// Defaults for the map view.
const (
	DefaultCenterLat = 42.3
	DefaultCenterLon = -83.1
	DefaultZoom      = 9
	DefaultCaption   = "Yemeni Coffee Shop Success Score"
)

// TractMarker is one circle on the map.
type TractMarker struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Value float64 `json:"value"`
	Color string  `json:"color"`
	Popup string  `json:"popup"`
}

// ShopMarker is one known shop pin.
type ShopMarker struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Popup string  `json:"popup"`
}

// Page is everything the map template needs.
type Page struct {
	Title     string
	CenterLat float64
	CenterLon float64
	Zoom      int
	Caption   string
	Min       float64
	Max       float64
	Gradient  template.CSS
	Legend    string
	Tracts    []TractMarker
	Shops     []ShopMarker
}

// NewPage colors each scored tract by column over the column's range and
// pins every shop. Tracts without a value for column are left off.
func NewPage(scores []model.TractScore, shops []model.Shop, cfg config.MapConfig, column string) (*Page, error) {
	value := func(s *model.TractScore) (float64, bool) { return s.SuccessScore, true }
	switch column {
	case "", ColumnScore:
	case ColumnProbability:
		value = func(s *model.TractScore) (float64, bool) {
			if s.Probability == nil {
				return 0, false
			}
			return *s.Probability, true
		}
	default:
		return nil, eris.Errorf("mapview: unknown column %q", column)
	}

	p := &Page{
		Title:     cfg.Caption,
		CenterLat: cfg.CenterLat,
		CenterLon: cfg.CenterLon,
		Zoom:      cfg.Zoom,
		Caption:   cfg.Caption,
	}
	if p.CenterLat == 0 && p.CenterLon == 0 {
		p.CenterLat, p.CenterLon = DefaultCenterLat, DefaultCenterLon
	}
	if p.Zoom <= 0 {
		p.Zoom = DefaultZoom
	}
	if p.Caption == "" {
		p.Caption = DefaultCaption
		p.Title = DefaultCaption
	}

	type valued struct {
		s *model.TractScore
		v float64
	}
	var kept []valued
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range scores {
		v, ok := value(&scores[i])
		if !ok {
			continue
		}
		kept = append(kept, valued{&scores[i], v})
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	if len(kept) == 0 {
		lo, hi = 0, 0
	}

	cm := NewLinearColormap(lo, hi)
	p.Min, p.Max = lo, hi
	p.Gradient = template.CSS(cm.Gradient()) //nolint:gosec
	p.Legend = fmt.Sprintf(`<strong>%s</strong><div class="bar"></div><div class="ticks"><span>%.2f</span><span>%.2f</span></div>`,
		html.EscapeString(p.Caption), lo, hi)
	for _, k := range kept {
		p.Tracts = append(p.Tracts, TractMarker{
			Lat:   k.s.Lat,
			Lon:   k.s.Lon,
			Value: k.v,
			Color: cm.Hex(k.v),
			Popup: fmt.Sprintf("Score: %.2f<br>City: %s", k.v, html.EscapeString(k.s.City)),
		})
	}
	for _, s := range shops {
		p.Shops = append(p.Shops, ShopMarker{Lat: s.Lat, Lon: s.Lon, Popup: html.EscapeString(s.Name)})
	}
	return p, nil
}
