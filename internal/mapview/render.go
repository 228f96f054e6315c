package mapview

import (
	"context"
	"embed"
	"html/template"
	"io"

	"github.com/a-h/templ"
	"github.com/rotisserie/eris"
)

//go:embed templates/map.html.tmpl
var templateFS embed.FS

var mapTemplate = template.Must(template.ParseFS(templateFS, "templates/map.html.tmpl"))

// Render writes the map page as a standalone HTML document.
func Render(w io.Writer, p *Page) error {
	return eris.Wrap(mapTemplate.Execute(w, p), "mapview: render")
}

// Component wraps the page for templ handlers.
func Component(p *Page) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return Render(w, p)
	})
}
