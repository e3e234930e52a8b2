package web

import (
	"embed"
	"html/template"
	"io/fs"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Templates parses every embedded page template. funcs are registered before
// parsing so templates may call them.
func Templates(funcs template.FuncMap) (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.tmpl")
}

// Static returns the embedded stylesheet and script directory, rooted so that
// "site.css" resolves to static/site.css.
func Static() (fs.FS, error) {
	return fs.Sub(staticFS, "static")
}
