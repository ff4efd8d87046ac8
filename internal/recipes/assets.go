package recipes

import (
	"bytes"
	"embed"
	"text/template"
)

//go:embed templates files
var assets embed.FS

var templates = template.Must(template.ParseFS(assets, "templates/*.tmpl"))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
