package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/charge.html
var templateFS embed.FS

var chargeTemplate = template.Must(template.New("charge.html").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).ParseFS(templateFS, "templates/charge.html"))

type TemplateData struct {
	Diocese     string
	Title       string
	Status      string
	Revision    string
	UpdatedAt   time.Time
	ContentHTML template.HTML
}

// RenderChargeHTML renders the print layout. ContentHTML is inserted
// unescaped and must already be sanitized.
func RenderChargeHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := chargeTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
