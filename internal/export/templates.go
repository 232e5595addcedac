package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var formTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/form.html")
	if err != nil {
		// Fallback to built-in template if file not found
		formTemplate = template.Must(template.New("form").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	formTemplate = template.Must(template.New("form").Funcs(funcMap).Parse(string(templateContent)))
}

// RenderFormHTML renders a submission's sections into the export HTML.
func RenderFormHTML(sub Submission) (string, error) {
	var buf bytes.Buffer
	if err := formTemplate.Execute(&buf, sub); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load.
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div>{{.ProjectName}} | {{.OwnerName}} | {{.StageName}}</div>
  {{range .Sections}}
  <h2>{{.Name}}</h2>
  {{range .Fields}}<p><strong>{{.Name}}</strong>: {{.Value}}</p>{{end}}
  {{end}}
</body>
</html>`
