package view

import (
	"bytes"
	_ "embed"
	"html/template"
)

//go:embed files/explorer.html
var explorerHTML string

var explorerTemplate = template.Must(template.New("explorer").Parse(explorerHTML))

type explorerTemplateData struct {
	Title    string
	Endpoint string
}

// RenderExplorer renders the GraphiQL page that sends its requests to endpoint.
func RenderExplorer(title, endpoint string) ([]byte, error) {
	var buf bytes.Buffer
	err := explorerTemplate.Execute(&buf, explorerTemplateData{
		Title:    title,
		Endpoint: endpoint,
	})
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
