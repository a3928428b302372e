package gateway

import (
	_ "embed"
	"html/template"
	"io"

	"github.com/harun/zombinator/pkg/agent"
)

//go:embed templates/index.html.tmpl
var indexSource string

var indexTemplate = template.Must(template.New("index").Parse(indexSource))

type pageData struct {
	SessionID string
	Messages  []agent.Message
}

func renderIndex(w io.Writer, data pageData) error {
	return indexTemplate.Execute(w, data)
}
