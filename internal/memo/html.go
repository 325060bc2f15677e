package memo

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

//go:embed templates/page.html
var templates embed.FS

var page = template.Must(template.ParseFS(templates, "templates/page.html"))

type pageData struct {
	Title string
	Body  template.HTML
}

// HTML renders memo Markdown into a standalone styled page.
func HTML(md string) (string, error) {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	r := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
	body := markdown.ToHTML([]byte(md), p, r)

	var buf bytes.Buffer
	if err := page.Execute(&buf, pageData{Title: "Decision Memo", Body: template.HTML(body)}); err != nil {
		return "", fmt.Errorf("failed to render memo page: %w", err)
	}
	return buf.String(), nil
}
