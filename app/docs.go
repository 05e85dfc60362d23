package app

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"
)

//go:embed docs/*.md
var docsFS embed.FS

// DocPage is one parsed documentation page.
type DocPage struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Slug        string `yaml:"-"`
	Content     template.HTML
}

const docsPageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}} | Inference Feed {{.Version}}</title>
<meta name="description" content="{{.Description}}">
<style>body{max-width:52rem;margin:2rem auto;padding:0 1rem;font-family:sans-serif;line-height:1.5}pre{background:#f4f4f4;padding:.75rem;overflow-x:auto}</style>
</head>
<body>
{{.Content}}
</body>
</html>`

// DocsManager renders embedded markdown documentation over HTTP.
type DocsManager struct {
	pages   map[string]*DocPage
	tmpl    *template.Template
	md      goldmark.Markdown
	version string
}

// NewDocsManager parses all embedded docs pages.
func NewDocsManager(version string) (*DocsManager, error) {
	dm := &DocsManager{
		pages:   make(map[string]*DocPage),
		version: version,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Table),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
	}

	var err error
	dm.tmpl, err = template.New("docs").Parse(docsPageTemplate)
	if err != nil {
		return nil, err
	}

	if err := dm.loadDocs(); err != nil {
		return nil, err
	}
	return dm, nil
}

// loadDocs walks the embedded docs directory and parses every markdown file.
func (dm *DocsManager) loadDocs() error {
	return fs.WalkDir(docsFS, "docs", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".md" {
			return nil
		}

		content, err := docsFS.ReadFile(path)
		if err != nil {
			return err
		}
		page, err := dm.parsePage(content)
		if err != nil {
			return err
		}

		slug := strings.TrimSuffix(strings.TrimPrefix(path, "docs/"), ".md")
		if slug == "index" {
			page.Slug = "/docs/"
		} else {
			page.Slug = "/docs/" + slug
		}
		dm.pages[page.Slug] = page
		return nil
	})
}

// parsePage extracts yaml frontmatter and renders the markdown body.
func (dm *DocsManager) parsePage(content []byte) (*DocPage, error) {
	page := &DocPage{}

	if bytes.HasPrefix(content, []byte("---\n")) {
		parts := bytes.SplitN(content[4:], []byte("\n---\n"), 2)
		if len(parts) == 2 {
			if err := yaml.Unmarshal(parts[0], page); err != nil {
				return nil, err
			}
			content = parts[1]
		}
	}

	var buf bytes.Buffer
	if err := dm.md.Convert(content, &buf); err != nil {
		return nil, err
	}
	page.Content = template.HTML(buf.String())
	return page, nil
}

// ServeDocs handles documentation pages at /docs/.
func (dm *DocsManager) ServeDocs(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/docs" {
		http.Redirect(w, r, "/docs/", http.StatusMovedPermanently)
		return
	}
	if path != "/docs/" {
		path = strings.TrimSuffix(path, "/")
	}

	page, ok := dm.pages[path]
	if !ok {
		http.NotFound(w, r)
		return
	}

	data := struct {
		Title       string
		Description string
		Content     template.HTML
		Version     string
	}{page.Title, page.Description, page.Content, dm.version}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dm.tmpl.Execute(w, data); err != nil {
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}
