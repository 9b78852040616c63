package site

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed static/**
var staticFS embed.FS

// FS returns an http.FileSystem for the embedded page assets.
func FS() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static/assets")
	if err != nil {
		// Should never happen with the embedded tree.
		// Expose the whole FS on error.
		return http.FS(staticFS)
	}
	return http.FS(sub)
}

func parseTemplates() (*template.Template, error) {
	tmpl, err := template.ParseFS(staticFS, "static/templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemplate, err)
	}
	return tmpl, nil
}
