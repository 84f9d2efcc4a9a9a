package assets

import "embed"

// FS holds the page templates and the bundled gallery manifest.
//
//go:embed templates/*.html graphs.json
var FS embed.FS

const (
	IndexTemplate = "templates/index.html"
	Manifest      = "graphs.json"
)
