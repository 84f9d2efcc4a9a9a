package gallery

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"porter-eta/eta-web/internal/domain"

	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidManifest = errors.New("invalid gallery manifest")

const manifestSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "src", "source_pdf", "page", "context"],
    "properties": {
      "id":         {"type": "integer"},
      "src":        {"type": "string", "minLength": 1},
      "source_pdf": {"type": "string"},
      "page":       {"type": "integer", "minimum": 1},
      "context":    {"type": "string"}
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(manifestSchema)

type Gallery struct {
	Items []domain.GalleryItem
}

func (g *Gallery) Empty() bool {
	return g == nil || len(g.Items) == 0
}

// Parse validates raw manifest JSON and decodes it, keeping manifest order.
func Parse(raw []byte) (*Gallery, error) {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidManifest, strings.Join(errs, "; "))
	}

	var items []domain.GalleryItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	return &Gallery{Items: items}, nil
}

func Read(r io.Reader) (*Gallery, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(raw)
}

func LoadFile(name string) (*Gallery, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// MarkBroken flags every item whose image is missing from assets. src is
// resolved relative to the asset root, so a leading slash is ignored.
func (g *Gallery) MarkBroken(assets fs.FS) int {
	if g == nil || assets == nil {
		return 0
	}
	broken := 0
	for i := range g.Items {
		name := path.Clean(strings.TrimPrefix(g.Items[i].Src, "/"))
		_, err := fs.Stat(assets, name)
		g.Items[i].Broken = err != nil
		if g.Items[i].Broken {
			broken++
		}
	}
	return broken
}
