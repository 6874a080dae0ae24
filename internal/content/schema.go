package content

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed chapter.schema.json
var chapterSchemaJSON []byte

var chapterSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(chapterSchemaJSON))
})

// SchemaError lists every schema violation found in one chapter document.
type SchemaError struct {
	Path     string
	Problems []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: invalid chapter: %s", e.Path, strings.Join(e.Problems, "; "))
}

// validateChapter checks a decoded YAML document against the chapter schema.
func validateChapter(path string, doc any) error {
	schema, err := chapterSchema()
	if err != nil {
		return fmt.Errorf("compiling chapter schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("%s: validating chapter: %w", path, err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		problems = append(problems, re.String())
	}
	return &SchemaError{Path: path, Problems: problems}
}
