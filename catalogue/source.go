package catalogue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/c360/flowcanvas/errors"
)

// Source fetches instruction definitions. It is called once per session
// and again only on Refresh.
type Source interface {
	List(ctx context.Context) ([]Instruction, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Instruction, error)

// List calls f.
func (f SourceFunc) List(ctx context.Context) ([]Instruction, error) {
	return f(ctx)
}

// StaticSource serves a fixed set of instructions.
type StaticSource []Instruction

// List returns a copy of the instructions.
func (s StaticSource) List(context.Context) ([]Instruction, error) {
	return append([]Instruction(nil), s...), nil
}

// FileSource reads a catalogue Document from a YAML or JSON file. The file
// is read on every List call.
type FileSource struct {
	Path string
}

// List reads and flattens the file.
func (f FileSource) List(ctx context.Context) ([]Instruction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapFatal(err, "FileSource", "List", "catalogue file read")
		}
		return nil, errors.WrapTransient(err, "FileSource", "List", "catalogue file read")
	}
	doc, err := ParseDocument(data, filepath.Ext(f.Path))
	if err != nil {
		return nil, err
	}
	return doc.Flatten(), nil
}

// ParseDocument decodes a catalogue. ext selects the decoder; ".json"
// uses encoding/json so field aliases are honored, anything else is YAML.
func ParseDocument(data []byte, ext string) (Document, error) {
	var doc Document
	var err error
	if strings.EqualFold(ext, ".json") {
		err = json.Unmarshal(data, &doc)
	} else {
		err = yaml.Unmarshal(data, &doc)
	}
	if err != nil {
		return Document{}, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"catalogue", "ParseDocument", "document decode")
	}
	return doc, nil
}
