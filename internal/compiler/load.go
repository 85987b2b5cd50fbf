package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Format identifies a declaration source encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCUE  Format = "cue"
)

// FormatFromPath picks a Format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".cue":
		return FormatCUE, nil
	}
	return "", fmt.Errorf("unsupported declaration file %q (want .yaml, .yml, .json or .cue)", path)
}

// LoadFile reads and decodes a declaration file.
func LoadFile(path string) (*Declaration, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read declaration: %w", err)
	}
	return Parse(data, format, path)
}

// Parse decodes declaration bytes. filename is used for error positions.
// Unknown fields are rejected in every format.
func Parse(data []byte, format Format, filename string) (*Declaration, error) {
	switch format {
	case FormatYAML:
		return parseYAML(data)
	case FormatJSON:
		return parseJSON(data)
	case FormatCUE:
		return parseCUE(data, filename)
	}
	return nil, fmt.Errorf("unsupported declaration format %q", format)
}

func parseYAML(data []byte) (*Declaration, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var decl Declaration
	if err := dec.Decode(&decl); err != nil {
		return nil, &CompileError{Field: "yaml", Message: err.Error()}
	}
	return &decl, nil
}

// parseJSON keeps numbers as json.Number so large integers survive.
func parseJSON(data []byte) (*Declaration, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	var decl Declaration
	if err := dec.Decode(&decl); err != nil {
		return nil, &CompileError{Field: "json", Message: err.Error()}
	}
	return &decl, nil
}

// parseCUE evaluates the file, requires it to be concrete, and decodes the
// exported JSON form into a Declaration.
func parseCUE(data []byte, filename string) (*Declaration, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	if !v.LookupPath(cue.ParsePath("module")).Exists() {
		return nil, &CompileError{Field: "module", Message: "module is required", Pos: v.Pos()}
	}

	raw, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	return parseJSON(raw)
}
