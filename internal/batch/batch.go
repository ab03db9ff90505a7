// Package batch loads workflow batches from YAML files so a node invocation
// can be replayed outside the workflow host.
package batch

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/maauso/maiarouter-node/internal/dispatch"
	"github.com/maauso/maiarouter-node/internal/node"
)

const defaultMimeType = "application/octet-stream"

var (
	// ErrInvalidFile is returned when the batch file cannot be decoded.
	ErrInvalidFile = errors.New("batch: invalid file")
	// ErrInvalidBinary is returned when an attachment has neither usable data nor path.
	ErrInvalidBinary = errors.New("batch: invalid binary")
)

// File is the on-disk batch layout.
type File struct {
	Resource       string         `yaml:"resource" json:"resource" validate:"required"`
	Operation      string         `yaml:"operation" json:"operation" validate:"required"`
	ContinueOnFail bool           `yaml:"continueOnFail" json:"continueOnFail"`
	Parameters     map[string]any `yaml:"parameters" json:"parameters"`
	Items          []Item         `yaml:"items" json:"items"`
}

// Item is one input item of a batch file.
type Item struct {
	JSON       map[string]any    `yaml:"json" json:"json"`
	Parameters map[string]any    `yaml:"parameters" json:"parameters"`
	Binary     map[string]Binary `yaml:"binary" json:"binary"`
}

// Binary is an attachment given inline as base64 or as a file path.
// Relative paths are resolved against the batch file's directory.
type Binary struct {
	Path     string `yaml:"path" json:"path"`
	Data     string `yaml:"data" json:"data"`
	FileName string `yaml:"fileName" json:"fileName"`
	MimeType string `yaml:"mimeType" json:"mimeType"`
}

// Load reads and decodes the batch file at path.
func Load(path string) (dispatch.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return dispatch.Batch{}, fmt.Errorf("read batch file: %w", err)
	}
	return Parse(bytes.NewReader(data), filepath.Dir(path))
}

// Parse decodes a batch from r. baseDir anchors relative binary paths.
func Parse(r io.Reader, baseDir string) (dispatch.Batch, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return dispatch.Batch{}, fmt.Errorf("%w: empty document", ErrInvalidFile)
		}
		return dispatch.Batch{}, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if err := node.Validate(f); err != nil {
		return dispatch.Batch{}, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	items := make([]node.Item, 0, len(f.Items))
	for i, it := range f.Items {
		item := node.Item{JSON: it.JSON, Params: it.Parameters}
		if item.JSON == nil {
			item.JSON = map[string]any{}
		}
		for name, b := range it.Binary {
			att, err := b.load(baseDir)
			if err != nil {
				return dispatch.Batch{}, fmt.Errorf("item %d binary %q: %w", i, name, err)
			}
			item = item.WithBinary(name, att)
		}
		items = append(items, item)
	}

	return dispatch.Batch{
		Resource:       f.Resource,
		Operation:      f.Operation,
		Params:         f.Parameters,
		Items:          items,
		ContinueOnFail: f.ContinueOnFail,
	}, nil
}

func (b Binary) load(baseDir string) (*node.Binary, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case b.Data != "" && b.Path != "":
		return nil, fmt.Errorf("%w: set either data or path, not both", ErrInvalidBinary)
	case b.Data != "":
		data, err = base64.StdEncoding.DecodeString(b.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: decode base64: %v", ErrInvalidBinary, err)
		}
	case b.Path != "":
		path := b.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBinary, err)
		}
	default:
		return nil, fmt.Errorf("%w: data or path is required", ErrInvalidBinary)
	}

	name := b.FileName
	if name == "" && b.Path != "" {
		name = filepath.Base(b.Path)
	}
	mimeType := b.MimeType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(name))
	}
	if mimeType == "" {
		mimeType = defaultMimeType
	}
	return node.NewBinary(data, name, mimeType), nil
}
