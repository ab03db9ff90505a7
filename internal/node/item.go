// Package node defines the item model exchanged with the workflow host:
// JSON records paired with named binary attachments, per-item parameters,
// and the error kinds every operation reports.
package node

import "maps"

// DefaultBinaryProperty is the attachment name used for single-file results.
const DefaultBinaryProperty = "data"

// Binary is a named attachment carried alongside an item's JSON.
type Binary struct {
	// Data is the raw attachment content. It is cleared once the attachment
	// has been persisted and Location is set.
	Data []byte `json:"data,omitempty"`
	// FileName is the suggested file name for the attachment.
	FileName string `json:"fileName,omitempty"`
	// MimeType is the attachment's content type.
	MimeType string `json:"mimeType,omitempty"`
	// FileSize is the attachment length in bytes.
	FileSize int `json:"fileSize"`
	// Location is where the attachment was persisted (file path or object URL).
	Location string `json:"location,omitempty"`
}

// NewBinary creates an attachment from raw bytes.
func NewBinary(data []byte, fileName, mimeType string) *Binary {
	return &Binary{
		Data:     data,
		FileName: fileName,
		MimeType: mimeType,
		FileSize: len(data),
	}
}

// Item is one unit of data flowing between workflow nodes.
type Item struct {
	JSON   map[string]any     `json:"json"`
	Binary map[string]*Binary `json:"binary,omitempty"`
	// Params holds per-item parameter overrides resolved by the host.
	Params map[string]any `json:"parameters,omitempty"`
	// PairedItem is the index of the input item that produced this output.
	PairedItem *int `json:"pairedItem,omitempty"`
}

// NewItem creates an output item paired with input index i.
func NewItem(i int, data map[string]any) Item {
	if data == nil {
		data = map[string]any{}
	}
	return Item{JSON: data, PairedItem: &i}
}

// WithBinary attaches b under name and returns the item.
func (it Item) WithBinary(name string, b *Binary) Item {
	if it.Binary == nil {
		it.Binary = make(map[string]*Binary)
	}
	it.Binary[name] = b
	return it
}

// ErrorItem is the substitute record emitted for a failed item when the host
// continues on failure.
func ErrorItem(i int, err error) Item {
	msg := "Internal server error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return NewItem(i, map[string]any{"error": msg})
}

// Input is what an operation receives for a single item.
type Input struct {
	// Index is the 0-based position of the item in the batch.
	Index int
	// Item is the incoming item (output of the previous workflow node).
	Item Item
	// Params are the resolved parameters for this item.
	Params Params
}

// Attachment returns the named input attachment or a validation error when
// it is missing or empty.
func (in Input) Attachment(name string) (*Binary, error) {
	b, ok := in.Item.Binary[name]
	if !ok || b == nil {
		return nil, Validationf("No binary data property %q exists on item", name)
	}
	if len(b.Data) == 0 {
		return nil, Validationf("Binary data property %q is empty", name)
	}
	return b, nil
}

// String returns a string field of the input item's JSON, or "" when absent.
func (in Input) String(key string) string {
	s, _ := in.Item.JSON[key].(string)
	return s
}

// Merge overlays src onto a copy of dst.
func Merge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	maps.Copy(out, dst)
	maps.Copy(out, src)
	return out
}
