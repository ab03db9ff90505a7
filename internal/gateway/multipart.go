package gateway

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
)

// Multipart accumulates fields and files for a multipart/form-data body.
// Parts are written in the order they were added.
type Multipart struct {
	parts []part
}

type part struct {
	name        string
	value       string
	fileName    string
	contentType string
	data        []byte
	isFile      bool
}

// NewMultipart creates an empty multipart body.
func NewMultipart() *Multipart {
	return &Multipart{}
}

// Field appends a text field.
func (m *Multipart) Field(name, value string) *Multipart {
	m.parts = append(m.parts, part{name: name, value: value})
	return m
}

// File appends a file part.
func (m *Multipart) File(name, fileName, contentType string, data []byte) *Multipart {
	m.parts = append(m.parts, part{
		name:        name,
		fileName:    fileName,
		contentType: contentType,
		data:        data,
		isFile:      true,
	})
	return m
}

// Encode renders the body and returns it with its Content-Type header value.
func (m *Multipart) Encode() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, p := range m.parts {
		if !p.isFile {
			if err := w.WriteField(p.name, p.value); err != nil {
				return nil, "", fmt.Errorf("gateway: write field %s: %w", p.name, err)
			}
			continue
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.name, p.fileName))
		ct := p.contentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		fw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("gateway: create part %s: %w", p.name, err)
		}
		if _, err := fw.Write(p.data); err != nil {
			return nil, "", fmt.Errorf("gateway: write part %s: %w", p.name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("gateway: close multipart: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
