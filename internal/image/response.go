package image

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/maauso/maiarouter-node/internal/gateway"
	"github.com/maauso/maiarouter-node/internal/node"
)

// Variant is the shape of an image-producing response.
type Variant int

const (
	// VariantUnknown matches no known shape; the raw payload is returned.
	VariantUnknown Variant = iota
	// VariantImages is the /images endpoint shape with a data[] list.
	VariantImages
	// VariantChat is the chat completions shape with choices[0].message.images[].
	VariantChat
)

func (v Variant) String() string {
	switch v {
	case VariantImages:
		return "images"
	case VariantChat:
		return "chat"
	default:
		return "unknown"
	}
}

// DetectVariant classifies a response object.
func DetectVariant(obj gjson.Result) Variant {
	if !obj.IsObject() {
		return VariantUnknown
	}
	if obj.Get("data").IsArray() {
		return VariantImages
	}
	if choices := obj.Get("choices"); choices.IsArray() && len(choices.Array()) > 0 {
		return VariantChat
	}
	return VariantUnknown
}

const (
	warnNoImageData   = "No image data returned"
	errDecodeFailed   = "Failed to process base64 image data"
	generatedMimeType = "image/png"
)

var dataURIPrefix = regexp.MustCompile(`^data:image/[a-z]+;base64,`)

// naming controls attachment names and result tags per operation.
type naming struct {
	binaryPrefix string
	filePrefix   string
	imagesType   string
	edit         bool
}

var (
	generateNaming = naming{binaryPrefix: "image_", filePrefix: "generated-image-", imagesType: "images/generations"}
	editNaming     = naming{binaryPrefix: "edited_image_", filePrefix: "edited-image-", imagesType: "images/edits", edit: true}
)

type translator struct {
	naming
	model  string
	logger *slog.Logger
}

// translate converts an API response into the output item for input index i.
func (t translator) translate(i int, resp *gateway.Response) node.Item {
	if !gjson.ValidBytes(resp.Body) {
		return node.NewItem(i, t.unknown(string(resp.Body)))
	}
	obj := gjson.ParseBytes(resp.Body)
	if !obj.IsObject() {
		return node.NewItem(i, t.unknown(string(resp.Body)))
	}

	var (
		result   map[string]any
		binaries map[string]*node.Binary
	)
	switch DetectVariant(obj) {
	case VariantImages:
		result, binaries = t.images(obj)
	case VariantChat:
		result, binaries = t.chat(obj)
	default:
		result = t.unknown(obj.Value())
	}

	item := node.NewItem(i, result)
	for name, b := range binaries {
		item = item.WithBinary(name, b)
	}
	return item
}

func (t translator) unknown(raw any) map[string]any {
	return map[string]any{
		"raw_response":  raw,
		"response_type": VariantUnknown.String(),
		"model":         t.model,
	}
}

func (t translator) images(obj gjson.Result) (map[string]any, map[string]*node.Binary) {
	data := obj.Get("data").Array()
	binaries := make(map[string]*node.Binary)
	images := make([]any, 0, len(data))

	for j, img := range data {
		processed := map[string]any{}
		copyKeys(processed, img, "revised_prompt", "url")

		b64 := img.Get("b64_json").String()
		if strings.TrimSpace(b64) == "" {
			processed["warning"] = warnNoImageData
		} else {
			t.attach(j, b64, processed, binaries)
		}
		images = append(images, processed)
	}

	result := map[string]any{}
	copyKeys(result, obj, "created", "background", "output_format", "quality", "size", "usage")
	result["images"] = images
	result["total_images"] = len(images)
	result["model"] = t.model
	result["response_type"] = t.imagesType
	if t.edit {
		result["operation"] = "edit"
	}
	return result, binaries
}

func (t translator) chat(obj gjson.Result) (map[string]any, map[string]*node.Binary) {
	choice := obj.Get("choices.0")
	message := choice.Get("message")
	entries := message.Get("images").Array()

	binaries := make(map[string]*node.Binary)
	images := make([]any, 0, len(entries))
	for j, img := range entries {
		processed := map[string]any{}
		copyKeys(processed, img, "index", "type")

		if uri := img.Get("image_url.url").String(); uri != "" {
			t.attach(j, dataURIPrefix.ReplaceAllString(uri, ""), processed, binaries)
		}
		images = append(images, processed)
	}

	thinking := any([]any{})
	if tb := message.Get("thinking_blocks"); tb.Exists() && tb.Type != gjson.Null {
		thinking = tb.Value()
	}

	result := map[string]any{}
	copyKeys(result, obj, "id", "created", "object", "usage",
		"vertex_ai_grounding_metadata",
		"vertex_ai_url_context_metadata",
		"vertex_ai_safety_results",
		"vertex_ai_citation_metadata",
	)
	result["model"] = t.model
	if m := obj.Get("model"); m.Type == gjson.String && m.String() != "" {
		result["model"] = m.String()
	}
	copyKeys(result, choice, "finish_reason")
	result["images"] = images
	result["total_images"] = len(images)
	result["thinking_blocks"] = thinking
	result["response_type"] = "chat/completions"
	if t.edit {
		result["operation"] = "edit"
	}
	return result, binaries
}

// attach decodes the j-th image payload into binaries and records the
// attachment name (or the failure) on processed.
func (t translator) attach(j int, b64 string, processed map[string]any, binaries map[string]*node.Binary) {
	data, err := decodeBase64(b64)
	if err != nil {
		t.logger.Error("failed to decode image payload",
			slog.Int("image", j+1),
			slog.String("model", t.model),
			slog.String("error", err.Error()),
		)
		processed["error"] = errDecodeFailed
		return
	}
	if len(data) == 0 {
		processed["warning"] = warnNoImageData
		return
	}
	name := fmt.Sprintf("%s%d", t.binaryPrefix, j+1)
	binaries[name] = node.NewBinary(data, fmt.Sprintf("%s%d.png", t.filePrefix, j+1), generatedMimeType)
	processed["binary_property"] = name
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// copyKeys copies the top-level keys of src that are present onto dst.
func copyKeys(dst map[string]any, src gjson.Result, keys ...string) {
	for _, k := range keys {
		if v := src.Get(k); v.Exists() {
			dst[k] = v.Value()
		}
	}
}
