package node

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Params are the resolved node parameters for one item, as produced by the
// host's expression resolution. Values follow JSON typing.
type Params map[string]any

// String returns the string parameter key, or def when it is absent or empty.
func (p Params) String(key, def string) string {
	if s, ok := p[key].(string); ok && s != "" {
		return s
	}
	return def
}

// Has reports whether key was explicitly set.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Decode maps the parameters onto dst (a pointer to a struct with json tags)
// and runs its validate tags. Failures are reported as ErrValidation.
func (p Params) Decode(dst any) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return Validationf("invalid parameters: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Validationf("Parameter %q has the wrong type: expected %s, got %s", typeErr.Field, typeErr.Type, typeErr.Value)
		}
		return Validationf("invalid parameters: %v", err)
	}
	return Validate(dst)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// Validate runs the validate struct tags of v and converts the first failure
// into a readable ErrValidation error.
func Validate(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return Validationf("invalid parameters: %v", err)
	}
	return Validationf("%s", describe(verrs[0]))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Parameter %q is required", field)
	case "oneof":
		return fmt.Sprintf("Parameter %q must be one of [%s], got %v", field, fe.Param(), fe.Value())
	case "url", "http_url":
		return fmt.Sprintf("Parameter %q must be a valid URL", field)
	default:
		return fmt.Sprintf("Parameter %q failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
}

// ErrCollectionShape is returned for a Collection wrapper object that holds
// more than one list.
var ErrCollectionShape = errors.New("expected a list or an object holding one list")

// Collection is a repeated parameter. The host sends it either as a plain
// list or wrapped in an object holding a single list (e.g. {"messageValues": [...]}).
type Collection[T any] []T

// UnmarshalJSON accepts both shapes.
func (c *Collection[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = nil
		return nil
	}
	if data[0] == '[' {
		var list []T
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*c = list
		return nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	if len(wrapped) > 1 {
		return fmt.Errorf("%w: got %d keys", ErrCollectionShape, len(wrapped))
	}
	var out []T
	for _, raw := range wrapped {
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
	}
	*c = out
	return nil
}

// Scalar is a parameter the host may send either as a JSON string or as a
// number. It keeps the value's text form.
type Scalar string

// UnmarshalJSON accepts strings, numbers and null.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Scalar(strings.TrimSpace(str))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = Scalar(n.String())
	return nil
}

// String returns the text form.
func (s Scalar) String() string {
	return string(s)
}
