package base

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/stevemurr/arowana/store"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// Kind is the JSON shape of a Document.
type Kind uint8

const (
	Object Kind = iota + 1
	Array
	String
	Integer
	Float
	Bool
)

func (k Kind) String() string {
	switch k {
	case Object:
		return "object"
	case Array:
		return "array"
	case String:
		return "string"
	case Integer:
		return "integer"
	case Float:
		return "float"
	case Bool:
		return "bool"
	default:
		return "invalid"
	}
}

// Document is a stored JSON value: an object, array, string, integer,
// float or bool. The zero Document is invalid. Documents are immutable.
type Document struct {
	kind Kind
	raw  []byte
}

// Parse classifies raw JSON text. JSON null is not a document.
func Parse(raw []byte) (Document, error) {
	if !gjson.ValidBytes(raw) {
		return Document{}, fmt.Errorf("%w: malformed JSON", ErrInvalidDocument)
	}
	raw = pretty.Ugly(raw)
	r := gjson.ParseBytes(raw)
	var kind Kind
	switch r.Type {
	case gjson.JSON:
		kind = Array
		if r.IsObject() {
			kind = Object
		}
	case gjson.String:
		kind = String
	case gjson.Number:
		kind = Integer
		if strings.ContainsAny(r.Raw, ".eE") {
			kind = Float
		}
	case gjson.True, gjson.False:
		kind = Bool
	default:
		return Document{}, fmt.Errorf("%w: null", ErrInvalidDocument)
	}
	return Document{kind: kind, raw: raw}, nil
}

// NewDocument encodes v as JSON and parses the result.
func NewDocument(v any) (Document, error) {
	if d, ok := v.(Document); ok {
		return d, d.valid()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return Parse(b)
}

// MustDocument is NewDocument that panics on error.
func MustDocument(v any) Document {
	d, err := NewDocument(v)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Document) valid() error {
	if d.kind == 0 {
		return fmt.Errorf("%w: zero document", ErrInvalidDocument)
	}
	return nil
}

// Kind returns the JSON shape of d.
func (d Document) Kind() Kind { return d.kind }

// Bytes returns a copy of the JSON text.
func (d Document) Bytes() []byte {
	return append([]byte(nil), d.raw...)
}

func (d Document) String() string { return string(d.raw) }

// Value decodes d. Objects become map[string]any and arrays []any, with
// nested numbers as float64; top-level numbers keep their kind. It panics
// if d does not hold valid JSON, which Parse never lets through.
func (d Document) Value() any {
	v, err := d.value()
	if err != nil {
		panic(err)
	}
	return v
}

func (d Document) value() (any, error) {
	r := gjson.ParseBytes(d.raw)
	switch d.kind {
	case Object:
		var m map[string]any
		if err := json.Unmarshal(d.raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		return m, nil
	case Array:
		var a []any
		if err := json.Unmarshal(d.raw, &a); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		return a, nil
	case String:
		return r.String(), nil
	case Integer:
		return r.Int(), nil
	case Float:
		return r.Float(), nil
	case Bool:
		return r.Bool(), nil
	default:
		return nil, nil
	}
}

// Get returns the value at a gjson path, or nil.
func (d Document) Get(path string) any {
	return gjson.GetBytes(d.raw, path).Value()
}

// Decode copies d into out, matching fields by their json tags.
func (d Document) Decode(out any) error {
	config := &mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "json",
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return err
	}
	v, err := d.value()
	if err != nil {
		return err
	}
	return decoder.Decode(v)
}

func (d Document) MarshalJSON() ([]byte, error) {
	if err := d.valid(); err != nil {
		return nil, err
	}
	return d.Bytes(), nil
}

func (d *Document) UnmarshalJSON(b []byte) error {
	parsed, err := Parse(b)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// splitKey removes the reserved key field from an object document and
// returns it. Strings and numbers are accepted, null counts as absent.
func (d Document) splitKey() (Document, string, error) {
	if d.kind != Object {
		return d, "", nil
	}
	var (
		r     gjson.Result
		count int
	)
	gjson.ParseBytes(d.raw).ForEach(func(k, v gjson.Result) bool {
		if k.String() == store.ReservedField {
			r = v
			count++
		}
		return true
	})
	switch count {
	case 0:
		return d, "", nil
	case 1:
	default:
		return Document{}, "", fmt.Errorf("%w: duplicate %q field", ErrInvalidDocument, store.ReservedField)
	}
	var key string
	switch r.Type {
	case gjson.String:
		key = r.Str
	case gjson.Number:
		key = r.Raw
	case gjson.Null:
	default:
		return Document{}, "", fmt.Errorf("%w: %q field must be a string or number", ErrInvalidDocument, store.ReservedField)
	}
	raw, err := sjson.DeleteBytes(d.Bytes(), store.ReservedField)
	if err != nil {
		return Document{}, "", err
	}
	if gjson.GetBytes(raw, store.ReservedField).Exists() {
		return Document{}, "", fmt.Errorf("%w: %q field could not be removed", ErrInvalidDocument, store.ReservedField)
	}
	return Document{kind: Object, raw: raw}, key, nil
}
