package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// docs is a table held in process: key to JSON text.
type docs map[string][]byte

// patch applies patches to the document under key. The receiver is only
// modified when every patch succeeds.
func (d docs) patch(key string, patches []Patch) error {
	for _, p := range patches {
		if err := ValidField(p.Field); err != nil {
			return err
		}
	}
	doc, ok := d[key]
	for _, p := range patches {
		next, err := applyPatch(key, doc, ok, p)
		if err != nil {
			return err
		}
		if next != nil {
			doc, ok = next, true
		}
	}
	if ok {
		d[key] = doc
	}
	return nil
}

// applyPatch mirrors the SQLite statements in patchRow. It returns nil
// when the document is left as is.
func applyPatch(key string, doc []byte, ok bool, p Patch) ([]byte, error) {
	path := gjsonPath(p.Field)
	if !ok {
		switch p.Op {
		case PatchSet:
			return sjson.SetRawBytes([]byte(`{}`), path, p.Value)
		case PatchRemove:
			return nil, nil
		case PatchIncrement, PatchAppend:
			return nil, notFound(key)
		default:
			return nil, fmt.Errorf("%w: unknown patch op %d", ErrInvalidMutation, p.Op)
		}
	}
	root := gjson.ParseBytes(doc)
	if !root.IsObject() {
		if p.Op == PatchRemove {
			return nil, nil
		}
		return nil, &MutationError{Key: key, Field: p.Field, Op: p.Op, Have: jsonType(root)}
	}
	cur := root.Get(path)
	switch p.Op {
	case PatchSet:
		return sjson.SetRawBytes(doc, path, p.Value)
	case PatchRemove:
		if !cur.Exists() {
			return nil, nil
		}
		return sjson.DeleteBytes(doc, path)
	case PatchIncrement:
		if cur.Exists() && cur.Type != gjson.Number {
			return nil, &MutationError{Key: key, Field: p.Field, Op: p.Op, Have: jsonType(cur)}
		}
		sum, err := add(cur, p.Amount)
		if err != nil {
			return nil, err
		}
		return sjson.SetRawBytes(doc, path, sum)
	case PatchAppend:
		arr := `[]`
		if cur.Exists() {
			if !cur.IsArray() {
				return nil, &MutationError{Key: key, Field: p.Field, Op: p.Op, Have: jsonType(cur)}
			}
			arr = cur.Raw
		}
		next, err := sjson.SetRaw(arr, "-1", string(p.Value))
		if err != nil {
			return nil, err
		}
		return sjson.SetRawBytes(doc, path, []byte(next))
	default:
		return nil, fmt.Errorf("%w: unknown patch op %d", ErrInvalidMutation, p.Op)
	}
}

// add returns the JSON text of cur + amount. Integer sums stay integers
// unless they overflow, which turns them real as in SQLite.
func add(cur gjson.Result, amount any) ([]byte, error) {
	isInt := !cur.Exists() || !strings.ContainsAny(cur.Raw, ".eE")
	switch a := amount.(type) {
	case int64:
		if !isInt {
			return formatReal(cur.Float() + float64(a)), nil
		}
		c := cur.Int()
		if sum := c + a; (sum > c) == (a > 0) {
			return strconv.AppendInt(nil, sum, 10), nil
		}
		return formatReal(float64(c) + float64(a)), nil
	case float64:
		return formatReal(cur.Float() + a), nil
	default:
		return nil, fmt.Errorf("%w: increment amount %v (%T)", ErrInvalidMutation, amount, amount)
	}
}

// formatReal formats f so it always reads back as a real: 7 becomes 7.0.
func formatReal(f float64) []byte {
	b := strconv.AppendFloat(nil, f, 'g', -1, 64)
	if !strings.ContainsAny(string(b), ".eEnN") {
		b = append(b, ".0"...)
	}
	return b
}

// jsonType names r the way SQLite's json_type does.
func jsonType(r gjson.Result) string {
	switch r.Type {
	case gjson.Null:
		return "null"
	case gjson.False:
		return "false"
	case gjson.True:
		return "true"
	case gjson.String:
		return "text"
	case gjson.Number:
		if strings.ContainsAny(r.Raw, ".eE") {
			return "real"
		}
		return "integer"
	default:
		if r.IsArray() {
			return "array"
		}
		return "object"
	}
}
