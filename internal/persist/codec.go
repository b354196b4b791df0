package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/BoonLang/boon-go/internal/value"
)

// Encode serializes a Value to its canonical JSON wire form.
//
// The encoding is deterministic: field order is the record's declaration
// order (records are ordered, so no key sorting is needed) and numbers use
// the shortest round-trippable float formatting. Decode(Encode(v)) always
// equals v, including list element identities.
//
// The skip sentinel is not a persistable value and returns an error.
func Encode(v value.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v value.Value) error {
	switch x := v.(type) {
	case value.Number:
		buf.WriteString(`{"k":"number","v":`)
		buf.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 64))
		buf.WriteByte('}')
	case value.Text:
		buf.WriteString(`{"k":"text","v":`)
		writeJSONString(buf, string(x))
		buf.WriteByte('}')
	case value.Bool:
		buf.WriteString(`{"k":"bool","v":`)
		buf.WriteString(strconv.FormatBool(bool(x)))
		buf.WriteByte('}')
	case value.Tag:
		buf.WriteString(`{"k":"tag","v":`)
		writeJSONString(buf, string(x))
		buf.WriteByte('}')
	case value.Tagged:
		buf.WriteString(`{"k":"tagged","tag":`)
		writeJSONString(buf, x.Tag())
		buf.WriteString(`,"fields":`)
		if err := encodeFields(buf, x.Record()); err != nil {
			return err
		}
		buf.WriteByte('}')
	case value.Object:
		buf.WriteString(`{"k":"object","fields":`)
		if err := encodeFields(buf, x); err != nil {
			return err
		}
		buf.WriteByte('}')
	case value.List:
		buf.WriteString(`{"k":"list","items":[`)
		for i := 0; i < x.Len(); i++ {
			if i > 0 {
				buf.WriteByte(',')
			}
			e := x.At(i)
			buf.WriteString(`{"id":`)
			buf.WriteString(strconv.FormatUint(uint64(e.ID), 10))
			buf.WriteString(`,"v":`)
			if err := encode(buf, e.Value); err != nil {
				return err
			}
			buf.WriteByte('}')
		}
		buf.WriteString(`]}`)
	case nil:
		return fmt.Errorf("cannot encode nil value")
	default:
		return fmt.Errorf("cannot encode %s value", v.Kind())
	}
	return nil
}

func encodeFields(buf *bytes.Buffer, o value.Object) error {
	buf.WriteByte('[')
	for i := 0; i < o.Len(); i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		f := o.At(i)
		buf.WriteString(`{"n":`)
		writeJSONString(buf, f.Name)
		buf.WriteString(`,"v":`)
		if err := encode(buf, f.Value); err != nil {
			return err
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return nil
}

// writeJSONString writes s as a JSON string without HTML escaping.
func writeJSONString(buf *bytes.Buffer, s string) {
	data, _ := json.Marshal(s)
	buf.Write(data)
}

type wireValue struct {
	K      string          `json:"k"`
	V      json.RawMessage `json:"v,omitempty"`
	Tag    string          `json:"tag,omitempty"`
	Fields []wireField     `json:"fields,omitempty"`
	Items  []wireItem      `json:"items,omitempty"`
}

type wireField struct {
	N string          `json:"n"`
	V json.RawMessage `json:"v"`
}

type wireItem struct {
	ID uint64          `json:"id"`
	V  json.RawMessage `json:"v"`
}

// Decode parses the wire form produced by Encode.
func Decode(data []byte) (value.Value, error) {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode persisted value: %w", err)
	}
	return decodeWire(&w)
}

func decodeWire(w *wireValue) (value.Value, error) {
	switch w.K {
	case "number":
		var n float64
		if err := json.Unmarshal(w.V, &n); err != nil {
			return nil, fmt.Errorf("decode number: %w", err)
		}
		return value.Number(n), nil
	case "text":
		var s string
		if err := json.Unmarshal(w.V, &s); err != nil {
			return nil, fmt.Errorf("decode text: %w", err)
		}
		return value.Text(s), nil
	case "bool":
		var b bool
		if err := json.Unmarshal(w.V, &b); err != nil {
			return nil, fmt.Errorf("decode bool: %w", err)
		}
		return value.Bool(b), nil
	case "tag":
		var s string
		if err := json.Unmarshal(w.V, &s); err != nil {
			return nil, fmt.Errorf("decode tag: %w", err)
		}
		return value.Tag(s), nil
	case "tagged":
		fields, err := decodeFields(w.Fields)
		if err != nil {
			return nil, err
		}
		return value.NewTagged(w.Tag, fields...), nil
	case "object":
		fields, err := decodeFields(w.Fields)
		if err != nil {
			return nil, err
		}
		return value.NewObject(fields...), nil
	case "list":
		elems := make([]value.Element, len(w.Items))
		for i, item := range w.Items {
			v, err := Decode(item.V)
			if err != nil {
				return nil, fmt.Errorf("list item %d: %w", i, err)
			}
			elems[i] = value.Element{ID: value.ItemID(item.ID), Value: v}
		}
		return value.NewList(elems...), nil
	default:
		return nil, fmt.Errorf("decode persisted value: unknown kind %q", w.K)
	}
}

func decodeFields(fields []wireField) ([]value.Field, error) {
	out := make([]value.Field, len(fields))
	for i, f := range fields {
		v, err := Decode(f.V)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.N, err)
		}
		out[i] = value.Field{Name: f.N, Value: v}
	}
	return out, nil
}
