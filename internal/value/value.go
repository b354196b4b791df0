// Package value defines the immutable value model flowing through the
// dataflow graph.
//
// Value is a sealed sum type: Number, Text, Bool, Tag, Tagged, Object and
// List are the only implementations. Values are immutable - constructors
// copy their inputs and accessors never expose internal slices for
// mutation, so a Value can be shared across nodes without synchronization.
//
// Lists carry stable per-element identities (ItemID). A List held as a
// plain Value is a snapshot; live, incrementally-updated lists are managed
// by the engine and emit change events instead of snapshots.
package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Value is the sealed interface over the runtime value kinds.
// Only the types in this package implement it.
type Value interface {
	value() // sealed
	Kind() Kind
}

// Kind identifies the concrete variant of a Value.
type Kind int

const (
	KindNumber Kind = iota + 1
	KindText
	KindBool
	KindTag
	KindTagged
	KindObject
	KindList
	KindSkip
)

// String returns the lowercase kind name used in diagnostics and the
// persistence codec.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	case KindTag:
		return "tag"
	case KindTagged:
		return "tagged"
	case KindObject:
		return "object"
	case KindList:
		return "list"
	case KindSkip:
		return "skip"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Number is a numeric value. The language has a single numeric type.
type Number float64

func (Number) value()     {}
func (Number) Kind() Kind { return KindNumber }

// Text is a string value.
type Text string

func (Text) value()     {}
func (Text) Kind() Kind { return KindText }

// Bool is a boolean value.
type Bool bool

func (Bool) value()     {}
func (Bool) Kind() Kind { return KindBool }

// Tag is a bare tag such as `Increment` or `Empty` - a named unit value.
type Tag string

func (Tag) value()     {}
func (Tag) Kind() Kind { return KindTag }

// Field is one named entry of an Object or Tagged value.
// Field order is significant and preserved.
type Field struct {
	Name  string
	Value Value
}

// Object is an ordered record of named fields.
type Object struct {
	fields []Field
}

func (Object) value()     {}
func (Object) Kind() Kind { return KindObject }

// NewObject builds an Object from fields. The slice is copied.
func NewObject(fields ...Field) Object {
	fs := make([]Field, len(fields))
	copy(fs, fields)
	return Object{fields: fs}
}

// Len returns the number of fields.
func (o Object) Len() int { return len(o.fields) }

// At returns the field at position i in declaration order.
func (o Object) At(i int) Field { return o.fields[i] }

// Get returns the value of the named field, if present.
func (o Object) Get(name string) (Value, bool) {
	for _, f := range o.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Fields returns a copy of the field slice in declaration order.
func (o Object) Fields() []Field {
	fs := make([]Field, len(o.fields))
	copy(fs, o.fields)
	return fs
}

// Tagged is a tagged record: a tag name plus an ordered record of fields,
// such as `Duration[seconds: 10]`.
type Tagged struct {
	tag    string
	fields Object
}

func (Tagged) value()     {}
func (Tagged) Kind() Kind { return KindTagged }

// NewTagged builds a Tagged record. The fields slice is copied.
func NewTagged(tag string, fields ...Field) Tagged {
	return Tagged{tag: tag, fields: NewObject(fields...)}
}

// Tag returns the tag name.
func (t Tagged) Tag() string { return t.tag }

// Record returns the field record.
func (t Tagged) Record() Object { return t.fields }

// Get returns the value of the named field, if present.
func (t Tagged) Get(name string) (Value, bool) { return t.fields.Get(name) }

// ItemID is the stable identity of one list element. IDs are unique within
// their list for its whole lifetime: an ID is never reused after removal.
type ItemID uint64

// Element is one identified entry of a List snapshot.
type Element struct {
	ID    ItemID
	Value Value
}

// List is an ordered snapshot of identified elements.
type List struct {
	elems []Element
}

func (List) value()     {}
func (List) Kind() Kind { return KindList }

// NewList builds a List snapshot. The slice is copied.
func NewList(elems ...Element) List {
	es := make([]Element, len(elems))
	copy(es, elems)
	return List{elems: es}
}

// Len returns the number of elements.
func (l List) Len() int { return len(l.elems) }

// At returns the element at position i.
func (l List) At(i int) Element { return l.elems[i] }

// Elements returns a copy of the element slice in order.
func (l List) Elements() []Element {
	es := make([]Element, len(l.elems))
	copy(es, l.elems)
	return es
}

// Values returns the element values in order, without identities.
func (l List) Values() []Value {
	vs := make([]Value, len(l.elems))
	for i, e := range l.elems {
		vs[i] = e.Value
	}
	return vs
}

// skip is the emission-suppressing sentinel produced by a pattern arm.
// It never crosses a node boundary and is rejected by the persistence
// codec; the engine drops the tick instead of forwarding it.
type skip struct{}

func (skip) value()     {}
func (skip) Kind() Kind { return KindSkip }

// Skip returns the skip sentinel.
func Skip() Value { return skip{} }

// IsSkip reports whether v is the skip sentinel.
func IsSkip(v Value) bool {
	_, ok := v.(skip)
	return ok
}

// String renders a Value in the language's literal-ish notation.
// Intended for logs, diagnostics and the CLI text output.
func String(v Value) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case Number:
		return strconv.FormatFloat(float64(x), 'g', -1, 64)
	case Text:
		return strconv.Quote(string(x))
	case Bool:
		if x {
			return "True"
		}
		return "False"
	case Tag:
		return string(x)
	case Tagged:
		return x.tag + stringFields(x.fields)
	case Object:
		return stringFields(x)
	case List:
		var b strings.Builder
		b.WriteString("LIST {")
		for i, e := range x.elems {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(String(e.Value))
		}
		b.WriteString("}")
		return b.String()
	case skip:
		return "SKIP"
	default:
		return fmt.Sprintf("<%s>", v.Kind())
	}
}

func stringFields(o Object) string {
	var b strings.Builder
	b.WriteString("[")
	for i, f := range o.fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(String(f.Value))
	}
	b.WriteString("]")
	return b.String()
}
