package tree

import "github.com/BoonLang/boon-go/internal/value"

// Pattern is the sealed interface over structural patterns used by When
// and While arms.
type Pattern interface {
	pattern() // sealed
}

// PatLit matches a scalar literal exactly.
type PatLit struct {
	Value value.Value
}

// PatAlias binds the whole matched value to a name. Irrefutable.
type PatAlias struct {
	Name    string
	Binding BindingID
}

// PatWildcard matches anything without binding. Irrefutable.
type PatWildcard struct{}

// PatObject matches a record carrying at least the listed fields.
type PatObject struct {
	Fields []PatField
}

// PatTagged matches a tagged record by tag name plus fields.
// An empty Fields list matches a bare tag of the same name too, mirroring
// the language's `Increment` vs `Increment[]` equivalence.
type PatTagged struct {
	Tag    string
	Fields []PatField
}

// PatField matches one named field. A nil Value is shorthand for binding
// the field under its own name.
type PatField struct {
	Name    string
	Binding BindingID // binds the field value when nonzero
	Value   Pattern   // nested pattern, nil to accept any value
}

// PatList matches a list positionally and exactly.
type PatList struct {
	Items []Pattern
}

func (PatLit) pattern()      {}
func (PatAlias) pattern()    {}
func (PatWildcard) pattern() {}
func (PatObject) pattern()   {}
func (PatTagged) pattern()   {}
func (PatList) pattern()     {}

// Irrefutable reports whether p matches every value.
func Irrefutable(p Pattern) bool {
	switch p.(type) {
	case PatAlias, PatWildcard:
		return true
	default:
		return false
	}
}
