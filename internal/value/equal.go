package value

// Equal reports deep structural equality of two Values.
//
// Objects compare by field order as well as name: the model treats records
// as ordered, so [a: 1, b: 2] and [b: 2, a: 1] are distinct. Lists compare
// element identities and values positionally.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case Number:
		return x == b.(Number)
	case Text:
		return x == b.(Text)
	case Bool:
		return x == b.(Bool)
	case Tag:
		return x == b.(Tag)
	case Tagged:
		y := b.(Tagged)
		return x.tag == y.tag && Equal(x.fields, y.fields)
	case Object:
		y := b.(Object)
		if len(x.fields) != len(y.fields) {
			return false
		}
		for i, f := range x.fields {
			g := y.fields[i]
			if f.Name != g.Name || !Equal(f.Value, g.Value) {
				return false
			}
		}
		return true
	case List:
		y := b.(List)
		if len(x.elems) != len(y.elems) {
			return false
		}
		for i, e := range x.elems {
			f := y.elems[i]
			if e.ID != f.ID || !Equal(e.Value, f.Value) {
				return false
			}
		}
		return true
	case skip:
		return true
	default:
		return false
	}
}
