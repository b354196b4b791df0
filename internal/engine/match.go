package engine

import (
	"github.com/BoonLang/boon-go/internal/tree"
	"github.com/BoonLang/boon-go/internal/value"
)

// binding is one alias captured during a pattern match.
type binding struct {
	id tree.BindingID
	v  value.Value
}

// match tests v against p structurally, collecting alias bindings.
// Patterns follow the language's rules: records match on a subset of
// fields, lists match positionally and exactly, a tagged pattern with no
// fields also accepts the bare tag of the same name.
func match(p tree.Pattern, v value.Value) ([]binding, bool) {
	switch pat := p.(type) {
	case tree.PatWildcard:
		return nil, true

	case tree.PatAlias:
		return []binding{{id: pat.Binding, v: v}}, true

	case tree.PatLit:
		return nil, value.Equal(pat.Value, v)

	case tree.PatObject:
		obj, ok := v.(value.Object)
		if !ok {
			return nil, false
		}
		return matchFields(pat.Fields, obj)

	case tree.PatTagged:
		switch x := v.(type) {
		case value.Tag:
			if len(pat.Fields) == 0 && string(x) == pat.Tag {
				return nil, true
			}
			return nil, false
		case value.Tagged:
			if x.Tag() != pat.Tag {
				return nil, false
			}
			return matchFields(pat.Fields, x.Record())
		default:
			return nil, false
		}

	case tree.PatList:
		list, ok := v.(value.List)
		if !ok || list.Len() != len(pat.Items) {
			return nil, false
		}
		var bounds []binding
		for i, item := range pat.Items {
			bs, ok := match(item, list.At(i).Value)
			if !ok {
				return nil, false
			}
			bounds = append(bounds, bs...)
		}
		return bounds, true

	default:
		return nil, false
	}
}

func matchFields(pats []tree.PatField, obj value.Object) ([]binding, bool) {
	var bounds []binding
	for _, pf := range pats {
		fv, ok := obj.Get(pf.Name)
		if !ok {
			return nil, false
		}
		if pf.Value != nil {
			bs, ok := match(pf.Value, fv)
			if !ok {
				return nil, false
			}
			bounds = append(bounds, bs...)
		}
		if pf.Binding != tree.NoBinding {
			bounds = append(bounds, binding{id: pf.Binding, v: fv})
		}
	}
	return bounds, true
}

// matchArms finds the first matching arm in declaration order.
func matchArms(arms []tree.Arm, v value.Value) (int, []binding, bool) {
	for i, arm := range arms {
		if bounds, ok := match(arm.Pattern, v); ok {
			return i, bounds, true
		}
	}
	return -1, nil, false
}

// checkArmCoverage enforces the construction-time rule: an arm set with no
// irrefutable arm (wildcard or bare alias) cannot be proven total, and a
// tick with no matching arm has nowhere to go. Exhaustiveness over tag
// sets would need a type system, which this runtime does not have.
func checkArmCoverage(construct string, label string, arms []tree.Arm) error {
	if len(arms) == 0 {
		return buildErrorf(ErrCodeUnmatchedPattern, site(construct, label),
			"%s has no arms", construct)
	}
	for _, arm := range arms {
		if tree.Irrefutable(arm.Pattern) {
			return nil
		}
	}
	return buildErrorf(ErrCodeUnmatchedPattern, site(construct, label),
		"%s needs a wildcard or binding arm; its patterns cannot be proven to cover every value", construct)
}
