package graft

import "reflect"

// Condition restricts the call sites a binding applies to. Conditions must
// only read the context.
type Condition func(ctx *InjectContext) bool

// WhenInjectedInto matches when the value is injected into one of targets.
func WhenInjectedInto(targets ...reflect.Type) Condition {
	return func(ctx *InjectContext) bool {
		for _, t := range targets {
			if ctx.TargetType == t {
				return true
			}
		}

		return false
	}
}

// WhenInjectedIntoMember matches a specific member of target.
func WhenInjectedIntoMember(target reflect.Type, member string) Condition {
	return func(ctx *InjectContext) bool {
		return ctx.TargetType == target && ctx.MemberName == member
	}
}

// WhenInjectedIntoInstance matches when injecting into exactly instance.
func WhenInjectedIntoInstance(instance any) Condition {
	return func(ctx *InjectContext) bool {
		return sameValue(ctx.TargetInstance, instance)
	}
}

// WhenMember matches by member name regardless of target.
func WhenMember(member string) Condition {
	return func(ctx *InjectContext) bool {
		return ctx.MemberName == member
	}
}

// WhenIdentifier matches by requested identifier.
func WhenIdentifier(id any) Condition {
	return func(ctx *InjectContext) bool {
		return sameValue(ctx.Identifier, id)
	}
}

// WhenAncestor matches when t is anywhere in the construction path.
func WhenAncestor(t reflect.Type) Condition {
	return func(ctx *InjectContext) bool {
		for _, a := range ctx.AncestorTypes() {
			if a == t {
				return true
			}
		}

		return false
	}
}

// And combines conditions; nil entries are ignored.
func And(conds ...Condition) Condition {
	var live []Condition

	for _, c := range conds {
		if c != nil {
			live = append(live, c)
		}
	}

	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}

	return func(ctx *InjectContext) bool {
		for _, c := range live {
			if !c(ctx) {
				return false
			}
		}

		return true
	}
}

// Or matches when any of conds matches.
func Or(conds ...Condition) Condition {
	return func(ctx *InjectContext) bool {
		for _, c := range conds {
			if c != nil && c(ctx) {
				return true
			}
		}

		return false
	}
}

// Not negates a condition.
func Not(cond Condition) Condition {
	return func(ctx *InjectContext) bool {
		return !cond(ctx)
	}
}

// sameValue compares two values by identity without panicking on
// uncomparable dynamic types.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}

	return a == b
}
