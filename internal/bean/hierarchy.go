package bean

import (
	"fmt"
	"strings"
)

// allowedParents maps a child type to the types it may be nested under.
var allowedParents = map[Type][]Type{
	TypeMilestone: nil,
	TypeEpic:      {TypeMilestone},
	TypeFeature:   {TypeMilestone, TypeEpic},
	TypeBug:       {TypeMilestone, TypeEpic, TypeFeature},
	TypeTask:      {TypeMilestone, TypeEpic, TypeFeature},
}

// AllowedParents returns the parent types permitted for child.
func AllowedParents(child Type) []Type {
	return append([]Type(nil), allowedParents[child]...)
}

// CanParent reports whether a bean of type parent may contain a bean of type child.
func CanParent(child, parent Type) bool {
	for _, t := range allowedParents[child] {
		if t == parent {
			return true
		}
	}
	return false
}

// ParseStatus validates a user-supplied status string.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("unknown status %q (want one of %s)", s, joinValues(statusOrder))
	}
	return st, nil
}

// ParseType validates a user-supplied type string.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("unknown type %q (want one of %s)", s, joinValues(typeOrder))
	}
	return t, nil
}

// ParsePriority validates a user-supplied priority string.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("unknown priority %q (want one of %s)", s, joinValues(priorityOrder))
	}
	return p, nil
}

func joinValues[T ~string](vals []T) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

// JoinTypes renders a type list for messages, e.g. "milestone, epic".
func JoinTypes(types []Type) string {
	return joinValues(types)
}
