package fault

import (
	"sort"
	"strings"
)

// Set is an immutable set of kinds. The zero value is empty.
type Set struct {
	kinds map[Kind]struct{}
}

// NewSet returns a set holding kinds. KindNone is ignored.
func NewSet(kinds ...Kind) Set {
	m := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		if k == KindNone {
			continue
		}
		m[k] = struct{}{}
	}
	return Set{kinds: m}
}

func (s Set) Contains(k Kind) bool {
	_, ok := s.kinds[k]
	return ok
}

func (s Set) Len() int { return len(s.kinds) }

// Kinds returns the members in declaration order.
func (s Set) Kinds() []Kind {
	out := make([]Kind, 0, len(s.kinds))
	for k := range s.kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// With returns a new set holding the members of s plus kinds.
func (s Set) With(kinds ...Kind) Set {
	return NewSet(append(s.Kinds(), kinds...)...)
}

func (s Set) String() string {
	names := make([]string, 0, len(s.kinds))
	for _, k := range s.Kinds() {
		names = append(names, k.String())
	}
	return "[" + strings.Join(names, " ") + "]"
}
