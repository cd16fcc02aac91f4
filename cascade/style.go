package cascade

import (
	"strings"

	"cssapply/css"
)

type styleEntry struct {
	value     string
	important bool
}

// Style is computed property set of a single node. Properties keep the order
// they were first set in.
type Style struct {
	order   []string
	entries map[string]*styleEntry
}

// NewStyle creates empty style.
func NewStyle() *Style {
	return &Style{entries: make(map[string]*styleEntry)}
}

// Merge adds declaration. Existing value is replaced unless it is important
// and the new one is not.
func (s *Style) Merge(d css.Declaration) {
	e, ok := s.entries[d.Property]
	if !ok {
		s.entries[d.Property] = &styleEntry{value: d.Value, important: d.Important}
		s.order = append(s.order, d.Property)
		return
	}
	if !e.important || d.Important {
		e.value = d.Value
		e.important = d.Important
	}
}

// Set replaces value of existing property keeping its importance, or adds
// new normal property.
func (s *Style) Set(property, value string) {
	if e, ok := s.entries[property]; ok {
		e.value = value
		return
	}
	s.Merge(css.Declaration{Property: property, Value: value})
}

// Get returns current property value.
func (s *Style) Get(property string) (string, bool) {
	if e, ok := s.entries[property]; ok {
		return e.value, true
	}
	return "", false
}

// Len returns number of properties.
func (s *Style) Len() int {
	return len(s.order)
}

// String serializes style as "property:value" pairs joined by ';'.
func (s *Style) String() string {
	var sb strings.Builder
	for i, p := range s.order {
		if i > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(p)
		sb.WriteByte(':')
		sb.WriteString(s.entries[p].value)
	}
	return sb.String()
}
