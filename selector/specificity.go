package selector

import "fmt"

// Specificity is selector precedence as [ids, classes/attributes/pseudo
// classes, tags]. Counts are not capped.
type Specificity [3]int

// Of computes specificity of compiled selector.
func Of(m Matcher) Specificity {
	var s Specificity
	m.AddSpecificityTo(&s)
	return s
}

// Value folds specificity into single sortable number.
func (s Specificity) Value() int {
	return s[0]*1_000_000 + s[1]*1_000 + s[2]
}

func (s Specificity) String() string {
	return fmt.Sprintf("%d,%d,%d", s[0], s[1], s[2])
}
