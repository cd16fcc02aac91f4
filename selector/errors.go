package selector

import "fmt"

// SyntaxError reports selector text which cannot be compiled.
type SyntaxError struct {
	Selector string // complete selector being compiled
	Fragment string // offending part of it
	Reason   string
}

func (e *SyntaxError) Error() string {
	if e.Fragment == "" || e.Fragment == e.Selector {
		return fmt.Sprintf("invalid selector %q: %s", e.Selector, e.Reason)
	}
	return fmt.Sprintf("invalid selector %q: %s: %q", e.Selector, e.Reason, e.Fragment)
}
