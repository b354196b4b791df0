package engine

import "fmt"

// Site records where in the program a node was constructed. It exists for
// diagnostics only; nothing in the engine branches on it.
type Site struct {
	// Construct names the construct kind, e.g. "LATEST", "THEN", "link".
	Construct string

	// Label carries the nearest source-level name: a binding, function, or
	// program name. May be empty.
	Label string
}

// String renders the site for logs and error messages.
func (s Site) String() string {
	if s.Label == "" {
		return s.Construct
	}
	return fmt.Sprintf("%s %q", s.Construct, s.Label)
}

func site(construct, label string) Site {
	return Site{Construct: construct, Label: label}
}
