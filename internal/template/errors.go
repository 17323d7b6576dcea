package template

import "fmt"

// ParseError indicates a malformed template document: invalid YAML, a
// missing required field, or a value of the wrong shape.
type ParseError struct {
	Path string // file path, empty when parsing raw bytes
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse template %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("failed to parse template: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ReferenceError indicates a reference to an undeclared logical name,
// parameter, or condition.
type ReferenceError struct {
	Source string // the resource or output carrying the reference
	Target string // the undeclared name
	Kind   string // "resource", "parameter" or "condition"
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s %q referenced by %q is not declared in the template", e.Kind, e.Target, e.Source)
}
