package ir

// Template is the parsed, validated form of a stack template document.
// Declaration order of resources is preserved; the resolver uses it to
// break ordering ties deterministically.
type Template struct {
	Parameters []*Parameter
	Conditions map[string]*Condition
	Resources  []*Resource
	Outputs    []*Output
	Providers  map[string]map[string]string // provider name -> settings
}

// Parameter declares a plan-time input. Values come from --param flags or
// the declared default.
type Parameter struct {
	Name          string `validate:"required"`
	Type          string `validate:"omitempty,oneof=string number boolean"`
	Default       any
	AllowedValues []string
	Description   string
}

// Condition is a boolean expression over resolved parameter values.
// Exactly one field is set per node.
type Condition struct {
	Equals []any        // two operands, compared after substitution
	And    []*Condition `validate:"omitempty,min=2"`
	Or     []*Condition `validate:"omitempty,min=2"`
	Not    *Condition
}

// Output is a named value exposed to the caller after apply. Its value
// tree may contain ref:// and param:// tokens.
type Output struct {
	Name        string `validate:"required"`
	Value       any
	Condition   string
	Description string
}
