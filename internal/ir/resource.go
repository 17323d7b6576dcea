package ir

// Resource represents a single managed resource. Name is the logical
// name, unique within a template and stable across applies.
type Resource struct {
	Name       string `validate:"required"`
	Type       string `validate:"required"` // e.g. "aws:S3.Bucket"
	Provider   string
	Condition  string
	DependsOn  []string
	Lifecycle  *Lifecycle
	Timeout    string
	Properties map[string]any
}

type Lifecycle struct {
	PreventDestroy bool
	IgnoreChanges  []string
}
