package ir

// Config is a template after parameter substitution and condition
// evaluation: the desired resource set the engine plans against.
type Config struct {
	Resources []*Resource
	Outputs   map[string]any
	Providers map[string]map[string]string // resolved provider settings
}
