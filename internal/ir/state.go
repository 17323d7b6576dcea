package ir

// State represents the persisted stack state: every resource that
// currently exists in the target environment, keyed by logical name.
type State struct {
	Version   int              `json:"version"`
	Serial    int              `json:"serial"`
	Lineage   string           `json:"lineage"`
	Stack     string           `json:"stack,omitempty"`
	Resources []*ResourceState `json:"resources"`
	Outputs   map[string]any   `json:"outputs,omitempty"`
}

// ResourceState records the last-applied form of one resource.
type ResourceState struct {
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	Provider     string         `json:"provider"`
	ID           string         `json:"id,omitempty"` // physical identifier
	Inputs       map[string]any `json:"inputs,omitempty"`
	Outputs      map[string]any `json:"outputs,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Protected    bool           `json:"protected,omitempty"` // preventDestroy at last apply
}

// Resource returns the state entry for a logical name, or nil.
func (s *State) Resource(name string) *ResourceState {
	for _, r := range s.Resources {
		if r.Name == name {
			return r
		}
	}
	return nil
}
