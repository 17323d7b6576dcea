package ir

// Action classifies a planned change for one resource.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionNoop   Action = "NOOP"
)

// Plan represents a calculated execution plan.
type Plan struct {
	Metadata *PlanMetadata
	Changes  []*ResourceChange
	Summary  *PlanSummary
	Outputs  map[string]any
}

type PlanMetadata struct {
	Timestamp  string
	Stack      string
	Parameters map[string]string
}

type ResourceChange struct {
	Address string // logical name
	Action  Action
	Desired *Resource
	Prior   *Resource
	Diff    map[string]*PropertyDiff
}

type PropertyDiff struct {
	Before any
	After  any
	Action Action
}

type PlanSummary struct {
	Create int
	Update int
	Delete int
	NoOp   int
}

// Empty reports whether the plan contains no changes.
func (p *Plan) Empty() bool {
	return len(p.Changes) == 0
}
