package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cumulus-iac/cumulus/internal/ir"
)

// CycleError reports a non-acyclic reference graph. Members names every
// resource on at least one detected cycle.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Members, " -> "))
}

// DAG is the directed acyclic graph of resources used for ordering.
type DAG struct {
	nodes    map[string]*dagNode
	order    []string // topological order (creation order)
	revOrder []string // reverse topological order (destruction order)
}

type dagNode struct {
	name       string
	index      int // declaration order, used for deterministic ties
	deps       []string
	dependents []string
}

// BuildDAG constructs a dependency graph from desired resources. Edges
// come from explicit dependsOn entries and implicit ref:// references in
// property trees.
func BuildDAG(resources []*ir.Resource) (*DAG, error) {
	dag := &DAG{nodes: make(map[string]*dagNode, len(resources))}

	for i, res := range resources {
		dag.nodes[res.Name] = &dagNode{name: res.Name, index: i}
	}

	for _, res := range resources {
		node := dag.nodes[res.Name]
		for _, dep := range ResourceDeps(res) {
			if _, ok := dag.nodes[dep]; ok {
				node.addDep(dep)
			}
		}
	}
	dag.linkDependents()

	if err := dag.sort(); err != nil {
		return nil, err
	}
	return dag, nil
}

// BuildDAGFromState constructs the graph from recorded state
// dependencies, used to order destroys of resources no longer in the
// template.
func BuildDAGFromState(resources []*ir.ResourceState) (*DAG, error) {
	dag := &DAG{nodes: make(map[string]*dagNode, len(resources))}

	for i, res := range resources {
		dag.nodes[res.Name] = &dagNode{name: res.Name, index: i}
	}
	for _, res := range resources {
		node := dag.nodes[res.Name]
		for _, dep := range res.Dependencies {
			if _, ok := dag.nodes[dep]; ok {
				node.addDep(dep)
			}
		}
	}
	dag.linkDependents()

	if err := dag.sort(); err != nil {
		return nil, err
	}
	return dag, nil
}

// ResourceDeps returns the union of a resource's explicit and implicit
// dependencies, deduplicated.
func ResourceDeps(res *ir.Resource) []string {
	seen := make(map[string]bool)
	var deps []string
	add := func(name string) {
		if name != "" && name != res.Name && !seen[name] {
			seen[name] = true
			deps = append(deps, name)
		}
	}
	for _, dep := range res.DependsOn {
		add(dep)
	}
	for _, ref := range ir.ExtractRefs(res.Properties) {
		if name, _, ok := ir.ParseRef(ref); ok {
			add(name)
		}
	}
	return deps
}

// CreationOrder returns resources in dependency-respecting creation order.
func (d *DAG) CreationOrder() []string {
	return d.order
}

// DestructionOrder returns resources in reverse dependency order, safe
// for deletion: dependents come before their dependencies.
func (d *DAG) DestructionOrder() []string {
	return d.revOrder
}

// Dependencies returns the direct dependencies of a resource.
func (d *DAG) Dependencies(name string) []string {
	if node, ok := d.nodes[name]; ok {
		return node.deps
	}
	return nil
}

// Dependents returns the resources that directly depend on name.
func (d *DAG) Dependents(name string) []string {
	if node, ok := d.nodes[name]; ok {
		return node.dependents
	}
	return nil
}

func (n *dagNode) addDep(dep string) {
	for _, existing := range n.deps {
		if existing == dep {
			return
		}
	}
	n.deps = append(n.deps, dep)
}

func (d *DAG) linkDependents() {
	for name, node := range d.nodes {
		for _, dep := range node.deps {
			d.nodes[dep].dependents = append(d.nodes[dep].dependents, name)
		}
	}
}

// sort runs Kahn's algorithm. The ready set is drained in declaration
// order so the result is deterministic for a given template.
func (d *DAG) sort() error {
	inDegree := make(map[string]int, len(d.nodes))
	for name, node := range d.nodes {
		inDegree[name] = len(node.deps)
	}

	var ready []*dagNode
	for _, node := range d.nodes {
		if inDegree[node.name] == 0 {
			ready = append(ready, node)
		}
	}
	sortByIndex(ready)

	var sorted []string
	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		sorted = append(sorted, node.name)

		var unlocked []*dagNode
		for _, dep := range node.dependents {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				unlocked = append(unlocked, d.nodes[dep])
			}
		}
		sortByIndex(unlocked)
		ready = merge(ready, unlocked)
	}

	if len(sorted) != len(d.nodes) {
		return &CycleError{Members: d.findCycle(inDegree)}
	}

	d.order = sorted
	d.revOrder = make([]string, len(sorted))
	for i, name := range sorted {
		d.revOrder[len(sorted)-1-i] = name
	}
	return nil
}

func sortByIndex(nodes []*dagNode) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].index < nodes[j].index })
}

func merge(a, b []*dagNode) []*dagNode {
	out := append(a, b...)
	sortByIndex(out)
	return out
}

// findCycle walks the unsortable remainder of the graph and returns the
// members of one cycle.
func (d *DAG) findCycle(inDegree map[string]int) []string {
	remaining := make(map[string]bool)
	for name, deg := range inDegree {
		if deg > 0 {
			remaining[name] = true
		}
	}

	// Pick a deterministic starting point.
	var start string
	startIdx := -1
	for name := range remaining {
		if idx := d.nodes[name].index; startIdx < 0 || idx < startIdx {
			start, startIdx = name, idx
		}
	}
	if start == "" {
		return nil
	}

	// Follow dependency edges within the remainder until a node repeats;
	// the walk from the first repeat is a cycle.
	visitedAt := map[string]int{}
	var path []string
	current := start
	for {
		if pos, seen := visitedAt[current]; seen {
			return path[pos:]
		}
		visitedAt[current] = len(path)
		path = append(path, current)

		next := ""
		for _, dep := range d.nodes[current].deps {
			if remaining[dep] {
				next = dep
				break
			}
		}
		if next == "" {
			return path
		}
		current = next
	}
}
