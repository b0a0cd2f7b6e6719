// Package validate implements the Graph Validator: acyclicity,
// reachability, single-entry, and terminal-node-is-an-Action checks that
// gate every workflow before it is handed to the Scheduler.
//
// Cycle detection uses iterative DFS with an explicit stack (no
// recursion limit concerns); reachability uses BFS from the single
// entry. Validation fails closed: any single violation prevents enqueue.
package validate

import (
	"sort"

	"github.com/flowruntime/engine/workflow"
)

// Registry resolves a BlockType to the Schema used for CONFIG_INVALID /
// MISSING_CONFIG checks. workflow/handler.Registry satisfies this.
type Registry interface {
	Schema(blockType workflow.BlockType) (workflow.Schema, bool)
}

// Validate checks a workflow against every graph invariant and returns
// the tagged violations found. A nil/empty slice means the workflow is
// valid.
func Validate(wf workflow.Workflow, reg Registry) []workflow.Violation {
	var violations []workflow.Violation

	if len(wf.Nodes) == 0 {
		return []workflow.Violation{{Kind: workflow.ViolationEmpty}}
	}

	nodeIDs := make(map[string]bool, len(wf.Nodes))
	for _, n := range wf.Nodes {
		nodeIDs[n.ID] = true
	}

	// UNKNOWN_REFERENCE: edge endpoints must reference existing nodes.
	for _, e := range wf.Edges {
		if !nodeIDs[e.Source] {
			violations = append(violations, workflow.Violation{Kind: workflow.ViolationUnknownReference, EdgeID: e.ID, Endpoint: e.Source})
		}
		if !nodeIDs[e.Target] {
			violations = append(violations, workflow.Violation{Kind: workflow.ViolationUnknownReference, EdgeID: e.ID, Endpoint: e.Target})
		}
	}
	if len(violations) > 0 {
		// Downstream graph algorithms assume every edge endpoint resolves;
		// stop here rather than producing misleading cycle/reachability noise.
		return violations
	}

	inDegree := make(map[string]int, len(wf.Nodes))
	outDegree := make(map[string]int, len(wf.Nodes))
	adjacency := make(map[string][]string, len(wf.Nodes))
	for _, n := range wf.Nodes {
		inDegree[n.ID] = 0
		outDegree[n.ID] = 0
	}
	for _, e := range wf.Edges {
		inDegree[e.Target]++
		outDegree[e.Source]++
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	// Single entry (in-degree zero).
	var entries []string
	for _, n := range wf.Nodes {
		if inDegree[n.ID] == 0 {
			entries = append(entries, n.ID)
		}
	}
	sort.Strings(entries)
	switch len(entries) {
	case 0:
		violations = append(violations, workflow.Violation{Kind: workflow.ViolationNoEntry})
	case 1:
		// ok
	default:
		violations = append(violations, workflow.Violation{Kind: workflow.ViolationMultipleEntries, NodeIDs: entries})
	}

	// Cycle detection: iterative DFS with an explicit stack and a
	// three-color scheme (white/gray/black) to find a back edge.
	if cycleNode, ok := findCycle(wf, adjacency); ok {
		violations = append(violations, workflow.Violation{Kind: workflow.ViolationCycle, NodeID: cycleNode})
	}

	// Reachability from the single entry, via BFS. Skipped if there isn't
	// exactly one entry — ORPHAN would be redundant noise on top of
	// NO_ENTRY/MULTIPLE_ENTRIES.
	if len(entries) == 1 {
		reached := bfsReachable(entries[0], adjacency)
		var orphanIDs []string
		for _, n := range wf.Nodes {
			if !reached[n.ID] {
				orphanIDs = append(orphanIDs, n.ID)
			}
		}
		sort.Strings(orphanIDs)
		for _, id := range orphanIDs {
			violations = append(violations, workflow.Violation{Kind: workflow.ViolationOrphan, NodeID: id})
		}
	}

	// Terminal nodes (out-degree zero) must be in the Action set.
	for _, n := range wf.Nodes {
		if outDegree[n.ID] == 0 && !workflow.ActionSet[n.BlockType] {
			violations = append(violations, workflow.Violation{Kind: workflow.ViolationTerminalNotAction, NodeID: n.ID})
		}
	}

	// Per-node config schema validation.
	if reg != nil {
		for _, n := range wf.Nodes {
			violations = append(violations, validateNodeConfig(n, reg)...)
		}
	}

	return violations
}

// findCycle runs iterative DFS over adjacency, returning a node known to
// lie on a cycle if one exists.
func findCycle(wf workflow.Workflow, adjacency map[string][]string) (string, bool) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(wf.Nodes))
	for _, n := range wf.Nodes {
		color[n.ID] = white
	}

	// Deterministic start order.
	ids := make([]string, len(wf.Nodes))
	for i, n := range wf.Nodes {
		ids[i] = n.ID
	}
	sort.Strings(ids)

	type frame struct {
		node string
		idx  int
	}

	for _, start := range ids {
		if color[start] != white {
			continue
		}
		stack := []frame{{start, 0}}
		color[start] = gray
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			children := adjacency[top.node]
			if top.idx < len(children) {
				child := children[top.idx]
				top.idx++
				switch color[child] {
				case white:
					color[child] = gray
					stack = append(stack, frame{child, 0})
				case gray:
					return child, true
				case black:
					// already fully explored, no cycle through here
				}
			} else {
				color[top.node] = black
				stack = stack[:len(stack)-1]
			}
		}
	}
	return "", false
}

// bfsReachable returns the set of node ids reachable from start.
func bfsReachable(start string, adjacency map[string][]string) map[string]bool {
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[cur] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return visited
}

// validateNodeConfig checks a node's Config against its BlockType's
// Schema.Inputs for required-field presence and declared type. Unresolved
// template expressions (`{{...}}`) are accepted for any field kind since
// they resolve only at execution time.
func validateNodeConfig(n workflow.Node, reg Registry) []workflow.Violation {
	schema, ok := reg.Schema(n.BlockType)
	if !ok {
		return nil
	}
	var violations []workflow.Violation
	for _, field := range schema.Inputs {
		value, present := n.Config[field.Name]
		if !present {
			if field.Required {
				violations = append(violations, workflow.Violation{Kind: workflow.ViolationMissingConfig, NodeID: n.ID, Field: field.Name})
			}
			continue
		}
		if reason, bad := checkKind(value, field.Kind); bad {
			violations = append(violations, workflow.Violation{Kind: workflow.ViolationConfigInvalid, NodeID: n.ID, Field: field.Name, Reason: reason})
		}
	}
	return violations
}

// checkKind reports whether value satisfies kind, treating template
// strings ("{{...}}" anywhere within a string) as always valid since their
// resolved type isn't known until render time.
func checkKind(value any, kind workflow.FieldKind) (reason string, bad bool) {
	if kind == workflow.KindAny {
		return "", false
	}
	if s, ok := value.(string); ok && containsTemplate(s) {
		return "", false
	}
	switch kind {
	case workflow.KindNumber:
		switch value.(type) {
		case int, int32, int64, float32, float64:
			return "", false
		}
		return "expected number", true
	case workflow.KindString:
		if _, ok := value.(string); ok {
			return "", false
		}
		return "expected string", true
	case workflow.KindBoolean:
		if _, ok := value.(bool); ok {
			return "", false
		}
		return "expected boolean", true
	case workflow.KindObject:
		if _, ok := value.(map[string]any); ok {
			return "", false
		}
		return "expected object", true
	case workflow.KindArray:
		if _, ok := value.([]any); ok {
			return "", false
		}
		return "expected array", true
	default:
		return "", false
	}
}

func containsTemplate(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '{' && s[i+1] == '{' {
			return true
		}
	}
	return false
}

// TopologicalOrder returns a deterministic linear extension of wf (Kahn's
// algorithm, ties broken by ascending node id). Callers
// should only invoke this on a workflow that Validate has already
// accepted; a cyclic workflow returns a partial order and false.
func TopologicalOrder(wf workflow.Workflow) ([]string, bool) {
	inDegree := make(map[string]int, len(wf.Nodes))
	adjacency := make(map[string][]string, len(wf.Nodes))
	for _, n := range wf.Nodes {
		inDegree[n.ID] = 0
	}
	for _, e := range wf.Edges {
		inDegree[e.Target]++
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	var ready []string
	for _, n := range wf.Nodes {
		if inDegree[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		// Pop the smallest id, keep the remainder sorted.
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)

		var justReady []string
		for _, next := range adjacency[cur] {
			inDegree[next]--
			if inDegree[next] == 0 {
				justReady = append(justReady, next)
			}
		}
		sort.Strings(justReady)
		ready = mergeSorted(ready, justReady)
	}

	return order, len(order) == len(wf.Nodes)
}

// mergeSorted merges two already-sorted string slices.
func mergeSorted(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
