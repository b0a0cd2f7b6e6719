// Package workflow defines the graph data model shared by every execution
// subsystem component: the block-type schema registry, nodes, edges, and
// the workflow that wires them together.
//
// A Workflow is authored externally (a UI, an API client) and handed to
// the engine as data. Routing is edge-driven and schema-checked before a
// single node runs: blocks are a closed enumeration with per-type
// input/output schemas, not arbitrary user code choosing its own
// successor.
package workflow

import "fmt"

// BlockType is the closed enumeration of node kinds a Workflow may use.
type BlockType string

// Recognized block types. UNKNOWN is never authored; it is the type the
// Handler Registry resolves to when a node's declared BlockType isn't
// recognized.
const (
	BlockHTTP                  BlockType = "HTTP"
	BlockEmail                 BlockType = "EMAIL"
	BlockDatabase              BlockType = "DATABASE"
	BlockWebhook               BlockType = "WEBHOOK"
	BlockNotification          BlockType = "NOTIFICATION"
	BlockDiscord               BlockType = "DISCORD"
	BlockSchedule              BlockType = "SCHEDULE"
	BlockDelay                 BlockType = "DELAY"
	BlockCondition             BlockType = "CONDITION"
	BlockTransform             BlockType = "TRANSFORM"
	BlockLLMPrompt             BlockType = "LLM_PROMPT"
	BlockPriceMonitor          BlockType = "PRICE_MONITOR"
	BlockBlockchainRead        BlockType = "BLOCKCHAIN_READ"
	BlockBlockchainTransaction BlockType = "BLOCKCHAIN_TRANSACTION"
	BlockCalculator            BlockType = "CALCULATOR"
	BlockCustom                BlockType = "CUSTOM"
	BlockUnknown               BlockType = "UNKNOWN"
)

// ActionSet is the set of block types permitted as terminal (out-degree
// zero) nodes.
var ActionSet = map[BlockType]bool{
	BlockEmail:                 true,
	BlockNotification:          true,
	BlockDatabase:              true,
	BlockDiscord:               true,
	BlockWebhook:               true,
	BlockBlockchainTransaction: true,
}

// FieldKind is the set of primitive shapes a schema field may declare.
type FieldKind string

const (
	KindNumber  FieldKind = "number"
	KindString  FieldKind = "string"
	KindBoolean FieldKind = "boolean"
	KindObject  FieldKind = "object"
	KindArray   FieldKind = "array"
	KindAny     FieldKind = "any"
)

// Field describes one named, typed slot in a block's input or output
// schema.
type Field struct {
	Name     string
	Kind     FieldKind
	Required bool
}

// Schema declares the recognized input fields and output fields for one
// BlockType. The Node Executor validates
// node input/output against the matching Schema.
type Schema struct {
	Inputs  []Field
	Outputs []Field
}

// InputField looks up a declared field by name within a Schema's input list.
func (s Schema) InputField(name string) (Field, bool) {
	for _, f := range s.Inputs {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// OutputField looks up a declared field by name within a Schema's output
// list.
func (s Schema) OutputField(name string) (Field, bool) {
	for _, f := range s.Outputs {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Node is one typed unit of work in a Workflow graph.
//
// Position is opaque to the engine — it exists purely for a
// graph-authoring UI and is carried through persistence unexamined.
type Node struct {
	ID        string
	BlockType BlockType
	Config    map[string]any
	Position  map[string]any
}

// Edge connects a source node's output handle to a target node's input
// handle. An empty handle means "default."
type Edge struct {
	ID           string
	Source       string
	Target       string
	SourceHandle string
	TargetHandle string
}

// Workflow is a directed graph of Nodes wired by Edges.
//
// Workflow does not enforce its own invariants — that's the Validator's
// job (workflow/validate). A Workflow value may be transiently invalid
// between construction and validation.
type Workflow struct {
	ID       string
	Version  int
	Nodes    []Node
	Edges    []Edge
	Metadata map[string]any
}

// NodeByID returns the node with the given id, or false if absent.
func (w Workflow) NodeByID(id string) (Node, bool) {
	for _, n := range w.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Incoming returns every edge whose Target is nodeID.
func (w Workflow) Incoming(nodeID string) []Edge {
	var out []Edge
	for _, e := range w.Edges {
		if e.Target == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Outgoing returns every edge whose Source is nodeID.
func (w Workflow) Outgoing(nodeID string) []Edge {
	var out []Edge
	for _, e := range w.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// String renders a Node for error messages and log fields.
func (n Node) String() string {
	return fmt.Sprintf("%s(%s)", n.ID, n.BlockType)
}
