package chrome

import (
	"strings"

	"github.com/chromedp/cdproto/cdp"
)

// Node is one element of a DOM snapshot returned by GetDocument. A snapshot
// is an immutable point-in-time tree: after a navigation or page mutation the
// caller must fetch a fresh document rather than reuse old nodes.
type Node struct {
	Name          string
	Attributes    map[string]string
	NodeID        cdp.NodeID
	BackendNodeID cdp.BackendNodeID

	Parent   *Node
	Children []*Node

	value    string
	nodeType cdp.NodeType
}

// NodeFromCDP converts a protocol DOM tree into a Node snapshot.
func NodeFromCDP(n *cdp.Node) *Node {
	return nodeFromCDP(n, nil)
}

func nodeFromCDP(n *cdp.Node, parent *Node) *Node {
	node := &Node{
		Name:          strings.ToLower(n.NodeName),
		Attributes:    make(map[string]string, len(n.Attributes)/2),
		NodeID:        n.NodeID,
		BackendNodeID: n.BackendNodeID,
		Parent:        parent,
		value:         n.NodeValue,
		nodeType:      n.NodeType,
	}
	// cdp flattens attributes into name/value pairs.
	for i := 0; i+1 < len(n.Attributes); i += 2 {
		node.Attributes[n.Attributes[i]] = n.Attributes[i+1]
	}
	for _, child := range n.Children {
		node.Children = append(node.Children, nodeFromCDP(child, node))
	}
	return node
}

// Attr returns an attribute value, empty when absent.
func (n *Node) Attr(name string) string {
	return n.Attributes[name]
}

// HasClass reports whether the node's class attribute contains the given
// class as a whole token.
func (n *Node) HasClass(class string) bool {
	for _, c := range strings.Fields(n.Attr("class")) {
		if c == class {
			return true
		}
	}
	return false
}

// Text returns the concatenated text content of the node and its descendants.
func (n *Node) Text() string {
	var sb strings.Builder
	n.collectText(&sb)
	return strings.TrimSpace(sb.String())
}

func (n *Node) collectText(sb *strings.Builder) {
	if n.nodeType == cdp.NodeTypeText {
		sb.WriteString(n.value)
	}
	for _, child := range n.Children {
		child.collectText(sb)
	}
}

// Search walks the subtree depth-first and returns every node the predicate
// accepts, in document order.
func (n *Node) Search(pred func(*Node) bool) []*Node {
	var out []*Node
	n.walk(func(node *Node) bool {
		if pred(node) {
			out = append(out, node)
		}
		return true
	})
	return out
}

// SearchFirst returns the first node the predicate accepts, or nil.
func (n *Node) SearchFirst(pred func(*Node) bool) *Node {
	var found *Node
	n.walk(func(node *Node) bool {
		if pred(node) {
			found = node
			return false
		}
		return true
	})
	return found
}

func (n *Node) walk(visit func(*Node) bool) bool {
	if !visit(n) {
		return false
	}
	for _, child := range n.Children {
		if !child.walk(visit) {
			return false
		}
	}
	return true
}
