package framegraph

import (
	"strings"

	"github.com/gogpu/framegraph/gpucore"
)

// labelNode is one element of a debug label path. Nodes are shared: passes
// created inside the same group point at the same parent node, so the
// longest common prefix of two paths is found by pointer identity.
type labelNode struct {
	parent *labelNode
	name   string
	depth  int
}

func newLabelNode(parent *labelNode, name string) *labelNode {
	n := &labelNode{parent: parent, name: name, depth: 1}
	if parent != nil {
		n.depth = parent.depth + 1
	}
	return n
}

// Path returns the node names from the root joined by '/'.
func (n *labelNode) Path() string {
	if n == nil {
		return ""
	}
	names := make([]string, n.depth)
	for i := n; i != nil; i = i.parent {
		names[i.depth-1] = i.name
	}
	return strings.Join(names, "/")
}

func (n *labelNode) depthOf() int {
	if n == nil {
		return 0
	}
	return n.depth
}

// labelStack is the stack of open pass groups while a graph is built.
type labelStack struct {
	top *labelNode
}

func (s *labelStack) push(name string) {
	s.top = newLabelNode(s.top, name)
}

func (s *labelStack) pop() bool {
	if s.top == nil {
		return false
	}
	s.top = s.top.parent
	return true
}

// transferLabels moves the open debug events of cb from path from to path
// to. Only the suffix of from that is not shared with to is closed, and only
// the suffix of to that is not shared with from is opened.
func transferLabels(cb gpucore.CommandBuffer, from, to *labelNode) {
	var push []*labelNode
	a, b := from, to
	for a.depthOf() > b.depthOf() {
		cb.EndDebugEvent()
		a = a.parent
	}
	for b.depthOf() > a.depthOf() {
		push = append(push, b)
		b = b.parent
	}
	for a != b {
		cb.EndDebugEvent()
		push = append(push, b)
		a, b = a.parent, b.parent
	}
	for i := len(push) - 1; i >= 0; i-- {
		cb.BeginDebugEvent(push[i].name)
	}
}
