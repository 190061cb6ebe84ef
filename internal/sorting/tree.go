package sorting

import (
	"log/slog"

	"github.com/selfagency/beans-vscode-sub002/internal/bean"
	"github.com/selfagency/beans-vscode-sub002/internal/hierarchy"
)

// Node is one bean in a render-ready tree.
type Node struct {
	Bean             bean.Bean `json:"bean"`
	ActiveDescendant bool      `json:"active_descendant,omitempty"`
	Children         []Node    `json:"children,omitempty"`
}

// SortForest orders the roots of f and, in nested mode, every child group
// beneath them. Flat forests produce childless nodes.
func SortForest(f *hierarchy.Forest, mode Mode) []Node {
	if f == nil {
		return nil
	}
	log := slog.Default()
	seen := make(map[string]bool, f.Len())

	var build func(group []bean.Bean) []Node
	build = func(group []bean.Bean) []Node {
		group = sortWith(log, group, mode)
		nodes := make([]Node, 0, len(group))
		for _, b := range group {
			if seen[b.ID] {
				continue
			}
			seen[b.ID] = true
			n := Node{Bean: b, ActiveDescendant: f.HasActiveDescendant(b.ID)}
			if f.Mode() == hierarchy.ModeNested && f.HasChildren(b.ID) {
				n.Children = build(f.ChildrenOf(b.ID))
			}
			nodes = append(nodes, n)
		}
		return nodes
	}
	return build(f.Roots())
}

// Walk calls fn for every node depth first. depth is 0 for roots.
func Walk(nodes []Node, fn func(n Node, depth int)) {
	var visit func([]Node, int)
	visit = func(ns []Node, depth int) {
		for _, n := range ns {
			fn(n, depth)
			visit(n.Children, depth+1)
		}
	}
	visit(nodes, 0)
}
