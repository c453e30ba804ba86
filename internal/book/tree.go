package book

// TocNode is a TOC entry with its children, rebuilt from depths.
type TocNode struct {
	Entry    TocEntry
	Children []*TocNode
}

// Tree rebuilds the TOC hierarchy. The parent of an entry is the nearest
// preceding entry with a lower depth.
func (b *Book) Tree() []*TocNode {
	return BuildTree(b.TOC())
}

// BuildTree rebuilds a hierarchy from a depth-tagged sequence. Entries that
// skip levels are attached to the deepest open ancestor.
func BuildTree(entries []TocEntry) []*TocNode {
	var roots []*TocNode
	var stack []*TocNode
	for _, e := range entries {
		node := &TocNode{Entry: e}
		for len(stack) > 0 && stack[len(stack)-1].Entry.Depth >= e.Depth {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			roots = append(roots, node)
		} else {
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, node)
		}
		stack = append(stack, node)
	}
	return roots
}

// Walk visits nodes depth first, passing each node's nesting level.
func Walk(nodes []*TocNode, fn func(n *TocNode, level int)) {
	var visit func([]*TocNode, int)
	visit = func(ns []*TocNode, level int) {
		for _, n := range ns {
			fn(n, level)
			visit(n.Children, level+1)
		}
	}
	visit(nodes, 0)
}
