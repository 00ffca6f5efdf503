package sync

// Walk visits node and its descendants in pre-order. Returning false from fn
// skips the subtree of the visited node.
func Walk(node *SyncNode, fn func(*SyncNode) bool) {
	if node == nil {
		return
	}
	if !fn(node) {
		return
	}
	for _, child := range node.Children {
		Walk(child, fn)
	}
}

// Flatten returns node and all its descendants in pre-order
func Flatten(node *SyncNode) []*SyncNode {
	var nodes []*SyncNode
	Walk(node, func(n *SyncNode) bool {
		nodes = append(nodes, n)
		return true
	})
	return nodes
}

// FlattenWhere returns descendants of node matching pred. Recursion stops at
// matching nodes and at nodes for which stop returns true.
func FlattenWhere(node *SyncNode, pred func(*SyncNode) bool, stop func(*SyncNode) bool) []*SyncNode {
	var nodes []*SyncNode
	for _, child := range node.Children {
		if pred(child) {
			nodes = append(nodes, child)
			continue
		}
		if stop != nil && stop(child) {
			continue
		}
		nodes = append(nodes, FlattenWhere(child, pred, stop)...)
	}
	return nodes
}

// RelinkParents rebuilds every Parent back-reference below root.
// Parents are never serialized, so loaders call this after decoding.
func RelinkParents(root *SyncNode) {
	if root == nil {
		return
	}
	root.Parent = nil
	var link func(n *SyncNode)
	link = func(n *SyncNode) {
		for _, c := range n.Children {
			c.Parent = n
			link(c)
		}
	}
	link(root)
}

// CloneTree deep copies the tree rooted at node. The copy's root has no parent.
func CloneTree(node *SyncNode) *SyncNode {
	if node == nil {
		return nil
	}
	c := node.cloneShallow()
	for _, child := range node.Children {
		c.AddChild(CloneTree(child))
	}
	return c
}

// FindByID returns the first node below root with the given engine id
func FindByID(root *SyncNode, id string) *SyncNode {
	var found *SyncNode
	Walk(root, func(n *SyncNode) bool {
		if found != nil {
			return false
		}
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// IndexByID maps engine ids to nodes
func IndexByID(root *SyncNode) map[string]*SyncNode {
	index := make(map[string]*SyncNode)
	Walk(root, func(n *SyncNode) bool {
		index[n.ID] = n
		return true
	})
	return index
}

// TopAncestor returns the ancestor of n that is a direct child of the root,
// or n itself when n is the root or a direct child of it.
func TopAncestor(n *SyncNode) *SyncNode {
	cur := n
	for cur.Parent != nil && cur.Parent.Parent != nil {
		cur = cur.Parent
	}
	return cur
}

// Depth is the number of edges between n and its root
func Depth(n *SyncNode) int {
	d := 0
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		d++
	}
	return d
}
