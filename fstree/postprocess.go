package fstree

import "fmt"

// PostProcess runs the five-step finalization spec.md §4.G requires
// before a tree can be serialized: hard-link resolution, depth-first
// inode numbering, inode-pointer allocation, forward-reference reordering,
// and flat file-list construction. It must be called exactly once.
func (t *Fstree) PostProcess() error {
	if t.processed {
		return fmt.Errorf("fstree: PostProcess already ran")
	}

	if err := t.resolveHardLinks(); err != nil {
		return err
	}

	order := t.depthFirstOrder()
	t.numberInodes(order)
	t.reorderForward(order)

	t.nodes = order

	t.files = t.buildFileList()
	t.processed = true
	return nil
}

// Nodes returns every distinct-inode node (directories, regular files,
// symlinks, devices, fifos, sockets — hard links excluded, since they
// share their target's inode) in children-before-parent depth-first
// order: the dependency order the writer needs, since a directory's
// on-disk entry list references each child's already-assigned inode-table
// position. Each node's InodeNumber is its 1-based position in this
// order; reorderForward may move a hard link's target ahead of the
// directory that holds the link.
func (t *Fstree) Nodes() []*Node { return t.nodes }

// resolveHardLinks follows each pending hard link's LinkTarget (a tree
// path) up to MaxLinkHops times, failing on cycles or directory targets,
// and wires HardLinkTo/NLink on success.
func (t *Fstree) resolveHardLinks() error {
	for _, link := range t.pendingLinks {
		target, err := t.resolveOne(link)
		if err != nil {
			return err
		}
		link.HardLinkTo = target
		target.NLink++
	}
	return nil
}

func (t *Fstree) resolveOne(link *Node) (*Node, error) {
	seen := make(map[*Node]bool)
	cur := link
	for hops := 0; hops < t.MaxLinkHops; hops++ {
		next := t.lookup(cur.LinkTarget)
		if next == nil {
			return nil, fmt.Errorf("fstree: hard link %q: target %q not found", cur.Name, cur.LinkTarget)
		}
		if next.IsDir() {
			return nil, fmt.Errorf("fstree: hard link %q: target %q is a directory", cur.Name, cur.LinkTarget)
		}
		if seen[next] {
			return nil, fmt.Errorf("fstree: hard link %q: cycle detected", cur.Name)
		}
		seen[next] = true
		if next.Flags&HardLink == 0 {
			return next, nil
		}
		cur = next
	}
	return nil, fmt.Errorf("fstree: hard link %q: exceeded %d hops", link.Name, t.MaxLinkHops)
}

// lookup finds a node by absolute tree path.
func (t *Fstree) lookup(p string) *Node {
	if p == "" || p == "/" {
		return t.Root
	}
	parts := splitPath(p)
	cur := t.Root
	for _, part := range parts {
		cur = cur.child(part)
		if cur == nil {
			return nil
		}
	}
	return cur
}

func splitPath(p string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			if i > start {
				parts = append(parts, p[start:i])
			}
			start = i + 1
		}
	}
	if start < len(p) {
		parts = append(parts, p[start:])
	}
	return parts
}

// depthFirstOrder walks the tree children-before-parent, skipping
// resolved hard links (they share their target's inode number), and
// returns nodes in allocation order.
func (t *Fstree) depthFirstOrder() []*Node {
	var order []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, name := range n.sortedChildNames() {
			child := n.Children[name]
			if child.IsDir() {
				walk(child)
			} else if child.HardLinkTo == nil {
				order = append(order, child)
			}
		}
		order = append(order, n)
	}
	walk(t.Root)
	return order
}

func (t *Fstree) numberInodes(order []*Node) {
	for i, n := range order {
		n.InodeNumber = uint32(i + 1)
	}
}

// reorderForward renumbers inodes so that every hard link's target
// precedes it, guaranteeing the export table's inode_number -> inode_ref
// entries only ever point at already-written inodes (spec.md §4.G step 4,
// §3 "export table"). order is the depth-first allocation order from
// depthFirstOrder, already carrying each node's current InodeNumber.
//
// A resolved link has no inode of its own, so its position is that of
// the directory holding it. When the target numbers higher than that
// directory, the target moves into the directory's slot, the directory
// and every node between shift up by one, and the affected range is
// renumbered so InodeNumber stays the dense 1-based position in order.
func (t *Fstree) reorderForward(order []*Node) {
	for _, link := range t.pendingLinks {
		target := link.HardLinkTo
		low, high := link.Parent.InodeNumber, target.InodeNumber
		if high <= low {
			continue // already forward-safe
		}
		copy(order[low:high], order[low-1:high-1])
		order[low-1] = target
		for i := low - 1; i < high; i++ {
			order[i].InodeNumber = uint32(i + 1)
		}
	}
}

// buildFileList returns every regular-file node in depth-first order.
// Resolved hard links are not included: they keep their symlink-shaped
// Mode, so IsRegular is false for them.
func (t *Fstree) buildFileList() []*Node {
	var files []*Node
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, name := range n.sortedChildNames() {
			child := n.Children[name]
			if child.IsDir() {
				walk(child)
			} else if child.IsRegular() {
				files = append(files, child)
			}
		}
	}
	walk(t.Root)
	return files
}

// Files returns the flat depth-first regular-file list built by
// PostProcess.
func (t *Fstree) Files() []*Node { return t.files }

// Processed reports whether PostProcess has already run.
func (t *Fstree) Processed() bool { return t.processed }
