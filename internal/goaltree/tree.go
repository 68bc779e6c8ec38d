// Package goaltree holds pure transforms over id-addressed trees such as
// nested goals and nested flashcard decks. Every function returns a new
// slice and leaves its input untouched.
package goaltree

// Node is a tree element that can rebuild itself with new children.
type Node[T any] interface {
	NodeID() string
	Children() []T
	WithChildren(children []T) T
}

// Find returns the first node with the given id, searching depth-first.
func Find[T Node[T]](nodes []T, id string) (T, bool) {
	for _, n := range nodes {
		if n.NodeID() == id {
			return n, true
		}
		if found, ok := Find(n.Children(), id); ok {
			return found, true
		}
	}
	var zero T
	return zero, false
}

// Path returns the ids from the root down to (and including) id.
func Path[T Node[T]](nodes []T, id string) ([]string, bool) {
	for _, n := range nodes {
		if n.NodeID() == id {
			return []string{id}, true
		}
		if rest, ok := Path(n.Children(), id); ok {
			return append([]string{n.NodeID()}, rest...), true
		}
	}
	return nil, false
}

// Update replaces the node with the given id by fn(node). It reports
// whether a node was found.
func Update[T Node[T]](nodes []T, id string, fn func(T) T) ([]T, bool) {
	out := make([]T, len(nodes))
	found := false
	for i, n := range nodes {
		if !found && n.NodeID() == id {
			out[i] = fn(n)
			found = true
			continue
		}
		if !found {
			if kids, ok := Update(n.Children(), id, fn); ok {
				out[i] = n.WithChildren(kids)
				found = true
				continue
			}
		}
		out[i] = n
	}
	return out, found
}

// Remove drops the node with the given id together with its subtree.
func Remove[T Node[T]](nodes []T, id string) ([]T, bool) {
	out := make([]T, 0, len(nodes))
	found := false
	for _, n := range nodes {
		if !found && n.NodeID() == id {
			found = true
			continue
		}
		if !found {
			if kids, ok := Remove(n.Children(), id); ok {
				out = append(out, n.WithChildren(kids))
				found = true
				continue
			}
		}
		out = append(out, n)
	}
	return out, found
}

// InsertChild appends child under the node parentID. An empty parentID
// appends at the root.
func InsertChild[T Node[T]](nodes []T, parentID string, child T) ([]T, bool) {
	if parentID == "" {
		out := make([]T, len(nodes), len(nodes)+1)
		copy(out, nodes)
		return append(out, child), true
	}
	return Update(nodes, parentID, func(parent T) T {
		kids := parent.Children()
		next := make([]T, len(kids), len(kids)+1)
		copy(next, kids)
		return parent.WithChildren(append(next, child))
	})
}

// Walk visits every node depth-first, parents before children. depth is 0
// for roots. Returning false from fn stops the walk.
func Walk[T Node[T]](nodes []T, fn func(n T, parentID string, depth int) bool) {
	walk(nodes, "", 0, fn)
}

func walk[T Node[T]](nodes []T, parentID string, depth int, fn func(T, string, int) bool) bool {
	for _, n := range nodes {
		if !fn(n, parentID, depth) {
			return false
		}
		if !walk(n.Children(), n.NodeID(), depth+1, fn) {
			return false
		}
	}
	return true
}

// Count returns the number of nodes in the forest.
func Count[T Node[T]](nodes []T) int {
	total := 0
	Walk(nodes, func(T, string, int) bool {
		total++
		return true
	})
	return total
}
