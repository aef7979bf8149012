package registry

import (
	"fmt"

	"Testbed/api"
)

// Registry maps node names to live nodes, in creation order. It is the source
// of truth for teardown: a node is present if and only if its backing
// resource may still exist.
//
// Mutators run on a single goroutine, so there is no locking.
type Registry struct {
	nodes map[string]*api.Node
	order []string
}

func New() *Registry {
	return &Registry{nodes: make(map[string]*api.Node)}
}

// Register adds n. A name can be registered at most once.
func (r *Registry) Register(n *api.Node) error {
	if _, existed := r.nodes[n.Name]; existed {
		return fmt.Errorf("node %s already registered", n.Name)
	}
	r.nodes[n.Name] = n
	r.order = append(r.order, n.Name)
	return nil
}

func (r *Registry) Get(name string) (*api.Node, bool) {
	n, ok := r.nodes[name]
	return n, ok
}

// Remove drops name from the registry. Removing an absent name is a no-op.
func (r *Registry) Remove(name string) {
	if _, existed := r.nodes[name]; !existed {
		return
	}
	delete(r.nodes, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Nodes returns a snapshot of the registered nodes in creation order. The
// snapshot stays valid while entries are removed.
func (r *Registry) Nodes() []*api.Node {
	out := make([]*api.Node, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.nodes[name])
	}
	return out
}

// ByRole returns the registered nodes of one role in creation order.
func (r *Registry) ByRole(role api.Role) []*api.Node {
	var out []*api.Node
	for _, name := range r.order {
		if n := r.nodes[name]; n.Role == role {
			out = append(out, n)
		}
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.order)
}
