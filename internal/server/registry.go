package server

import "sort"

// Registry maps an integer identity (user, admin or session id) to the set
// of connection ids currently associated with it. Keys whose set becomes
// empty are pruned. A Registry is owned by the event loop and is not safe
// for concurrent use.
type Registry struct {
	entries map[int]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[int]map[string]struct{})}
}

// Register adds connId under key. It returns false if the pair was
// already registered.
func (r *Registry) Register(key int, connId string) bool {
	conns, ok := r.entries[key]
	if !ok {
		conns = make(map[string]struct{})
		r.entries[key] = conns
	}

	if _, exists := conns[connId]; exists {
		return false
	}
	conns[connId] = struct{}{}

	return true
}

// Unregister removes connId from key and reports whether the key was
// pruned as a result.
func (r *Registry) Unregister(key int, connId string) bool {
	conns, ok := r.entries[key]
	if !ok {
		return false
	}

	delete(conns, connId)
	if len(conns) == 0 {
		delete(r.entries, key)
		return true
	}

	return false
}

// Lookup returns the connection ids registered under key, sorted for
// deterministic fan-out order.
func (r *Registry) Lookup(key int) []string {
	conns := r.entries[key]
	ids := make([]string, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

// Remove drops the whole entry for key and returns the ids it held.
func (r *Registry) Remove(key int) []string {
	ids := r.Lookup(key)
	delete(r.entries, key)
	return ids
}

func (r *Registry) Has(key int) bool {
	_, ok := r.entries[key]
	return ok
}

func (r *Registry) Keys() []int {
	keys := make([]int, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	return keys
}

func (r *Registry) Len() int {
	return len(r.entries)
}

// Snapshot copies the registry contents for logging and debug replies.
func (r *Registry) Snapshot() map[int][]string {
	out := make(map[int][]string, len(r.entries))
	for _, k := range r.Keys() {
		out[k] = r.Lookup(k)
	}
	return out
}
