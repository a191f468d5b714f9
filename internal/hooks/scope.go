package hooks

import "context"

// Scope registers hooks on behalf of a single owner so they can be removed
// together when the owner is deactivated.
type Scope struct {
	registry *Registry
	owner    string
}

// Scope returns a registration helper bound to owner.
func (r *Registry) Scope(owner string) *Scope {
	return &Scope{registry: r, owner: owner}
}

// Owner returns the owner id.
func (s *Scope) Owner() string { return s.owner }

// On registers handler for name owned by the scope's owner.
func (s *Scope) On(name string, handler Handler, opts ...Option) Handle {
	opts = append(opts, WithOwner(s.owner))
	return s.registry.Register(name, handler, opts...)
}

// Emit forwards to the underlying registry.
func (s *Scope) Emit(ctx context.Context, name string, payload any) {
	s.registry.Emit(ctx, name, payload)
}

// Close removes every subscription the owner holds.
func (s *Scope) Close() int {
	return s.registry.RemoveOwner(s.owner)
}
