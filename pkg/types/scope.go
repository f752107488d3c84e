package types

// Scope identifies a tenant. Every lookup and mutation is keyed by scope;
// records from one scope are never visible to another.
type Scope string

// Validate reports whether the scope is usable as a partition key.
func (s Scope) Validate() error {
	if s == "" {
		return ErrScopeEmpty
	}
	return nil
}
