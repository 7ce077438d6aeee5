package fields

// Model is the form state of one document. Values are keyed by role, so a
// field can never appear twice. Models are treated as values: With returns a
// modified copy and leaves the receiver untouched.
type Model struct {
	kind   Kind
	values map[Role]string
}

// New returns an empty model for the kind.
func New(kind Kind) Model {
	return Model{kind: kind, values: make(map[Role]string)}
}

// Kind returns the document kind the model belongs to.
func (m Model) Kind() Kind { return m.kind }

// Get returns the value for a role, or "" when unset.
func (m Model) Get(r Role) string {
	return m.values[r]
}

// Has reports whether the role has been assigned, even to "".
func (m Model) Has(r Role) bool {
	_, ok := m.values[r]
	return ok
}

// With returns a copy of the model with role r set to v.
func (m Model) With(r Role, v string) Model {
	out := m.Clone()
	out.values[r] = v
	return out
}

// WithAll returns a copy with every listed role set to v.
func (m Model) WithAll(roles []Role, v string) Model {
	out := m.Clone()
	for _, r := range roles {
		out.values[r] = v
	}
	return out
}

// Clone returns a deep copy.
func (m Model) Clone() Model {
	out := Model{kind: m.kind, values: make(map[Role]string, len(m.values))}
	for r, v := range m.values {
		out.values[r] = v
	}
	return out
}

// Len returns the number of assigned roles.
func (m Model) Len() int { return len(m.values) }

// Each visits assigned roles in the kind's fill order.
func (m Model) Each(fn func(Role, string)) {
	for _, r := range m.kind.Roles() {
		if v, ok := m.values[r]; ok {
			fn(r, v)
		}
	}
}

// Snapshot returns element id suffix to value, for logs.
func (m Model) Snapshot() map[string]string {
	out := make(map[string]string, len(m.values))
	for r, v := range m.values {
		out[r.ID()] = v
	}
	return out
}

// Pairs returns (id, value) pairs in fill order.
func (m Model) Pairs() [][2]string {
	out := make([][2]string, 0, len(m.values))
	m.Each(func(r Role, v string) {
		out = append(out, [2]string{r.ID(), v})
	})
	return out
}

// Diff lists the roles whose values differ between m and other.
func (m Model) Diff(other Model) []Role {
	var changed []Role
	for _, r := range m.kind.Roles() {
		a, aok := m.values[r]
		b, bok := other.values[r]
		if a != b || aok != bok {
			changed = append(changed, r)
		}
	}
	return changed
}
