package permission

// Policy is the static role→permission mapping. It is built once at
// startup and read-only afterwards, so it needs no locking at request time.
type Policy struct {
	grants map[Role]Mask
}

// DefaultPolicy returns the platform's built-in role grants.
func DefaultPolicy() *Policy {
	return &Policy{grants: map[Role]Mask{
		RoleAdmin: Mask(0).
			With(ManageUsers).
			With(ViewUsers).
			With(ManageListings).
			With(ViewReports),
		RoleTTO: Mask(0).
			With(ManageUsers).
			With(ViewUsers).
			With(ManageListings),
		RoleEntrepreneur: Mask(0).
			With(ViewUsers),
		RoleResearcher: Mask(0).
			With(ViewUsers),
	}}
}

// NewPolicy builds a policy from an explicit grant table. Unknown roles in
// the table are kept; lookups for roles absent from the table return the
// zero mask.
func NewPolicy(grants map[Role]Mask) *Policy {
	copied := make(map[Role]Mask, len(grants))
	for role, mask := range grants {
		copied[role] = mask
	}
	return &Policy{grants: copied}
}

// Grants returns the permission mask for role. Roles without an entry get
// the zero mask, which denies everything.
func (p *Policy) Grants(role Role) Mask {
	if p == nil {
		return 0
	}
	return p.grants[role]
}

// Allows reports whether role holds every permission in perms.
func (p *Policy) Allows(role Role, perms []Permission) bool {
	return p.Grants(role).HasAll(perms)
}
