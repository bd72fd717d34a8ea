package permission

// Role identifies one of the platform's account roles. The set is closed:
// tokens carrying any other value fail authorization.
type Role string

const (
	// RoleAdmin is the platform operator role.
	RoleAdmin Role = "ADMIN"
	// RoleTTO is the technology-transfer-office role.
	RoleTTO Role = "TTO"
	// RoleEntrepreneur is the entrepreneur role.
	RoleEntrepreneur Role = "ENTREPRENEUR"
	// RoleResearcher is the researcher role.
	RoleResearcher Role = "RESEARCHER"
)

var allRoles = map[Role]struct{}{
	RoleAdmin:        {},
	RoleTTO:          {},
	RoleEntrepreneur: {},
	RoleResearcher:   {},
}

// Parse returns the Role for s, or false if s is not a known role.
func Parse(s string) (Role, bool) {
	r := Role(s)
	_, ok := allRoles[r]
	return r, ok
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := allRoles[r]
	return ok
}

// Privileged reports whether the role requires a second factor at login.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleTTO
}

func (r Role) String() string {
	return string(r)
}
