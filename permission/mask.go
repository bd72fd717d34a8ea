package permission

// Permission is a bit position in a [Mask].
type Permission int

const (
	// ManageUsers gates user creation, modification, and deletion.
	ManageUsers Permission = iota
	// ViewUsers gates read access to user records beyond the caller's own.
	ViewUsers
	// ManageListings gates technology-listing administration.
	ManageListings
	// ViewReports gates access to platform reporting.
	ViewReports

	permissionCount
)

var permissionNames = [...]string{
	ManageUsers:    "MANAGE_USERS",
	ViewUsers:      "VIEW_USERS",
	ManageListings: "MANAGE_LISTINGS",
	ViewReports:    "VIEW_REPORTS",
}

// ParsePermission returns the Permission named by s, or false if unknown.
func ParsePermission(s string) (Permission, bool) {
	for p, name := range permissionNames {
		if name == s {
			return Permission(p), true
		}
	}
	return 0, false
}

func (p Permission) String() string {
	if p < 0 || p >= permissionCount {
		return "UNKNOWN"
	}
	return permissionNames[p]
}

// Mask is a permission bitmask. The zero value grants nothing.
type Mask uint64

// Has reports whether the mask grants p.
func (m Mask) Has(p Permission) bool {
	if p < 0 || p >= permissionCount {
		return false
	}
	return m&(1<<uint(p)) != 0
}

// HasAll reports whether the mask grants every permission in perms.
// An empty perms slice is trivially satisfied.
func (m Mask) HasAll(perms []Permission) bool {
	for _, p := range perms {
		if !m.Has(p) {
			return false
		}
	}
	return true
}

// With returns a copy of the mask with p set.
func (m Mask) With(p Permission) Mask {
	if p < 0 || p >= permissionCount {
		return m
	}
	return m | 1<<uint(p)
}

// Names returns the permission names granted by the mask, in bit order.
func (m Mask) Names() []string {
	var out []string
	for p := Permission(0); p < permissionCount; p++ {
		if m.Has(p) {
			out = append(out, p.String())
		}
	}
	return out
}
