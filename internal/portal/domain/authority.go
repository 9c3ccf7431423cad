package domain

import "fmt"

type SystemRole string

const (
	RoleRoot     SystemRole = "root"
	RoleAdmin    SystemRole = "admin"
	RolePersonal SystemRole = "personal"
	RoleUser     SystemRole = "user"
)

// SystemRoles lists the built-in roles in descending order of privilege.
var SystemRoles = []SystemRole{RoleRoot, RoleAdmin, RolePersonal, RoleUser}

func (r SystemRole) Valid() bool {
	switch r {
	case RoleRoot, RoleAdmin, RolePersonal, RoleUser:
		return true
	}
	return false
}

func (r SystemRole) String() string { return string(r) }

// ParseSystemRole validates a role tag.
func ParseSystemRole(s string) (SystemRole, error) {
	r := SystemRole(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown system role %q", s)
	}
	return r, nil
}

// Authority is either a system role or a custom role id, never both.
type Authority struct {
	system   SystemRole
	customID string
}

func SystemAuthority(r SystemRole) Authority { return Authority{system: r} }

func CustomAuthority(roleID string) Authority { return Authority{customID: roleID} }

// IsCustom reports whether the authority references a custom role.
func (a Authority) IsCustom() bool { return a.customID != "" }

// CustomRoleID returns the custom role id when IsCustom is true.
func (a Authority) CustomRoleID() (string, bool) {
	return a.customID, a.customID != ""
}

// SystemRole returns the system role when IsCustom is false.
func (a Authority) SystemRole() (SystemRole, bool) {
	if a.customID != "" {
		return "", false
	}
	return a.system, a.system != ""
}

func (a Authority) String() string {
	if a.customID != "" {
		return "custom:" + a.customID
	}
	return "system:" + string(a.system)
}
