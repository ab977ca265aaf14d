package passport

import (
	"os"
	"strconv"
	"strings"
)

const (
	defaultAdminTypes = "9"
	defaultAdminRole  = "OPERATOR"

	// Label values returned in user_type.
	LabelAdmin = "admin"
	LabelUser  = "user"
)

var knownAdminRoles = map[string]struct{}{
	"OPERATOR": {},
	"SUPPORT":  {},
	"TECH":     {},
}

// RoleMapping resolves a numeric user type to the admin/user label and the
// back-office roles granted to admin-typed identities.
type RoleMapping struct {
	adminTypes map[int]struct{}
	roleMap    map[int][]string
}

// NewRoleMapping parses the mapping configuration. types is a comma list of
// admin user types ("9,8"); roleMap entries look like "9=OPERATOR|TECH" with
// unknown role names discarded. Types that appear in roleMap count as admin
// even when absent from types.
func NewRoleMapping(types, roleMap string) *RoleMapping {
	m := &RoleMapping{
		adminTypes: make(map[int]struct{}),
		roleMap:    make(map[int][]string),
	}
	if strings.TrimSpace(types) == "" {
		types = defaultAdminTypes
	}
	for _, part := range strings.Split(types, ",") {
		if t, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			m.adminTypes[t] = struct{}{}
		}
	}
	for _, entry := range strings.Split(roleMap, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		typeRaw, rolesRaw, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		t, err := strconv.Atoi(strings.TrimSpace(typeRaw))
		if err != nil {
			continue
		}
		var roles []string
		seen := make(map[string]struct{})
		for _, r := range strings.Split(rolesRaw, "|") {
			r = strings.ToUpper(strings.TrimSpace(r))
			if r == "" {
				continue
			}
			if _, known := knownAdminRoles[r]; !known {
				continue
			}
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			roles = append(roles, r)
		}
		if len(roles) > 0 {
			m.roleMap[t] = roles
		}
	}
	return m
}

// NewRoleMappingFromEnv reads ADMIN_USER_TYPES and ADMIN_ROLE_MAP.
func NewRoleMappingFromEnv() *RoleMapping {
	return NewRoleMapping(os.Getenv("ADMIN_USER_TYPES"), os.Getenv("ADMIN_ROLE_MAP"))
}

// IsAdminType reports whether the user type maps to the admin label.
func (m *RoleMapping) IsAdminType(userType int) bool {
	if _, ok := m.adminTypes[userType]; ok {
		return true
	}
	_, ok := m.roleMap[userType]
	return ok
}

// UserTypeLabel returns "admin" or "user".
func (m *RoleMapping) UserTypeLabel(userType int) string {
	if m.IsAdminType(userType) {
		return LabelAdmin
	}
	return LabelUser
}

// AdminRoles returns the back-office roles for an admin user type; non-admin
// types get none. Admin types without an explicit mapping default to
// OPERATOR.
func (m *RoleMapping) AdminRoles(userType int) []string {
	if !m.IsAdminType(userType) {
		return nil
	}
	if roles, ok := m.roleMap[userType]; ok {
		out := make([]string, len(roles))
		copy(out, roles)
		return out
	}
	return []string{defaultAdminRole}
}
