package passport

import (
	"reflect"
	"testing"
)

func TestRoleMappingDefaults(t *testing.T) {
	m := NewRoleMapping("", "")
	if !m.IsAdminType(9) {
		t.Fatal("type 9 should default to admin")
	}
	if m.IsAdminType(1) {
		t.Fatal("type 1 should not be admin")
	}
	if got := m.UserTypeLabel(9); got != LabelAdmin {
		t.Fatalf("label(9) = %q", got)
	}
	if got := m.UserTypeLabel(1); got != LabelUser {
		t.Fatalf("label(1) = %q", got)
	}
	if got := m.AdminRoles(9); !reflect.DeepEqual(got, []string{"OPERATOR"}) {
		t.Fatalf("AdminRoles(9) = %v", got)
	}
	if got := m.AdminRoles(1); got != nil {
		t.Fatalf("AdminRoles(1) = %v, want nil", got)
	}
}

func TestRoleMappingParsing(t *testing.T) {
	m := NewRoleMapping("9,8", "9=OPERATOR|TECH|tech|BOGUS,8=support, bad-entry ,7=BOGUS")

	if got := m.AdminRoles(9); !reflect.DeepEqual(got, []string{"OPERATOR", "TECH"}) {
		t.Fatalf("AdminRoles(9) = %v", got)
	}
	// Lowercase names normalize, unknown names drop.
	if got := m.AdminRoles(8); !reflect.DeepEqual(got, []string{"SUPPORT"}) {
		t.Fatalf("AdminRoles(8) = %v", got)
	}
	// 7 mapped only bogus roles, so it never became admin.
	if m.IsAdminType(7) {
		t.Fatal("type 7 should not be admin")
	}
}

func TestRoleMappingRoleMapImpliesAdmin(t *testing.T) {
	m := NewRoleMapping("9", "5=SUPPORT")
	if !m.IsAdminType(5) {
		t.Fatal("type in role map should count as admin")
	}
	if got := m.UserTypeLabel(5); got != LabelAdmin {
		t.Fatalf("label(5) = %q", got)
	}
}
