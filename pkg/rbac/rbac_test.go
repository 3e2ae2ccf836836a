package rbac

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role       string
		permission string
		want       bool
	}{
		{RoleClient, PermissionReadProject, true},
		{RoleClient, PermissionSubmitPayment, true},
		{RoleClient, PermissionDownloadInvoice, true},
		{RoleClient, PermissionUpdateProgression, false},
		{RoleClient, PermissionApprovePayment, false},
		{RoleClient, PermissionManageOutbox, false},
		{RoleAdmin, PermissionUpdateProgression, true},
		{RoleAdmin, PermissionApprovePayment, true},
		{RoleAdmin, PermissionRequestResubmit, true},
		{RoleAdmin, PermissionReadProject, true},
		{"unknown", PermissionReadProject, false},
		{"", PermissionReadProject, false},
	}

	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.permission); got != tt.want {
			t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.permission, got, tt.want)
		}
	}
}
