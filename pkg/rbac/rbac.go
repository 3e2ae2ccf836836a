package rbac

// 权限常量
const (
	// 管理操作
	PermissionUpdateProgression = "project:update_progression"
	PermissionApprovePayment    = "payment:approve"
	PermissionRequestResubmit   = "payment:request_resubmission"
	PermissionCreateObligation  = "payment:create"
	PermissionManageOutbox      = "outbox:manage"

	// 客户操作
	PermissionReadProject     = "project:read"
	PermissionSubmitPayment   = "payment:submit"
	PermissionDownloadInvoice = "payment:download_invoice"
)

// 角色常量
const (
	RoleClient = "client"
	RoleAdmin  = "admin"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleClient: {
		PermissionReadProject,
		PermissionSubmitPayment,
		PermissionDownloadInvoice,
	},
	RoleAdmin: {
		PermissionReadProject,
		PermissionSubmitPayment,
		PermissionDownloadInvoice,
		PermissionUpdateProgression,
		PermissionApprovePayment,
		PermissionRequestResubmit,
		PermissionCreateObligation,
		PermissionManageOutbox,
	},
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role, permission string) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}
