package rbac

// Role names as issued by the dashboard. Keep these stable; they are part of the token contract.
const (
	RoleOwner      = "owner"
	RoleAdmin      = "admin"
	RoleMember     = "member"
	RoleViewer     = "viewer"
	RoleSuperAdmin = "super_admin"
)

// CallerRoles may place outbound calls.
var CallerRoles = []string{RoleOwner, RoleAdmin, RoleMember}

// ReaderRoles may read conversations.
var ReaderRoles = []string{RoleOwner, RoleAdmin, RoleMember, RoleViewer}

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }
