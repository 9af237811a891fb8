package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermCatalogRead  Permission = "catalog:read"
	PermBarsRead     Permission = "bars:read"
	PermMasterRead   Permission = "master:read"
	PermGreeksRead   Permission = "greeks:read"
	PermQueryExecute Permission = "query:execute"
	PermQueryManage  Permission = "query:manage"
	PermFeedRead     Permission = "feed:read"
	PermIngestRun    Permission = "ingest:run"
	PermMasterBuild  Permission = "master:build"
	PermOptimizeRun  Permission = "optimize:run"
	PermJobManage    Permission = "job:manage"
	PermUserManage   Permission = "user:manage"
	PermSystemAdmin  Permission = "system:admin"
)

// rolePermissions maps each role to its granted permissions.
// This is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermCatalogRead,
		PermBarsRead,
		PermMasterRead,
		PermGreeksRead,
		PermFeedRead,
	},
	RoleAnalyst: {
		PermCatalogRead,
		PermBarsRead,
		PermMasterRead,
		PermGreeksRead,
		PermFeedRead,
		PermQueryExecute,
		PermQueryManage,
	},
	RoleAdmin: {
		PermCatalogRead,
		PermBarsRead,
		PermMasterRead,
		PermGreeksRead,
		PermFeedRead,
		PermQueryExecute,
		PermQueryManage,
		PermIngestRun,
		PermMasterBuild,
		PermOptimizeRun,
		PermJobManage,
		PermUserManage,
		PermSystemAdmin,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
