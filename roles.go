package authsync

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleLoanOfficer, RoleRiskManager:
		return true
	default:
		return false
	}
}

// CanScoreApplications checks if this role can submit applications for scoring
func (r Role) CanScoreApplications() bool {
	switch r {
	case RoleLoanOfficer, RoleRiskManager:
		return true
	default:
		return false
	}
}

// CanManagePortfolio checks if this role can run portfolio analytics and
// simulations
func (r Role) CanManagePortfolio() bool {
	switch r {
	case RoleRiskManager:
		return true
	default:
		return false
	}
}

// IsAtLeast checks if this role meets the minimum required level
func (r Role) IsAtLeast(minRole Role) bool {
	roleHierarchy := map[Role]int{
		RoleLoanOfficer: 0,
		RoleRiskManager: 1,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []Role {
	return []Role{
		RoleLoanOfficer,
		RoleRiskManager,
	}
}

// ParseRole safely parses a string into a Role type
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}
