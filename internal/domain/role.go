package domain

// Role constants define the allowed account roles.
const (
	RoleUser      = "User"
	RoleAdmin     = "Admin"
	RoleModerator = "Moderator"
)

// ValidRoles returns the closed set of valid account roles.
func ValidRoles() []string {
	return []string{RoleUser, RoleAdmin, RoleModerator}
}

// IsValidRole checks whether the given role string is a valid account role.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles() {
		if r == role {
			return true
		}
	}
	return false
}
