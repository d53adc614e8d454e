// internal/models/roles.go

package models

// UserRole is carried in the access token and gates administrative routes.
type UserRole string

const (
	RoleUser       UserRole = "USER"
	RoleModerator  UserRole = "MODERATOR"
	RoleAdmin      UserRole = "ADMIN"
	RoleSuperAdmin UserRole = "SUPER_ADMIN"
)

var roleLevels = map[UserRole]int{
	RoleUser:       0,
	RoleModerator:  1,
	RoleAdmin:      2,
	RoleSuperAdmin: 3,
}

func (r UserRole) IsValid() bool {
	_, ok := roleLevels[r]
	return ok
}

// IsHigherOrEqual reports whether r ranks at or above target.
func (r UserRole) IsHigherOrEqual(target UserRole) bool {
	current, ok1 := roleLevels[r]
	required, ok2 := roleLevels[target]
	if !ok1 || !ok2 {
		return false
	}
	return current >= required
}

func (r UserRole) String() string {
	return string(r)
}

// ParseRole converts a claim value into a UserRole. Empty input maps to RoleUser.
func ParseRole(role string) (UserRole, bool) {
	if role == "" {
		return RoleUser, true
	}
	r := UserRole(role)
	if r.IsValid() {
		return r, true
	}
	return "", false
}
