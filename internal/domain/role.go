package domain

// Role constants define the allowed values of User.UserType.
const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
)

// ValidRoles returns the set of valid user types.
func ValidRoles() []string {
	return []string{RolePatient, RoleDoctor, RoleAdmin}
}

// IsValidRole checks whether the given string is a valid user type.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles() {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether u may see the admin dashboard. Staff and superuser
// accounts count as admins whatever their user_type.
func IsAdmin(u *User) bool {
	if u == nil {
		return false
	}
	return u.UserType == RoleAdmin || u.IsStaff || u.IsSuperuser
}

// IsDoctor reports whether u is a doctor.
func IsDoctor(u *User) bool {
	return u != nil && u.UserType == RoleDoctor
}

// IsPatient reports whether u is a patient.
func IsPatient(u *User) bool {
	return u != nil && u.UserType == RolePatient
}

// HasActiveSubscription reports whether u carries an active subscription.
func HasActiveSubscription(u *User) bool {
	return u != nil && u.Subscription != nil && u.Subscription.IsActive
}

// DashboardView names the dashboard a user lands on.
func DashboardView(u *User) string {
	switch {
	case IsAdmin(u):
		return RoleAdmin
	case IsDoctor(u):
		return RoleDoctor
	default:
		return RolePatient
	}
}
