package constants

const (
	Superadmin = "superadmin"
	Admin      = "admin"
	Specialist = "specialist"
	Collector  = "collector"
)

// ValidRoles is the set of roles a session user may carry.
var ValidRoles = []string{Collector, Specialist, Admin, Superadmin}

func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}
