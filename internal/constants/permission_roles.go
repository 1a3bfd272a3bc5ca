package constants

// PermissionRoles maps each permission to the roles allowed to perform it.
var PermissionRoles = map[string][]string{
	ManageWallet:   {Collector, Specialist, Admin, Superadmin},
	PlaceBids:      {Collector, Specialist, Admin, Superadmin},
	BuyArtworks:    {Collector, Specialist, Admin, Superadmin},
	ListArtworks:   {Collector, Specialist, Admin, Superadmin},
	ManageAuctions: {Specialist, Admin, Superadmin},
	CloseAuctions:  {Admin, Superadmin},
}

// AllowedRole returns true if role is in the list of allowed roles for the permission.
func AllowedRole(permission, role string) bool {
	roles, ok := PermissionRoles[permission]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
