package service

import "github.com/mstgnz/dukapi/infra/auth"

// Actor is the authenticated caller of a service operation
type Actor struct {
	ID   int
	Role auth.Role
}

// Owns reports whether the actor may modify a record created by ownerID.
// Superadmins may modify any record.
func (a Actor) Owns(ownerID *int) bool {
	if a.Role == auth.RoleSuperadmin {
		return true
	}
	return ownerID != nil && *ownerID == a.ID
}
