package rbac

// Role is a named set of permissions with a position in the authority
// ordering. Level 1 is the highest authority; larger levels are more
// restricted. A role may inherit the permissions of other roles; the
// inheritance graph must be acyclic (validated by NewRegistry).
type Role struct {
	ID          string
	Name        string
	Level       int
	Permissions []Permission
	Inherits    []string
}

// HoldsDirect reports whether the role itself (ignoring inheritance)
// holds a permission with the given id.
func (r Role) HoldsDirect(permissionID string) bool {
	for _, p := range r.Permissions {
		if p.ID() == permissionID {
			return true
		}
	}
	return false
}
