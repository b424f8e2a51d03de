package rbac

import (
	"sort"

	"github.com/jrsteele09/go-identity-core/internal/errors"
)

// Registry resolves role permissions. It is built once at startup and is
// safe for unsynchronized concurrent reads afterwards; nothing mutates it.
type Registry struct {
	roles map[string]Role
}

// AccessRequest carries the identity of the caller and the resource being
// acted on. ResourceOwnerID and ResourceCompanyID are optional; they only
// matter when access falls back to a scoped permission.
type AccessRequest struct {
	UserID            string
	CompanyID         string
	Role              string
	Resource          string
	Action            string
	ResourceOwnerID   string
	ResourceCompanyID string
}

// Decision is the outcome of a permission check. Reason is safe to show
// to callers: it never names the specific permission that was missing.
type Decision struct {
	Granted bool
	Reason  string
}

const (
	reasonInvalidRole  = "Invalid role"
	reasonInsufficient = "Insufficient permissions"
)

// Err maps a denial onto the error taxonomy; nil when granted. The
// middleware layer branches on these instead of string-matching Reason.
func (d Decision) Err() error {
	switch {
	case d.Granted:
		return nil
	case d.Reason == reasonInvalidRole:
		return errors.ErrInvalidRole
	default:
		return errors.ErrInsufficientPermissions
	}
}

// NewRegistry builds a registry from the given roles. Duplicate role ids,
// references to unknown roles, and inheritance cycles are configuration
// errors and fail construction.
func NewRegistry(roles []Role) (*Registry, error) {
	byID := make(map[string]Role, len(roles))
	for _, role := range roles {
		if role.ID == "" {
			return nil, errors.Wrapf(errors.ErrConfiguration, "role with empty id")
		}
		if _, exists := byID[role.ID]; exists {
			return nil, errors.Wrapf(errors.ErrConfiguration, "duplicate role %q", role.ID)
		}
		if role.Level < 1 {
			return nil, errors.Wrapf(errors.ErrConfiguration, "role %q has level %d, minimum is 1", role.ID, role.Level)
		}
		byID[role.ID] = role
	}

	for _, role := range byID {
		for _, parent := range role.Inherits {
			if _, ok := byID[parent]; !ok {
				return nil, errors.Wrapf(errors.ErrConfiguration, "role %q inherits unknown role %q", role.ID, parent)
			}
		}
	}

	if cycle := findInheritanceCycle(byID); cycle != "" {
		return nil, errors.Wrapf(errors.ErrConfiguration, "inheritance cycle through role %q", cycle)
	}

	return &Registry{roles: byID}, nil
}

// findInheritanceCycle runs a coloured depth-first search over the
// inherits graph and returns the id of a role on a cycle, or "".
func findInheritanceCycle(roles map[string]Role) string {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(roles))

	var visit func(id string) string
	visit = func(id string) string {
		switch state[id] {
		case inStack:
			return id
		case done:
			return ""
		}
		state[id] = inStack
		for _, parent := range roles[id].Inherits {
			if offender := visit(parent); offender != "" {
				return offender
			}
		}
		state[id] = done
		return ""
	}

	ids := make([]string, 0, len(roles))
	for id := range roles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if offender := visit(id); offender != "" {
			return offender
		}
	}
	return ""
}

// Role returns the role with the given id.
func (r *Registry) Role(id string) (Role, bool) {
	role, ok := r.roles[id]
	return role, ok
}

// Roles returns all registered roles, ordered by level then id.
func (r *Registry) Roles() []Role {
	out := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	sortRoles(out)
	return out
}

// CheckAccess decides whether the request's role may perform
// (resource, action). A role grants access if it, or any role it
// transitively inherits from, holds the global permission — or holds a
// scoped variant whose owner/company condition the caller satisfies.
func (r *Registry) CheckAccess(req AccessRequest) Decision {
	role, ok := r.roles[req.Role]
	if !ok {
		return Decision{Granted: false, Reason: reasonInvalidRole}
	}

	required := req.Resource + ":" + req.Action

	if r.holds(role, required, nil) {
		return Decision{Granted: true}
	}

	ownMatch := req.UserID != "" && req.UserID == req.ResourceOwnerID ||
		req.CompanyID != "" && req.CompanyID == req.ResourceCompanyID
	if ownMatch && r.holds(role, required+":own", nil) {
		return Decision{Granted: true}
	}

	companyMatch := req.CompanyID != "" && req.CompanyID == req.ResourceCompanyID
	if companyMatch && r.holds(role, required+":company", nil) {
		return Decision{Granted: true}
	}

	return Decision{Granted: false, Reason: reasonInsufficient}
}

// holds walks the inheritance graph depth-first, short-circuiting on the
// first role that carries the permission.
func (r *Registry) holds(role Role, permissionID string, visited map[string]bool) bool {
	if role.HoldsDirect(permissionID) {
		return true
	}
	if len(role.Inherits) == 0 {
		return false
	}
	if visited == nil {
		visited = make(map[string]bool)
	}
	visited[role.ID] = true
	for _, parentID := range role.Inherits {
		if visited[parentID] {
			continue
		}
		parent, ok := r.roles[parentID]
		if !ok {
			continue
		}
		if r.holds(parent, permissionID, visited) {
			return true
		}
	}
	return false
}

// CanManageRole reports whether manager may administer target. Roles are
// totally ordered by level, 1 being the most authoritative; a manager
// may act on any role at or below its own authority.
func (r *Registry) CanManageRole(managerID, targetID string) bool {
	manager, ok := r.roles[managerID]
	if !ok {
		return false
	}
	target, ok := r.roles[targetID]
	if !ok {
		return false
	}
	return manager.Level <= target.Level
}

// AssignableRoles returns the roles a holder of roleID may hand out:
// every role with level at or below the holder's authority, ascending by
// level with id as the tiebreak.
func (r *Registry) AssignableRoles(roleID string) []Role {
	role, ok := r.roles[roleID]
	if !ok {
		return nil
	}
	out := make([]Role, 0, len(r.roles))
	for _, candidate := range r.roles {
		if candidate.Level >= role.Level {
			out = append(out, candidate)
		}
	}
	sortRoles(out)
	return out
}

func sortRoles(roles []Role) {
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].Level != roles[j].Level {
			return roles[i].Level < roles[j].Level
		}
		return roles[i].ID < roles[j].ID
	})
}
