package rbac

// Scope is the breadth over which a permission applies: the caller's own
// resources, their company's resources, or all resources.
type Scope string

const (
	ScopeOwn     Scope = "own"
	ScopeCompany Scope = "company"
	ScopeGlobal  Scope = "global"
)

// Permission grants a single (resource, action) pair at a given scope.
type Permission struct {
	Resource string
	Action   string
	Scope    Scope
}

// ID returns the canonical permission identifier. Global permissions are
// the bare "resource:action"; narrower scopes carry a suffix.
func (p Permission) ID() string {
	switch p.Scope {
	case ScopeOwn:
		return p.Resource + ":" + p.Action + ":own"
	case ScopeCompany:
		return p.Resource + ":" + p.Action + ":company"
	default:
		return p.Resource + ":" + p.Action
	}
}

// Global is shorthand for a permission that applies everywhere.
func Global(resource, action string) Permission {
	return Permission{Resource: resource, Action: action, Scope: ScopeGlobal}
}

// Company is shorthand for a permission limited to the caller's company.
func Company(resource, action string) Permission {
	return Permission{Resource: resource, Action: action, Scope: ScopeCompany}
}

// Own is shorthand for a permission limited to the caller's own resources.
func Own(resource, action string) Permission {
	return Permission{Resource: resource, Action: action, Scope: ScopeOwn}
}
