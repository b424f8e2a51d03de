package rbac

// DefaultRoles is the product's stock role set. Levels run from 1
// (super admin) to 5 (viewer); each role inherits everything below it in
// the chain, so a permission only needs to be declared once.
func DefaultRoles() []Role {
	return []Role{
		{
			ID:    "super_admin",
			Name:  "Super Administrator",
			Level: 1,
			Permissions: []Permission{
				Global("user", "create"), Global("user", "read"),
				Global("user", "update"), Global("user", "delete"),
				Global("company", "create"), Global("company", "read"),
				Global("company", "update"), Global("company", "delete"),
				Global("role", "assign"),
				Global("audit", "read"),
			},
			Inherits: []string{"company_admin"},
		},
		{
			ID:    "company_admin",
			Name:  "Company Administrator",
			Level: 2,
			Permissions: []Permission{
				Company("user", "create"), Company("user", "read"),
				Company("user", "update"), Company("user", "delete"),
				Company("role", "assign"),
				Company("audit", "read"),
				Company("document", "delete"),
				Company("product", "delete"),
			},
			Inherits: []string{"manager"},
		},
		{
			ID:    "manager",
			Name:  "Manager",
			Level: 3,
			Permissions: []Permission{
				Company("product", "create"), Company("product", "update"),
				Company("document", "create"), Company("document", "update"),
				Company("task", "create"), Company("task", "update"),
				Company("task", "delete"),
				Company("course", "create"), Company("course", "update"),
				Company("user", "read"),
			},
			Inherits: []string{"employee"},
		},
		{
			ID:    "employee",
			Name:  "Employee",
			Level: 4,
			Permissions: []Permission{
				Own("task", "update"),
				Own("document", "update"),
				Company("product", "read"),
				Company("course", "read"),
			},
			Inherits: []string{"viewer"},
		},
		{
			ID:    "viewer",
			Name:  "Viewer",
			Level: 5,
			Permissions: []Permission{
				Company("document", "read"),
				Company("task", "read"),
			},
		},
	}
}
