// Package rbac resolves role permissions with inheritance.
//
// The permission table and role hierarchy are static: resolution is a pure
// function with no storage or network access. An unknown role resolves to an
// empty permission set rather than an error.
package rbac

// Role identifies a user role.
type Role string

const (
	RoleAgent      Role = "AGENT"
	RoleManager    Role = "MANAGER"
	RoleAdmin      Role = "ADMIN"
	RoleCompliance Role = "COMPLIANCE"
)

// Permission identifies a single capability.
type Permission string

const (
	PermReadLeads           Permission = "read_leads"
	PermUpdateLeadStatus    Permission = "update_lead_status"
	PermAssignLeads         Permission = "assign_leads"
	PermViewTeamPerformance Permission = "view_team_performance"
	PermManageUsers         Permission = "manage_users"
	PermSystemConfiguration Permission = "system_configuration"
	PermAuditLogs           Permission = "audit_logs"
	PermComplianceReports   Permission = "compliance_reports"
)

var rolePermissions = map[Role][]Permission{
	RoleAgent:      {PermReadLeads, PermUpdateLeadStatus},
	RoleManager:    {PermReadLeads, PermAssignLeads, PermViewTeamPerformance},
	RoleAdmin:      {PermReadLeads, PermAssignLeads, PermManageUsers, PermSystemConfiguration},
	RoleCompliance: {PermReadLeads, PermAuditLogs, PermComplianceReports},
}

// roleHierarchy maps a role to the roles it inherits from. Acyclic.
var roleHierarchy = map[Role][]Role{
	RoleAdmin:      {RoleManager, RoleAgent, RoleCompliance},
	RoleManager:    {RoleAgent},
	RoleCompliance: {},
	RoleAgent:      {},
}

// Valid reports whether r is a known role.
func Valid(r Role) bool {
	_, ok := rolePermissions[r]
	return ok
}

// HasDirect reports whether the role itself carries the permission, ignoring inheritance.
func HasDirect(role Role, perm Permission) bool {
	if role == "" || perm == "" {
		return false
	}
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// HasWithInheritance reports whether the role or any role it inherits from
// carries the permission directly.
func HasWithInheritance(role Role, perm Permission) bool {
	if HasDirect(role, perm) {
		return true
	}
	for _, ancestor := range roleHierarchy[role] {
		if HasDirect(ancestor, perm) {
			return true
		}
	}
	return false
}

// AllPermissions returns the deduplicated union of the role's own permissions
// and those of every role it inherits from. Unknown roles yield an empty slice.
func AllPermissions(role Role) []Permission {
	seen := make(map[Permission]struct{})
	var out []Permission
	add := func(perms []Permission) {
		for _, p := range perms {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	add(rolePermissions[role])
	for _, ancestor := range roleHierarchy[role] {
		add(rolePermissions[ancestor])
	}
	return out
}
