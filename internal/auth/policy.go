package auth

import "venuebook/internal/model"

// Action is the closed set of operations the policy decides on.
type Action int

const (
	ActionCreateEvent Action = iota
	ActionSubmitEvent
	ActionEditEvent
	ActionDeleteEvent
	ActionDecideEvent
	ActionAttachService
	ActionAttachFile
	ActionViewInbox
	ActionManageGroups
	ActionManageVenues
	ActionManageUsers
	ActionManageRoles
)

// rule describes who may perform one action. Ownership rules additionally
// compare the actor against the resource owner; statusGated rules refuse
// the owner once the resource is approved (admins bypass both).
type rule struct {
	roles       map[model.Role]bool
	ownerOnly   bool
	statusGated bool
	adminBypass bool
}

var anyAuthenticated = map[model.Role]bool{
	model.RoleStudent:    true,
	model.RoleAdmin:      true,
	model.RoleSuperadmin: true,
}

var adminOnly = map[model.Role]bool{
	model.RoleAdmin:      true,
	model.RoleSuperadmin: true,
}

var superadminOnly = map[model.Role]bool{
	model.RoleSuperadmin: true,
}

var policy = map[Action]rule{
	ActionCreateEvent:   {roles: anyAuthenticated},
	ActionSubmitEvent:   {roles: anyAuthenticated, ownerOnly: true},
	ActionEditEvent:     {roles: anyAuthenticated, ownerOnly: true, statusGated: true, adminBypass: true},
	ActionDeleteEvent:   {roles: anyAuthenticated, ownerOnly: true, statusGated: true, adminBypass: true},
	ActionDecideEvent:   {roles: adminOnly},
	ActionAttachService: {roles: anyAuthenticated, ownerOnly: true, statusGated: true},
	ActionAttachFile:    {roles: anyAuthenticated, ownerOnly: true},
	ActionViewInbox:     {roles: adminOnly},
	ActionManageGroups:  {roles: superadminOnly},
	ActionManageVenues:  {roles: superadminOnly},
	ActionManageUsers:   {roles: superadminOnly},
	ActionManageRoles:   {roles: superadminOnly},
}

// Allow decides whether actor may perform action. ownerID and status
// describe the targeted resource; pass zero values for actions that do not
// target an owned resource.
func Allow(actor model.Actor, action Action, ownerID string, status model.Status) bool {
	r, ok := policy[action]
	if !ok {
		return false
	}
	if !r.roles[actor.Role] {
		return false
	}
	if r.adminBypass && actor.Role.IsAdmin() {
		return true
	}
	if r.ownerOnly && actor.ID != ownerID {
		return false
	}
	if r.statusGated && status == model.StatusApproved {
		return false
	}
	return true
}
