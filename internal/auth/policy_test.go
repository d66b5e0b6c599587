package auth

import (
	"testing"

	"venuebook/internal/model"
)

func TestAllow(t *testing.T) {
	student := model.Actor{ID: "u1", Role: model.RoleStudent}
	otherStudent := model.Actor{ID: "u2", Role: model.RoleStudent}
	admin := model.Actor{ID: "a1", Role: model.RoleAdmin}
	superadmin := model.Actor{ID: "s1", Role: model.RoleSuperadmin}

	tests := []struct {
		name   string
		actor  model.Actor
		action Action
		owner  string
		status model.Status
		want   bool
	}{
		{"student creates event", student, ActionCreateEvent, "", "", true},
		{"owner submits own draft", student, ActionSubmitEvent, "u1", model.StatusDraft, true},
		{"non-owner cannot submit", otherStudent, ActionSubmitEvent, "u1", model.StatusDraft, false},
		{"owner edits own draft", student, ActionEditEvent, "u1", model.StatusDraft, true},
		{"owner edits own declined", student, ActionEditEvent, "u1", model.StatusDeclined, true},
		{"owner cannot edit approved", student, ActionEditEvent, "u1", model.StatusApproved, false},
		{"admin edits approved", admin, ActionEditEvent, "u1", model.StatusApproved, true},
		{"admin edits someone else's draft", admin, ActionEditEvent, "u1", model.StatusDraft, true},
		{"owner cannot delete approved", student, ActionDeleteEvent, "u1", model.StatusApproved, false},
		{"superadmin deletes approved", superadmin, ActionDeleteEvent, "u1", model.StatusApproved, true},
		{"student cannot decide", student, ActionDecideEvent, "", "", false},
		{"admin decides", admin, ActionDecideEvent, "", "", true},
		{"student cannot view inbox", student, ActionViewInbox, "", "", false},
		{"admin views inbox", admin, ActionViewInbox, "", "", true},
		{"admin cannot manage roles", admin, ActionManageRoles, "", "", false},
		{"superadmin manages roles", superadmin, ActionManageRoles, "", "", true},
		{"admin cannot manage venues", admin, ActionManageVenues, "", "", false},
		{"superadmin manages venues", superadmin, ActionManageVenues, "", "", true},
		{"owner attaches service pre-approval", student, ActionAttachService, "u1", model.StatusSubmitted, true},
		{"owner cannot attach service after approval", student, ActionAttachService, "u1", model.StatusApproved, false},
		{"non-owner cannot attach file", otherStudent, ActionAttachFile, "u1", model.StatusDraft, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Allow(tt.actor, tt.action, tt.owner, tt.status)
			if got != tt.want {
				t.Errorf("Allow(%v, %v, %q, %q) = %v, want %v",
					tt.actor, tt.action, tt.owner, tt.status, got, tt.want)
			}
		})
	}
}

func TestAllowUnknownAction(t *testing.T) {
	superadmin := model.Actor{ID: "s1", Role: model.RoleSuperadmin}
	if Allow(superadmin, Action(999), "", "") {
		t.Error("unknown action must be denied for every role")
	}
}
