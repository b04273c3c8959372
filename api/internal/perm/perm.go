// Package perm is the single source of truth for which group actions each
// role may take. The same table drives both menu rendering and the
// commit-time authorization check, so a stale chat keyboard can never grant
// an action the role lost.
package perm

import "github.com/qx/taskmate_robot/api/internal/model"

// Capability tokens for role-gated group actions.
type Capability string

const (
	CapEditInfo      Capability = "edit_info"
	CapManageAdmins  Capability = "manage_admins"
	CapManageMembers Capability = "manage_members"
	CapTasks         Capability = "tasks"
	CapManageTasks   Capability = "manage_tasks"
	CapFinances      Capability = "finances"
)

var roleCapabilities = map[model.Role][]Capability{
	model.RoleCreator: {CapEditInfo, CapManageAdmins, CapManageMembers, CapTasks, CapManageTasks, CapFinances},
	model.RoleAdmin:   {CapManageMembers, CapTasks, CapManageTasks, CapFinances},
	model.RoleMember:  {CapTasks},
}

// Capabilities returns the action set available to a member. Finance
// access for plain members additionally requires the expenses grant.
func Capabilities(member *model.GroupMember) []Capability {
	if member == nil {
		return nil
	}
	caps := roleCapabilities[member.Role]
	out := make([]Capability, len(caps))
	copy(out, caps)
	if member.Role == model.RoleMember && member.HasFinancialAccess() {
		out = append(out, CapFinances)
	}
	return out
}

// Allowed reports whether the member holds the capability. Handlers must
// consult this at commit time as well as at render time.
func Allowed(member *model.GroupMember, cap Capability) bool {
	for _, c := range Capabilities(member) {
		if c == cap {
			return true
		}
	}
	return false
}

// CanManageTask reports whether the caller may edit or delete the task.
// Personal tasks are always manageable by their owner; group tasks require
// the manage-tasks capability in that group.
func CanManageTask(task *model.Task, member *model.GroupMember) bool {
	if !task.IsGroupTask() {
		return true
	}
	return Allowed(member, CapManageTasks)
}
