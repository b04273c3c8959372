package model

// Role of a group member. A group always has exactly one creator; the
// admin and member subsets are mutable.
type Role string

const (
	RoleCreator Role = "creator"
	RoleAdmin   Role = "admin"
	RoleMember  Role = "member"
)

// PermExpenses is the single optional per-member grant: access to the
// group's shared finances without an admin role.
const PermExpenses = "expenses"

// OidUnassigned marks an entity that has not been persisted yet. The bot
// never invents identifiers beyond this sentinel.
const OidUnassigned = "-"

type Group struct {
	GroupOid    string        `json:"group_oid"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Members     []GroupMember `json:"members"`
}

type GroupMember struct {
	Role        Role              `json:"role"`
	Permissions map[string]string `json:"permissions"`
	MemberOid   string            `json:"member_oid"`
	MemberTid   int64             `json:"member_tid"`
}

// HasFinancialAccess reports whether the member may open the group's
// finances: creator and admins always, plain members only with the
// explicit expenses grant.
func (m *GroupMember) HasFinancialAccess() bool {
	if m.Role == RoleCreator || m.Role == RoleAdmin {
		return true
	}
	return m.Permissions != nil && m.Permissions["financial"] == PermExpenses
}

// MemberByTid finds the membership row for a Telegram id.
func (g *Group) MemberByTid(tid int64) (*GroupMember, bool) {
	for i := range g.Members {
		if g.Members[i].MemberTid == tid {
			return &g.Members[i], true
		}
	}
	return nil, false
}

// Creator returns the group's creator row. Every persisted group has one.
func (g *Group) Creator() (*GroupMember, bool) {
	for i := range g.Members {
		if g.Members[i].Role == RoleCreator {
			return &g.Members[i], true
		}
	}
	return nil, false
}

// Admins returns all members holding the admin role, the creator excluded.
func (g *Group) Admins() []GroupMember {
	var admins []GroupMember
	for _, m := range g.Members {
		if m.Role == RoleAdmin {
			admins = append(admins, m)
		}
	}
	return admins
}

// PromotableMembers returns members eligible for promotion to admin:
// everyone who is neither creator nor already admin.
func (g *Group) PromotableMembers() []GroupMember {
	var out []GroupMember
	for _, m := range g.Members {
		if m.Role == RoleMember {
			out = append(out, m)
		}
	}
	return out
}

// ManageableMembers returns the member-management candidate list. The
// creator's own row is never offered for removal or permission edits.
func (g *Group) ManageableMembers() []GroupMember {
	var out []GroupMember
	for _, m := range g.Members {
		if m.Role != RoleCreator {
			out = append(out, m)
		}
	}
	return out
}
