package model

import "testing"

func TestWantsNotification(t *testing.T) {
	tests := []struct {
		name string
		pref string
		when string
		want bool
	}{
		{"all gets day reminder", NotifyAll, NotifyDayBefore, true},
		{"all gets week reminder", NotifyAll, NotifyWeekBefore, true},
		{"day-before gets day reminder", NotifyDayBefore, NotifyDayBefore, true},
		{"day-before skips week reminder", NotifyDayBefore, NotifyWeekBefore, false},
		{"off gets nothing", NotifyOff, NotifyDayBefore, false},
	}
	for _, tt := range tests {
		u := User{NotificationSettings: map[string]string{"notifications": tt.pref}}
		if got := u.WantsNotification(tt.when); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}

	// Unset preference defaults to off.
	var u User
	if u.WantsNotification(NotifyDayBefore) {
		t.Error("user without settings should not get reminders")
	}
}

func TestGroupRoleHelpers(t *testing.T) {
	g := Group{Members: []GroupMember{
		{Role: RoleCreator, MemberTid: 1},
		{Role: RoleAdmin, MemberTid: 2},
		{Role: RoleMember, MemberTid: 3},
		{Role: RoleMember, MemberTid: 4, Permissions: map[string]string{"financial": PermExpenses}},
	}}

	if admins := g.Admins(); len(admins) != 1 || admins[0].MemberTid != 2 {
		t.Errorf("Admins = %+v", admins)
	}
	if promotable := g.PromotableMembers(); len(promotable) != 2 {
		t.Errorf("PromotableMembers = %d, want 2", len(promotable))
	}
	if manageable := g.ManageableMembers(); len(manageable) != 3 {
		t.Errorf("ManageableMembers = %d, want 3", len(manageable))
	}

	creator, ok := g.Creator()
	if !ok || creator.MemberTid != 1 {
		t.Errorf("Creator = %+v, ok=%v", creator, ok)
	}

	m, _ := g.MemberByTid(3)
	if m.HasFinancialAccess() {
		t.Error("plain member without grant has finance access")
	}
	granted, _ := g.MemberByTid(4)
	if !granted.HasFinancialAccess() {
		t.Error("member with expenses grant lacks finance access")
	}
	admin, _ := g.MemberByTid(2)
	if !admin.HasFinancialAccess() {
		t.Error("admin lacks finance access")
	}
}
