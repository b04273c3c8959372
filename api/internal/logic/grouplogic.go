package logic

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/qx/taskmate_robot/api/internal/client"
	"github.com/qx/taskmate_robot/api/internal/engine"
	"github.com/qx/taskmate_robot/api/internal/keyboard"
	"github.com/qx/taskmate_robot/api/internal/model"
	"github.com/qx/taskmate_robot/api/internal/perm"
	"github.com/qx/taskmate_robot/api/internal/session"
	"github.com/qx/taskmate_robot/api/internal/svc"
)

// Group conversation states.
const (
	stateGroupName          engine.State = "group_name"
	stateGroupDescription   engine.State = "group_description"
	stateGroupMembers       engine.State = "group_members"
	stateGroupConfirmCreate engine.State = "group_confirm_create"
	stateGroupEditOption    engine.State = "group_edit_option"
	stateGroupAction        engine.State = "group_action"
	stateGroupAdmins        engine.State = "group_admins"
	stateGroupAdminView     engine.State = "group_admin_view"
	stateGroupPromote       engine.State = "group_promote"
	stateGroupMembersMenu   engine.State = "group_members_menu"
	stateGroupMemberView    engine.State = "group_member_view"
	stateGroupMemberAdd     engine.State = "group_member_add"
	stateGroupInfoOption    engine.State = "group_info_option"
	stateGroupInfoName      engine.State = "group_info_name"
	stateGroupInfoDesc      engine.State = "group_info_desc"
)

type GroupLogic struct {
	svcCtx *svc.ServiceContext
}

func NewGroupLogic(svcCtx *svc.ServiceContext) *GroupLogic {
	return &GroupLogic{svcCtx: svcCtx}
}

// Conversation defines the group flow state graph.
func (l *GroupLogic) Conversation() *engine.Spec {
	return &engine.Spec{
		Name: "group",
		Entry: []engine.Rule{
			{Match: engine.CallbackPrefix("group_open_"), Handle: l.Open},
			{Match: engine.CallbackIn("group_create"), Handle: l.BeginCreation},
		},
		States: map[engine.State][]engine.Rule{
			stateGroupName:          {{Match: engine.AnyText(), Handle: l.InputName}},
			stateGroupDescription:   {{Match: engine.AnyText(), Handle: l.InputDescription}},
			stateGroupMembers:       {{Match: engine.AnyText(), Handle: l.InputMembers}},
			stateGroupConfirmCreate: {{Match: engine.CallbackPrefix("group_confirm_"), Handle: l.ConfirmCreation}},
			stateGroupEditOption:    {{Match: engine.CallbackPrefix("group_edit_"), Handle: l.SelectEditOption}},
			stateGroupAction: {
				{Match: engine.CallbackPrefix("group_action_"), Handle: l.HandleAction},
				{Match: engine.CallbackIn("nav_exit"), Handle: l.exit},
			},
			stateGroupAdmins: {
				{Match: engine.CallbackPrefix("admin_pick_"), Handle: l.PickAdmin},
				{Match: engine.CallbackIn("admin_promote"), Handle: l.BeginPromotion},
				{Match: engine.CallbackIn("nav_back"), Handle: l.backToActions},
				{Match: engine.CallbackIn("nav_exit"), Handle: l.exit},
			},
			stateGroupAdminView: {
				{Match: engine.CallbackIn("admin_demote"), Handle: l.DemoteAdmin},
				{Match: engine.CallbackIn("nav_back"), Handle: l.backToAdmins},
				{Match: engine.CallbackIn("nav_exit"), Handle: l.exit},
			},
			stateGroupPromote: {
				{Match: engine.CallbackPrefix("promote_pick_"), Handle: l.PromoteMember},
				{Match: engine.CallbackIn("nav_back"), Handle: l.backToAdmins},
				{Match: engine.CallbackIn("nav_exit"), Handle: l.exit},
			},
			stateGroupMembersMenu: {
				{Match: engine.CallbackPrefix("member_pick_"), Handle: l.PickMember},
				{Match: engine.CallbackIn("member_add"), Handle: l.BeginAddMember},
				{Match: engine.CallbackIn("nav_back"), Handle: l.backToActions},
				{Match: engine.CallbackIn("nav_exit"), Handle: l.exit},
			},
			stateGroupMemberView: {
				{Match: engine.CallbackIn("member_remove"), Handle: l.RemoveMember},
				{Match: engine.CallbackIn("member_toggle_expenses"), Handle: l.ToggleExpenses},
				{Match: engine.CallbackIn("nav_back"), Handle: l.backToMembers},
				{Match: engine.CallbackIn("nav_exit"), Handle: l.exit},
			},
			stateGroupMemberAdd: {{Match: engine.AnyText(), Handle: l.InputNewMember}},
			stateGroupInfoOption: {
				{Match: engine.CallbackPrefix("group_info_"), Handle: l.SelectInfoField},
				{Match: engine.CallbackIn("nav_back"), Handle: l.backToActions},
				{Match: engine.CallbackIn("nav_exit"), Handle: l.exit},
			},
			stateGroupInfoName: {{Match: engine.AnyText(), Handle: l.InputInfoName}},
			stateGroupInfoDesc: {{Match: engine.AnyText(), Handle: l.InputInfoDescription}},
		},
		Cancel: l.cancel,
	}
}

func (l *GroupLogic) cancel(ctx context.Context, ev engine.Event) (engine.State, error) {
	if err := l.svcCtx.Sessions.ResetGroup(ev.ChatID); err != nil {
		return engine.End, err
	}
	sendMarkup(l.svcCtx.Bot, ev.ChatID, msgCancelled, keyboard.MainMenu())
	return engine.End, nil
}

// Menu handles /group: the caller's own group first, then memberships.
// Creating a group is a premium feature, one group per user.
func (l *GroupLogic) Menu(ctx context.Context, ev engine.Event) (engine.State, error) {
	if err := l.svcCtx.Sessions.ResetAll(ev.ChatID); err != nil {
		return engine.End, err
	}
	user, err := l.svcCtx.API.GetUser(ctx, ev.UserID)
	if errors.Is(err, client.ErrNotFound) {
		send(l.svcCtx.Bot, ev.ChatID, "Please run /start first.")
		return engine.End, nil
	}
	if err != nil {
		send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
		return engine.End, nil
	}

	created, err := l.svcCtx.API.GetCreatedGroup(ctx, ev.UserID)
	if err != nil && !errors.Is(err, client.ErrNotFound) {
		send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
		return engine.End, nil
	}
	groups, err := l.svcCtx.API.ListUserGroups(ctx, ev.UserID)
	if err != nil && !errors.Is(err, client.ErrNotFound) {
		send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
		return engine.End, nil
	}

	canCreate := created == nil && user.IsPremium()
	if created == nil && len(groups) == 0 && !canCreate {
		sendMarkup(l.svcCtx.Bot, ev.ChatID,
			"You are not in any group yet.\n"+
				"Creating your own group requires a premium subscription; "+
				"joining by invite link is free.",
			keyboard.MainMenu())
		return engine.End, nil
	}
	sendMarkup(l.svcCtx.Bot, ev.ChatID, "GROUPS\n\nChoose a group:",
		keyboard.GroupPicker(created, groups, canCreate))
	return engine.End, nil
}

// Open is the conversation entry for picking a group off the /group menu.
func (l *GroupLogic) Open(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		oid := strings.TrimPrefix(ev.Callback, "group_open_")
		group, err := l.svcCtx.API.GetGroup(ctx, oid)
		if err != nil {
			send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
			return engine.End, nil
		}
		caller, ok := group.MemberByTid(ev.UserID)
		if !ok {
			send(l.svcCtx.Bot, ev.ChatID, msgNoAccess)
			return engine.End, nil
		}
		s.Group.Current = group
		s.Group.CallerRow = caller
		return l.showActions(ev, s)
	})
}

// showActions renders the group overview and the role-gated action menu.
func (l *GroupLogic) showActions(ev engine.Event, s *session.Session) (engine.State, error) {
	group := s.Group.Current
	caller := s.Group.CallerRow
	text := fmt.Sprintf("Group: %s\n%s\n\nMembers: %d\nYour role: %s",
		group.Name, group.Description, len(group.Members), caller.Role)
	if perm.Allowed(caller, perm.CapManageMembers) && l.svcCtx.BotName != "" {
		text += fmt.Sprintf("\nInvite link: https://t.me/%s?start=%s%s",
			l.svcCtx.BotName, joinLinkPrefix, group.GroupOid)
	}
	sendMarkup(l.svcCtx.Bot, ev.ChatID, text, keyboard.GroupActions(perm.Capabilities(caller)))
	return stateGroupAction, nil
}

func (l *GroupLogic) exit(ctx context.Context, ev engine.Event) (engine.State, error) {
	if err := l.svcCtx.Sessions.ResetGroup(ev.ChatID); err != nil {
		return engine.End, err
	}
	sendMarkup(l.svcCtx.Bot, ev.ChatID, "Back to the main menu.", keyboard.MainMenu())
	return engine.End, nil
}

// exitWith is exit for handlers already holding the loaded session: the
// scratch is cleared in place so the caller's save persists the reset.
func (l *GroupLogic) exitWith(s *session.Session, ev engine.Event) (engine.State, error) {
	s.Group = session.GroupScratch{}
	sendMarkup(l.svcCtx.Bot, ev.ChatID, "Back to the main menu.", keyboard.MainMenu())
	return engine.End, nil
}

func (l *GroupLogic) backToActions(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		if s.Group.Current == nil || s.Group.CallerRow == nil {
			return l.exitWith(s, ev)
		}
		return l.showActions(ev, s)
	})
}

// HandleAction routes the action menu. Every branch re-checks the
// capability even though the menu only rendered allowed buttons.
func (l *GroupLogic) HandleAction(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		group, caller := s.Group.Current, s.Group.CallerRow
		if group == nil || caller == nil {
			return l.exitWith(s, ev)
		}
		switch ev.Callback {
		case "group_action_info":
			if !perm.Allowed(caller, perm.CapEditInfo) {
				send(l.svcCtx.Bot, ev.ChatID, msgNoAccess)
				return stateGroupAction, nil
			}
			sendMarkup(l.svcCtx.Bot, ev.ChatID,
				fmt.Sprintf("Name: %s\nDescription: %s\n\nWhat do you want to change?",
					group.Name, group.Description),
				withNav(keyboard.GroupEditInfoOptions()))
			return stateGroupInfoOption, nil
		case "group_action_admins":
			if !perm.Allowed(caller, perm.CapManageAdmins) {
				send(l.svcCtx.Bot, ev.ChatID, msgNoAccess)
				return stateGroupAction, nil
			}
			return l.showAdmins(ctx, ev, s)
		case "group_action_members":
			if !perm.Allowed(caller, perm.CapManageMembers) {
				send(l.svcCtx.Bot, ev.ChatID, msgNoAccess)
				return stateGroupAction, nil
			}
			return l.showMembers(ctx, ev, s)
		case "group_action_tasks":
			return l.openGroupTasks(ctx, ev, s)
		case "group_action_finances":
			return l.openGroupFinances(ctx, ev, s)
		}
		return stateGroupAction, nil
	})
}

// openGroupTasks hands over to the task flow: cache the group's tasks and
// end this conversation so the task menu press enters that one. The group
// stays in the session, which is what marks new tasks as group tasks.
func (l *GroupLogic) openGroupTasks(ctx context.Context, ev engine.Event, s *session.Session) (engine.State, error) {
	tasks, err := l.svcCtx.API.ListGroupTasks(ctx, s.Group.Current.GroupOid)
	if err != nil && !errors.Is(err, client.ErrNotFound) {
		send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
		return stateGroupAction, nil
	}
	s.Task.Tasks = tasks
	stats := model.Statistics(tasks, ev.Time)
	text := fmt.Sprintf("Tasks of '%s'\n\nTotal: %d\nActive: %d\nOverdue: %d",
		s.Group.Current.Name, stats.Total, stats.Active, stats.Overdue)
	sendMarkup(l.svcCtx.Bot, ev.ChatID, text, keyboard.TaskMenu())
	return engine.End, nil
}

// openGroupFinances hands over to the financial flow, creating the
// group's ledger on first use.
func (l *GroupLogic) openGroupFinances(ctx context.Context, ev engine.Event, s *session.Session) (engine.State, error) {
	if !s.Group.CallerRow.HasFinancialAccess() {
		send(l.svcCtx.Bot, ev.ChatID, msgNoAccess)
		return stateGroupAction, nil
	}
	oid := s.Group.Current.GroupOid
	fin, err := l.svcCtx.API.GetGroupFinancial(ctx, oid)
	if errors.Is(err, client.ErrNotFound) {
		fresh := model.NewFinancial(ev.Time)
		fresh.GroupOid = oid
		finOid, createErr := l.svcCtx.API.CreateFinancial(ctx, fresh)
		if createErr != nil {
			send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
			return stateGroupAction, nil
		}
		fresh.FinancialOid = finOid
		fin = fresh
	} else if err != nil {
		send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
		return stateGroupAction, nil
	}
	s.Financial.Financial = fin
	s.Financial.GroupOid = oid
	sendMarkup(l.svcCtx.Bot, ev.ChatID,
		fmt.Sprintf("Finances of '%s'", s.Group.Current.Name), keyboard.FinancialMenu())
	return engine.End, nil
}

// BeginCreation is the conversation entry for the create button. The
// premium gate is re-checked here: the button may be stale.
func (l *GroupLogic) BeginCreation(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		user, err := l.svcCtx.API.GetUser(ctx, ev.UserID)
		if err != nil {
			send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
			return engine.End, nil
		}
		if !user.IsPremium() {
			send(l.svcCtx.Bot, ev.ChatID, "Creating a group requires a premium subscription.")
			return engine.End, nil
		}
		if existing, err := l.svcCtx.API.GetCreatedGroup(ctx, ev.UserID); err == nil && existing != nil {
			send(l.svcCtx.Bot, ev.ChatID, "You already have a group: '"+existing.Name+"'.")
			return engine.End, nil
		}
		s.Group.Draft = &session.GroupDraft{}
		removeKeyboard(l.svcCtx.Bot, ev.ChatID, "Enter the group name:")
		return stateGroupName, nil
	})
}

func (l *GroupLogic) InputName(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		groupDraft(s).Name = strings.TrimSpace(ev.Text)
		if s.Group.Entry == session.EntryRevisit {
			s.Group.Entry = ""
			return l.confirmCreation(ev, s)
		}
		send(l.svcCtx.Bot, ev.ChatID, "Enter the group description:")
		return stateGroupDescription, nil
	})
}

func (l *GroupLogic) InputDescription(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		groupDraft(s).Description = strings.TrimSpace(ev.Text)
		if s.Group.Entry == session.EntryRevisit {
			s.Group.Entry = ""
			return l.confirmCreation(ev, s)
		}
		send(l.svcCtx.Bot, ev.ChatID,
			"List the Telegram ids of the first members, comma-separated,\n"+
				"or send \"skip\" to start with just yourself:")
		return stateGroupMembers, nil
	})
}

// InputMembers parses the optional initial member list. Ids must be
// numeric and a repeated id counts once; resolution against registered
// users happens at commit.
func (l *GroupLogic) InputMembers(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		draft := groupDraft(s)
		input := strings.TrimSpace(ev.Text)
		if strings.EqualFold(input, "skip") {
			draft.MemberTids = nil
		} else {
			var tids []int64
			seen := map[int64]bool{}
			for _, part := range strings.Split(input, ",") {
				tid, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
				if err != nil {
					send(l.svcCtx.Bot, ev.ChatID, msgBadInput)
					return stateGroupMembers, nil
				}
				if seen[tid] {
					continue
				}
				seen[tid] = true
				tids = append(tids, tid)
			}
			draft.MemberTids = tids
		}
		s.Group.Entry = ""
		return l.confirmCreation(ev, s)
	})
}

func (l *GroupLogic) confirmCreation(ev engine.Event, s *session.Session) (engine.State, error) {
	draft := groupDraft(s)
	members := "just you"
	if len(draft.MemberTids) > 0 {
		members = fmt.Sprintf("you + %d invited", len(draft.MemberTids))
	}
	text := fmt.Sprintf("Confirm group creation:\nName: %s\nDescription: %s\nMembers: %s\n\nCancel - /cancel",
		draft.Name, draft.Description, members)
	sendMarkup(l.svcCtx.Bot, ev.ChatID, text, keyboard.Confirmation("group"))
	return stateGroupConfirmCreate, nil
}

func (l *GroupLogic) ConfirmCreation(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		switch ev.Callback {
		case "group_confirm_yes":
			return l.createGroup(ctx, ev, s)
		case "group_confirm_edit":
			sendMarkup(l.svcCtx.Bot, ev.ChatID, "What do you want to change?", keyboard.GroupEditOptions())
			return stateGroupEditOption, nil
		}
		return engine.End, nil
	})
}

// createGroup commits the draft. Invited ids that do not resolve to a
// registered user are dropped with a note rather than failing the whole
// creation.
func (l *GroupLogic) createGroup(ctx context.Context, ev engine.Event, s *session.Session) (engine.State, error) {
	creator, err := l.svcCtx.API.GetUser(ctx, ev.UserID)
	if err != nil {
		send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
		return engine.End, nil
	}
	draft := groupDraft(s)
	members := []model.GroupMember{{
		Role:        model.RoleCreator,
		Permissions: map[string]string{},
		MemberOid:   creator.UserOid,
		MemberTid:   ev.UserID,
	}}
	var skipped []string
	for _, tid := range draft.MemberTids {
		if tid == ev.UserID {
			continue
		}
		user, err := l.svcCtx.API.GetUser(ctx, tid)
		if err != nil {
			skipped = append(skipped, strconv.FormatInt(tid, 10))
			continue
		}
		members = append(members, model.GroupMember{
			Role:        model.RoleMember,
			Permissions: map[string]string{},
			MemberOid:   user.UserOid,
			MemberTid:   tid,
		})
	}
	group := &model.Group{
		GroupOid:    model.OidUnassigned,
		Name:        draft.Name,
		Description: draft.Description,
		Members:     members,
	}
	oid, err := l.svcCtx.API.CreateGroup(ctx, group)
	if err != nil {
		sendMarkup(l.svcCtx.Bot, ev.ChatID, "Could not create the group. Please try again.", keyboard.MainMenu())
		s.Group = session.GroupScratch{}
		return engine.End, nil
	}
	text := "Group '" + draft.Name + "' created."
	if len(skipped) > 0 {
		text += "\nNot registered, skipped: " + strings.Join(skipped, ", ")
	}
	if l.svcCtx.BotName != "" {
		text += fmt.Sprintf("\nInvite link: https://t.me/%s?start=%s%s", l.svcCtx.BotName, joinLinkPrefix, oid)
	}
	sendMarkup(l.svcCtx.Bot, ev.ChatID, text, keyboard.MainMenu())
	s.Group = session.GroupScratch{}
	return engine.End, nil
}

func (l *GroupLogic) SelectEditOption(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		s.Group.Entry = session.EntryRevisit
		switch ev.Callback {
		case "group_edit_name":
			send(l.svcCtx.Bot, ev.ChatID, "Enter the new name:")
			return stateGroupName, nil
		case "group_edit_description":
			send(l.svcCtx.Bot, ev.ChatID, "Enter the new description:")
			return stateGroupDescription, nil
		case "group_edit_members":
			send(l.svcCtx.Bot, ev.ChatID, "List the member ids again, or \"skip\":")
			return stateGroupMembers, nil
		}
		return stateGroupEditOption, nil
	})
}

// Admin management.

func (l *GroupLogic) showAdmins(ctx context.Context, ev engine.Event, s *session.Session) (engine.State, error) {
	group := s.Group.Current
	admins := group.Admins()
	s.Group.Admins = admins

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, a := range admins {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				l.memberName(ctx, a), fmt.Sprintf("admin_pick_%d", a.MemberTid)),
		))
	}
	if len(group.PromotableMembers()) > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Promote a member", "admin_promote"),
		))
	}
	rows = append(rows, navRow())

	text := fmt.Sprintf("Admins of '%s': %d", group.Name, len(admins))
	sendMarkup(l.svcCtx.Bot, ev.ChatID, text, tgbotapi.NewInlineKeyboardMarkup(rows...))
	return stateGroupAdmins, nil
}

func (l *GroupLogic) backToAdmins(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		if s.Group.Current == nil {
			return l.exitWith(s, ev)
		}
		return l.showAdmins(ctx, ev, s)
	})
}

func (l *GroupLogic) PickAdmin(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		tid, err := strconv.ParseInt(strings.TrimPrefix(ev.Callback, "admin_pick_"), 10, 64)
		if err != nil || s.Group.Current == nil {
			return stateGroupAdmins, nil
		}
		target, ok := s.Group.Current.MemberByTid(tid)
		if !ok || target.Role != model.RoleAdmin {
			send(l.svcCtx.Bot, ev.ChatID, "That member is no longer an admin.")
			return l.showAdmins(ctx, ev, s)
		}
		s.Group.CurrentAdmin = target
		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("Demote to member", "admin_demote"),
			),
			navRow(),
		)
		sendMarkup(l.svcCtx.Bot, ev.ChatID, "Admin: "+l.memberName(ctx, *target), kb)
		return stateGroupAdminView, nil
	})
}

// DemoteAdmin demotes the picked admin back to member. The creator never
// appears in the admin list, so the creator role cannot be lost here.
func (l *GroupLogic) DemoteAdmin(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		if !perm.Allowed(s.Group.CallerRow, perm.CapManageAdmins) {
			send(l.svcCtx.Bot, ev.ChatID, msgNoAccess)
			return engine.End, nil
		}
		target := s.Group.CurrentAdmin
		if target == nil || target.Role != model.RoleAdmin {
			return l.showAdmins(ctx, ev, s)
		}
		if err := l.svcCtx.API.SetMemberRole(ctx, s.Group.Current.GroupOid, target.MemberTid, model.RoleMember); err != nil {
			send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
			return stateGroupAdminView, nil
		}
		s.Group.CurrentAdmin = nil
		send(l.svcCtx.Bot, ev.ChatID, "Demoted.")
		if err := l.refreshGroup(ctx, s, ev.UserID); err != nil {
			return l.exitWith(s, ev)
		}
		return l.showAdmins(ctx, ev, s)
	})
}

func (l *GroupLogic) BeginPromotion(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		candidates := s.Group.Current.PromotableMembers()
		if len(candidates) == 0 {
			send(l.svcCtx.Bot, ev.ChatID, "No members to promote.")
			return l.showAdmins(ctx, ev, s)
		}
		s.Group.Candidates = candidates
		var rows [][]tgbotapi.InlineKeyboardButton
		for _, m := range candidates {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(
					l.memberName(ctx, m), fmt.Sprintf("promote_pick_%d", m.MemberTid)),
			))
		}
		rows = append(rows, navRow())
		sendMarkup(l.svcCtx.Bot, ev.ChatID, "Choose a member to promote:",
			tgbotapi.NewInlineKeyboardMarkup(rows...))
		return stateGroupPromote, nil
	})
}

func (l *GroupLogic) PromoteMember(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		if !perm.Allowed(s.Group.CallerRow, perm.CapManageAdmins) {
			send(l.svcCtx.Bot, ev.ChatID, msgNoAccess)
			return engine.End, nil
		}
		tid, err := strconv.ParseInt(strings.TrimPrefix(ev.Callback, "promote_pick_"), 10, 64)
		if err != nil {
			return stateGroupPromote, nil
		}
		target, ok := s.Group.Current.MemberByTid(tid)
		if !ok || target.Role != model.RoleMember {
			send(l.svcCtx.Bot, ev.ChatID, "That member cannot be promoted.")
			return l.showAdmins(ctx, ev, s)
		}
		if err := l.svcCtx.API.SetMemberRole(ctx, s.Group.Current.GroupOid, tid, model.RoleAdmin); err != nil {
			send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
			return stateGroupPromote, nil
		}
		send(l.svcCtx.Bot, ev.ChatID, "Promoted to admin.")
		if err := l.refreshGroup(ctx, s, ev.UserID); err != nil {
			return l.exitWith(s, ev)
		}
		return l.showAdmins(ctx, ev, s)
	})
}

// Member management.

func (l *GroupLogic) showMembers(ctx context.Context, ev engine.Event, s *session.Session) (engine.State, error) {
	group := s.Group.Current
	manageable := group.ManageableMembers()
	s.Group.Candidates = manageable

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, m := range manageable {
		label := l.memberName(ctx, m)
		if m.Role == model.RoleAdmin {
			label += " (admin)"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("member_pick_%d", m.MemberTid)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Add member", "member_add"),
	))
	rows = append(rows, navRow())

	sendMarkup(l.svcCtx.Bot, ev.ChatID,
		fmt.Sprintf("Members of '%s': %d", group.Name, len(group.Members)),
		tgbotapi.NewInlineKeyboardMarkup(rows...))
	return stateGroupMembersMenu, nil
}

func (l *GroupLogic) backToMembers(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		if s.Group.Current == nil {
			return l.exitWith(s, ev)
		}
		return l.showMembers(ctx, ev, s)
	})
}

func (l *GroupLogic) PickMember(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		tid, err := strconv.ParseInt(strings.TrimPrefix(ev.Callback, "member_pick_"), 10, 64)
		if err != nil || s.Group.Current == nil {
			return stateGroupMembersMenu, nil
		}
		target, ok := s.Group.Current.MemberByTid(tid)
		if !ok || target.Role == model.RoleCreator {
			send(l.svcCtx.Bot, ev.ChatID, "That member cannot be managed.")
			return l.showMembers(ctx, ev, s)
		}
		s.Group.CurrentAdmin = target
		expenses := "no"
		if target.HasFinancialAccess() {
			expenses = "yes"
		}
		text := fmt.Sprintf("Member: %s\nRole: %s\nFinance access: %s",
			l.memberName(ctx, *target), target.Role, expenses)
		sendMarkup(l.svcCtx.Bot, ev.ChatID, text, withNav(keyboard.MemberActions()))
		return stateGroupMemberView, nil
	})
}

// RemoveMember drops the picked member from the roster. The creator row
// is never offered and is re-checked here.
func (l *GroupLogic) RemoveMember(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		if !perm.Allowed(s.Group.CallerRow, perm.CapManageMembers) {
			send(l.svcCtx.Bot, ev.ChatID, msgNoAccess)
			return engine.End, nil
		}
		target := s.Group.CurrentAdmin
		if target == nil || target.Role == model.RoleCreator {
			return l.showMembers(ctx, ev, s)
		}
		group := s.Group.Current
		var remaining []model.GroupMember
		for _, m := range group.Members {
			if m.MemberTid != target.MemberTid {
				remaining = append(remaining, m)
			}
		}
		if err := l.svcCtx.API.UpdateMembers(ctx, group.GroupOid, remaining); err != nil {
			send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
			return stateGroupMemberView, nil
		}
		s.Group.CurrentAdmin = nil
		send(l.svcCtx.Bot, ev.ChatID, "Member removed.")
		if err := l.refreshGroup(ctx, s, ev.UserID); err != nil {
			return l.exitWith(s, ev)
		}
		return l.showMembers(ctx, ev, s)
	})
}

// ToggleExpenses flips the plain member's finance grant. Roles above
// member always have access, so the toggle applies to members only.
func (l *GroupLogic) ToggleExpenses(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		if !perm.Allowed(s.Group.CallerRow, perm.CapManageMembers) {
			send(l.svcCtx.Bot, ev.ChatID, msgNoAccess)
			return engine.End, nil
		}
		target := s.Group.CurrentAdmin
		if target == nil {
			return l.showMembers(ctx, ev, s)
		}
		if target.Role != model.RoleMember {
			send(l.svcCtx.Bot, ev.ChatID, "Admins always have finance access.")
			return stateGroupMemberView, nil
		}
		group := s.Group.Current
		roster := make([]model.GroupMember, len(group.Members))
		copy(roster, group.Members)
		for i := range roster {
			if roster[i].MemberTid != target.MemberTid {
				continue
			}
			if roster[i].Permissions == nil {
				roster[i].Permissions = map[string]string{}
			}
			if roster[i].Permissions["financial"] == model.PermExpenses {
				delete(roster[i].Permissions, "financial")
			} else {
				roster[i].Permissions["financial"] = model.PermExpenses
			}
		}
		if err := l.svcCtx.API.UpdateMembers(ctx, group.GroupOid, roster); err != nil {
			send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
			return stateGroupMemberView, nil
		}
		send(l.svcCtx.Bot, ev.ChatID, "Finance access toggled.")
		if err := l.refreshGroup(ctx, s, ev.UserID); err != nil {
			return l.exitWith(s, ev)
		}
		return l.showMembers(ctx, ev, s)
	})
}

func (l *GroupLogic) BeginAddMember(ctx context.Context, ev engine.Event) (engine.State, error) {
	removeKeyboard(l.svcCtx.Bot, ev.ChatID, "Enter the Telegram id of the user to add:")
	return stateGroupMemberAdd, nil
}

// InputNewMember adds a registered user by Telegram id. Adding an existing
// member is a no-op rather than an error.
func (l *GroupLogic) InputNewMember(ctx context.Context, ev engine.Event) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		tid, err := strconv.ParseInt(strings.TrimSpace(ev.Text), 10, 64)
		if err != nil {
			send(l.svcCtx.Bot, ev.ChatID, msgBadInput)
			return stateGroupMemberAdd, nil
		}
		group := s.Group.Current
		if group == nil {
			return l.exitWith(s, ev)
		}
		if _, already := group.MemberByTid(tid); already {
			send(l.svcCtx.Bot, ev.ChatID, "That user is already a member.")
			return l.showMembers(ctx, ev, s)
		}
		user, err := l.svcCtx.API.GetUser(ctx, tid)
		if errors.Is(err, client.ErrNotFound) {
			send(l.svcCtx.Bot, ev.ChatID,
				"That user has not started the bot yet. Share the invite link instead.")
			return stateGroupMemberAdd, nil
		}
		if err != nil {
			send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
			return stateGroupMemberAdd, nil
		}
		member := &model.GroupMember{
			Role:        model.RoleMember,
			Permissions: map[string]string{},
			MemberOid:   user.UserOid,
			MemberTid:   tid,
		}
		if err := l.svcCtx.API.AddMember(ctx, group.GroupOid, member); err != nil {
			send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
			return stateGroupMemberAdd, nil
		}
		send(l.svcCtx.Bot, ev.ChatID, user.Name+" added to the group.")
		if err := l.refreshGroup(ctx, s, ev.UserID); err != nil {
			return l.exitWith(s, ev)
		}
		return l.showMembers(ctx, ev, s)
	})
}

// Info editing commits per field immediately, no confirm step.

func (l *GroupLogic) SelectInfoField(ctx context.Context, ev engine.Event) (engine.State, error) {
	switch ev.Callback {
	case "group_info_name":
		removeKeyboard(l.svcCtx.Bot, ev.ChatID, "Enter the new group name:")
		return stateGroupInfoName, nil
	case "group_info_description":
		removeKeyboard(l.svcCtx.Bot, ev.ChatID, "Enter the new group description:")
		return stateGroupInfoDesc, nil
	}
	return stateGroupInfoOption, nil
}

func (l *GroupLogic) InputInfoName(ctx context.Context, ev engine.Event) (engine.State, error) {
	return l.commitInfo(ctx, ev, func(g *model.Group) {
		g.Name = strings.TrimSpace(ev.Text)
	})
}

func (l *GroupLogic) InputInfoDescription(ctx context.Context, ev engine.Event) (engine.State, error) {
	return l.commitInfo(ctx, ev, func(g *model.Group) {
		g.Description = strings.TrimSpace(ev.Text)
	})
}

func (l *GroupLogic) commitInfo(ctx context.Context, ev engine.Event, apply func(*model.Group)) (engine.State, error) {
	return withSession(l.svcCtx.Sessions, ev.ChatID, func(s *session.Session) (engine.State, error) {
		if !perm.Allowed(s.Group.CallerRow, perm.CapEditInfo) {
			send(l.svcCtx.Bot, ev.ChatID, msgNoAccess)
			return engine.End, nil
		}
		group := s.Group.Current
		if group == nil {
			return l.exitWith(s, ev)
		}
		updated := *group
		apply(&updated)
		if err := l.svcCtx.API.UpdateGroup(ctx, &updated); err != nil {
			send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
			return stateGroupInfoOption, nil
		}
		s.Group.Current = &updated
		if caller, ok := updated.MemberByTid(ev.UserID); ok {
			s.Group.CallerRow = caller
		}
		send(l.svcCtx.Bot, ev.ChatID, "Saved.")
		return l.showActions(ev, s)
	})
}

// refreshGroup reloads the group after a mutation so the cached roster
// and the caller's own row stay current.
func (l *GroupLogic) refreshGroup(ctx context.Context, s *session.Session, callerTid int64) error {
	group, err := l.svcCtx.API.GetGroup(ctx, s.Group.Current.GroupOid)
	if err != nil {
		return err
	}
	caller, ok := group.MemberByTid(callerTid)
	if !ok {
		return fmt.Errorf("caller %d no longer in group %s", callerTid, group.GroupOid)
	}
	s.Group.Current = group
	s.Group.CallerRow = caller
	return nil
}

func (l *GroupLogic) memberName(ctx context.Context, m model.GroupMember) string {
	user, err := l.svcCtx.API.GetUserByOid(ctx, m.MemberOid)
	if err != nil {
		return fmt.Sprintf("user %d", m.MemberTid)
	}
	return user.Name
}

func groupDraft(s *session.Session) *session.GroupDraft {
	if s.Group.Draft == nil {
		s.Group.Draft = &session.GroupDraft{}
	}
	return s.Group.Draft
}

func navRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Back", "nav_back"),
		tgbotapi.NewInlineKeyboardButtonData("Exit", "nav_exit"),
	)
}

// withNav appends the back/exit row to an existing inline keyboard.
func withNav(kb tgbotapi.InlineKeyboardMarkup) tgbotapi.InlineKeyboardMarkup {
	kb.InlineKeyboard = append(kb.InlineKeyboard, navRow())
	return kb
}
