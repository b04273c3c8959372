package logic

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"github.com/qx/taskmate_robot/api/internal/client"
	"github.com/qx/taskmate_robot/api/internal/engine"
	"github.com/qx/taskmate_robot/api/internal/keyboard"
	"github.com/qx/taskmate_robot/api/internal/model"
	"github.com/qx/taskmate_robot/api/internal/svc"
)

const joinLinkPrefix = "join_"

type BasicLogic struct {
	svcCtx *svc.ServiceContext
}

func NewBasicLogic(svcCtx *svc.ServiceContext) *BasicLogic {
	return &BasicLogic{svcCtx: svcCtx}
}

// Start registers the user lazily on first contact. A deep-link argument
// of the form join_<group_oid> routes into the invite-join path instead.
func (l *BasicLogic) Start(ctx context.Context, ev engine.Event) (engine.State, error) {
	if strings.HasPrefix(ev.Args, joinLinkPrefix) {
		l.joinGroupByLink(ctx, ev, strings.TrimPrefix(ev.Args, joinLinkPrefix))
		return engine.End, nil
	}

	if err := l.ensureUser(ctx, ev.UserID, ev.UserName); err != nil {
		logx.Errorf("start: register user %d: %v", ev.UserID, err)
		send(l.svcCtx.Bot, ev.ChatID, "Registration failed. Please run /start again.")
		return engine.End, nil
	}
	sendMarkup(l.svcCtx.Bot, ev.ChatID,
		"Welcome, "+ev.UserName+"!\n\n"+
			"See /help for instructions, or dive right in.",
		keyboard.MainMenu())
	return engine.End, nil
}

func (l *BasicLogic) Help(ctx context.Context, ev engine.Event) (engine.State, error) {
	if err := l.svcCtx.Sessions.ResetAll(ev.ChatID); err != nil {
		return engine.End, err
	}
	helpText := "Available commands:\n" +
		"/start - get started\n" +
		"/help - this message\n" +
		"/task - view and manage tasks\n" +
		"/finance - view and manage finances\n" +
		"/group - view and manage groups\n" +
		"/notifications - deadline reminder settings\n\n" +
		"If anything gets stuck, /cancel always returns you to the main menu."
	sendMarkup(l.svcCtx.Bot, ev.ChatID, helpText, keyboard.MainMenu())
	return engine.End, nil
}

// Cancel is the global fallback bound at every conversation state. It
// clears every domain's scratch and forces the terminal state.
func (l *BasicLogic) Cancel(ctx context.Context, ev engine.Event) (engine.State, error) {
	if err := l.svcCtx.Sessions.ResetAll(ev.ChatID); err != nil {
		return engine.End, err
	}
	sendMarkup(l.svcCtx.Bot, ev.ChatID, msgCancelled, keyboard.MainMenu())
	return engine.End, nil
}

// OnError is the process-wide boundary: unconditionally clear the chat's
// session and answer with a generic failure so no conversation can stay
// stuck in a corrupt state.
func (l *BasicLogic) OnError(ctx context.Context, ev engine.Event, cause any) {
	if err := l.svcCtx.Sessions.ResetAll(ev.ChatID); err != nil {
		logx.Errorf("error boundary: reset session %d: %v", ev.ChatID, err)
	}
	sendMarkup(l.svcCtx.Bot, ev.ChatID,
		"Something went wrong. You are back at the main menu.",
		keyboard.MainMenu())
}

// ensureUser creates the user record when the Telegram id is unknown.
func (l *BasicLogic) ensureUser(ctx context.Context, tid int64, name string) error {
	tids, err := l.svcCtx.API.ListUserTids(ctx)
	if err != nil {
		return err
	}
	for _, known := range tids {
		if known == tid {
			return nil
		}
	}
	_, err = l.svcCtx.API.CreateUser(ctx, model.NewUser(tid, name, time.Now()))
	return err
}

// joinGroupByLink implements the invite deep link. Re-joining is a no-op:
// membership is checked before the insert so a duplicate row is never
// created.
func (l *BasicLogic) joinGroupByLink(ctx context.Context, ev engine.Event, groupOid string) {
	group, err := l.svcCtx.API.GetGroup(ctx, groupOid)
	if errors.Is(err, client.ErrNotFound) {
		send(l.svcCtx.Bot, ev.ChatID, "Group not found or the link is no longer valid.")
		return
	}
	if err != nil {
		send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
		return
	}

	user, err := l.svcCtx.API.GetUser(ctx, ev.UserID)
	if errors.Is(err, client.ErrNotFound) {
		newUser := model.NewUser(ev.UserID, ev.UserName, time.Now())
		oid, createErr := l.svcCtx.API.CreateUser(ctx, newUser)
		if createErr != nil {
			send(l.svcCtx.Bot, ev.ChatID, "Could not register you. Please try again later.")
			return
		}
		newUser.UserOid = oid
		user = newUser
	} else if err != nil {
		send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
		return
	}

	if _, already := group.MemberByTid(ev.UserID); already {
		send(l.svcCtx.Bot, ev.ChatID, "You are already a member of '"+group.Name+"'.")
		return
	}

	member := &model.GroupMember{
		Role:        model.RoleMember,
		Permissions: map[string]string{},
		MemberOid:   user.UserOid,
		MemberTid:   ev.UserID,
	}
	if err := l.svcCtx.API.AddMember(ctx, groupOid, member); err != nil {
		send(l.svcCtx.Bot, ev.ChatID, "Could not join the group. Please try again.")
		return
	}
	send(l.svcCtx.Bot, ev.ChatID, "You have joined '"+group.Name+"'.")
}
