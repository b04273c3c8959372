package logic

import (
	"context"

	"github.com/qx/taskmate_robot/api/internal/engine"
	"github.com/qx/taskmate_robot/api/internal/keyboard"
	"github.com/qx/taskmate_robot/api/internal/model"
	"github.com/qx/taskmate_robot/api/internal/svc"
)

type NotificationLogic struct {
	svcCtx *svc.ServiceContext
}

func NewNotificationLogic(svcCtx *svc.ServiceContext) *NotificationLogic {
	return &NotificationLogic{svcCtx: svcCtx}
}

func (l *NotificationLogic) Menu(ctx context.Context, ev engine.Event) (engine.State, error) {
	sendMarkup(l.svcCtx.Bot, ev.ChatID, "Choose your reminder settings:", keyboard.Notifications())
	return engine.End, nil
}

// HandleSelection commits the pressed preference.
func (l *NotificationLogic) HandleSelection(ctx context.Context, ev engine.Event) (engine.State, error) {
	var pref, confirmation string
	switch ev.Callback {
	case "notify_all":
		pref, confirmation = model.NotifyAll, "You will receive all deadline reminders."
	case "notify_day_before":
		pref, confirmation = model.NotifyDayBefore, "You will be reminded one day before a deadline."
	case "notify_off":
		pref, confirmation = model.NotifyOff, "Reminders are off."
	default:
		return engine.End, nil
	}
	if err := l.svcCtx.API.UpdateNotifications(ctx, ev.UserID, pref); err != nil {
		send(l.svcCtx.Bot, ev.ChatID, msgTryAgain)
		return engine.End, nil
	}
	send(l.svcCtx.Bot, ev.ChatID, confirmation)
	return engine.End, nil
}
