// Package handler adapts Telegram updates into engine events.
package handler

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/qx/taskmate_robot/api/internal/engine"
	"github.com/qx/taskmate_robot/api/internal/svc"
)

// Main-menu buttons act as command shortcuts: pressing one behaves
// exactly like typing the command, including replacing an active
// conversation.
var menuCommands = map[string]string{
	"menu_task":    "task",
	"menu_finance": "finance",
	"menu_group":   "group",
}

type BotHandler struct {
	svcCtx     *svc.ServiceContext
	dispatcher *engine.Dispatcher
}

func NewBotHandler(svcCtx *svc.ServiceContext, dispatcher *engine.Dispatcher) *BotHandler {
	return &BotHandler{svcCtx: svcCtx, dispatcher: dispatcher}
}

// HandleUpdate converts one update and feeds it to the dispatcher.
// Updates for one chat must arrive in order; Telegram long polling
// guarantees that.
func (h *BotHandler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	ev, ok := h.toEvent(update)
	if !ok {
		return
	}
	h.dispatcher.Dispatch(ctx, ev)
}

func (h *BotHandler) toEvent(update tgbotapi.Update) (engine.Event, bool) {
	switch {
	case update.CallbackQuery != nil:
		return h.callbackEvent(update.CallbackQuery)
	case update.Message != nil:
		return messageEvent(update.Message)
	}
	return engine.Event{}, false
}

func messageEvent(msg *tgbotapi.Message) (engine.Event, bool) {
	if msg.From == nil {
		return engine.Event{}, false
	}
	ev := engine.Event{
		ChatID:   msg.Chat.ID,
		UserID:   msg.From.ID,
		UserName: displayName(msg.From),
		Time:     time.Now(),
	}
	if msg.IsCommand() {
		ev.Command = msg.Command()
		ev.Args = strings.TrimSpace(msg.CommandArguments())
	} else {
		ev.Text = msg.Text
	}
	return ev, true
}

// callbackEvent acknowledges the press and removes the pressed keyboard
// message so stale buttons cannot be pressed twice.
func (h *BotHandler) callbackEvent(cq *tgbotapi.CallbackQuery) (engine.Event, bool) {
	if _, err := h.svcCtx.Bot.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		logx.Errorf("answer callback %s: %v", cq.ID, err)
	}
	if cq.Message == nil {
		return engine.Event{}, false
	}
	chatID := cq.Message.Chat.ID
	if _, err := h.svcCtx.Bot.Request(tgbotapi.NewDeleteMessage(chatID, cq.Message.MessageID)); err != nil {
		logx.Errorf("delete message %d in chat %d: %v", cq.Message.MessageID, chatID, err)
	}

	ev := engine.Event{
		ChatID:   chatID,
		UserID:   cq.From.ID,
		UserName: displayName(cq.From),
		Time:     time.Now(),
	}
	if cmd, ok := menuCommands[cq.Data]; ok {
		ev.Command = cmd
	} else {
		ev.Callback = cq.Data
	}
	return ev, true
}

func displayName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
