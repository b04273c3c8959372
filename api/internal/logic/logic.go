// Package logic holds the conversation flow definitions: one *Logic type
// per domain, each exposing its command handlers and an engine.Spec for
// its state graph.
package logic

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/zeromicro/go-zero/core/logx"

	"github.com/qx/taskmate_robot/api/internal/engine"
	"github.com/qx/taskmate_robot/api/internal/session"
	"github.com/qx/taskmate_robot/api/internal/svc"
)

// User-visible failure texts. Plain messages only, never internals.
const (
	msgTryAgain  = "Could not complete the action. Please try again."
	msgNoAccess  = "You do not have access to this action."
	msgBadInput  = "Invalid input. Please try again."
	msgCancelled = "Operation cancelled."
)

func send(bot svc.Bot, chatID int64, text string) {
	sendMarkup(bot, chatID, text, nil)
}

func sendMarkup(bot svc.Bot, chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := bot.Send(msg); err != nil {
		logx.Errorf("send to chat %d failed: %v", chatID, err)
	}
}

func removeKeyboard(bot svc.Bot, chatID int64, text string) {
	sendMarkup(bot, chatID, text, tgbotapi.NewRemoveKeyboard(true))
}

// withSession loads the chat's session, runs fn against it and persists
// whatever fn mutated. The save is skipped when fn fails so a broken step
// never commits half-written scratch state.
func withSession(store *session.Store, chatID int64, fn func(*session.Session) (engine.State, error)) (engine.State, error) {
	s, err := store.Load(chatID)
	if err != nil {
		return engine.End, err
	}
	next, err := fn(s)
	if err != nil {
		return engine.End, err
	}
	if err := store.Save(chatID, s); err != nil {
		return engine.End, err
	}
	return next, nil
}
