package handler

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/qx/taskmate_robot/api/internal/engine"
	"github.com/qx/taskmate_robot/api/internal/svc"
)

type fakeBot struct {
	requests []tgbotapi.Chattable
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func newHandler(received *[]engine.Event) (*BotHandler, *fakeBot) {
	bot := &fakeBot{}
	d := engine.NewDispatcher(nil)
	d.HandleCommand("task", func(ctx context.Context, ev engine.Event) (engine.State, error) {
		*received = append(*received, ev)
		return engine.End, nil
	})
	d.HandleCallback(engine.CallbackPrefix(""), func(ctx context.Context, ev engine.Event) (engine.State, error) {
		*received = append(*received, ev)
		return engine.End, nil
	})
	return NewBotHandler(&svc.ServiceContext{Bot: bot}, d), bot
}

func TestCommandMessage(t *testing.T) {
	var received []engine.Event
	h, _ := newHandler(&received)

	h.HandleUpdate(context.Background(), tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 1,
			From:      &tgbotapi.User{ID: 42, UserName: "ann"},
			Chat:      &tgbotapi.Chat{ID: 42},
			Text:      "/task arg1",
			Entities: []tgbotapi.MessageEntity{
				{Type: "bot_command", Offset: 0, Length: 5},
			},
		},
	})

	if len(received) != 1 {
		t.Fatalf("dispatched %d events, want 1", len(received))
	}
	ev := received[0]
	if ev.Command != "task" || ev.Args != "arg1" {
		t.Errorf("command = %q args = %q", ev.Command, ev.Args)
	}
	if ev.ChatID != 42 || ev.UserID != 42 || ev.UserName != "ann" {
		t.Errorf("identity fields wrong: %+v", ev)
	}
}

func TestMenuCallbackBecomesCommand(t *testing.T) {
	var received []engine.Event
	h, bot := newHandler(&received)

	h.HandleUpdate(context.Background(), tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb1",
			From: &tgbotapi.User{ID: 42, FirstName: "Ann"},
			Data: "menu_task",
			Message: &tgbotapi.Message{
				MessageID: 7,
				Chat:      &tgbotapi.Chat{ID: 42},
			},
		},
	})

	if len(received) != 1 {
		t.Fatalf("dispatched %d events, want 1", len(received))
	}
	if received[0].Command != "task" || received[0].Callback != "" {
		t.Errorf("menu press not translated: %+v", received[0])
	}
	// The press is acknowledged and the keyboard message deleted.
	if len(bot.requests) != 2 {
		t.Fatalf("made %d bot requests, want answer + delete", len(bot.requests))
	}
	if _, ok := bot.requests[0].(tgbotapi.CallbackConfig); !ok {
		t.Errorf("first request %T, want CallbackConfig", bot.requests[0])
	}
	if del, ok := bot.requests[1].(tgbotapi.DeleteMessageConfig); !ok || del.MessageID != 7 {
		t.Errorf("second request %T (%+v), want delete of message 7", bot.requests[1], bot.requests[1])
	}
}

func TestPlainCallbackKeepsToken(t *testing.T) {
	var received []engine.Event
	h, _ := newHandler(&received)

	h.HandleUpdate(context.Background(), tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb2",
			From:    &tgbotapi.User{ID: 42},
			Data:    "task_menu_new",
			Message: &tgbotapi.Message{MessageID: 8, Chat: &tgbotapi.Chat{ID: 42}},
		},
	})

	if len(received) != 1 || received[0].Callback != "task_menu_new" {
		t.Fatalf("callback not forwarded: %+v", received)
	}
}

func TestIgnoredUpdates(t *testing.T) {
	var received []engine.Event
	h, _ := newHandler(&received)

	h.HandleUpdate(context.Background(), tgbotapi.Update{})
	h.HandleUpdate(context.Background(), tgbotapi.Update{
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}}, // no sender
	})

	if len(received) != 0 {
		t.Errorf("dispatched %d events from ignorable updates", len(received))
	}
}
