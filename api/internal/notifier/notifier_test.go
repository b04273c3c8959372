package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/qx/taskmate_robot/api/internal/client"
	"github.com/qx/taskmate_robot/api/internal/model"
	"github.com/qx/taskmate_robot/api/internal/svc"
)

type fakeBot struct {
	sent []tgbotapi.MessageConfig
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

type backend struct {
	tasks   []model.Task
	users   map[string]model.User
	updated []model.Task
}

func (b *backend) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/task/active":
			json.NewEncoder(w).Encode(b.tasks)
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/user/oid/"):
			oid := strings.TrimPrefix(r.URL.Path, "/user/oid/")
			user, ok := b.users[oid]
			if !ok {
				http.NotFound(w, r)
				return
			}
			json.NewEncoder(w).Encode(user)
		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/task/"):
			var task model.Task
			if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
				t.Errorf("decode task update: %v", err)
			}
			b.updated = append(b.updated, task)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}
}

func newNotifier(t *testing.T, b *backend) (*Notifier, *fakeBot) {
	t.Helper()
	server := httptest.NewServer(b.handler(t))
	t.Cleanup(server.Close)
	bot := &fakeBot{}
	svcCtx := &svc.ServiceContext{
		Bot: bot,
		API: client.New(server.URL, "t", 2*time.Second),
	}
	return &Notifier{svcCtx: svcCtx, interval: time.Minute}, bot
}

func TestSweepDayBeforeReminder(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	b := &backend{
		tasks: []model.Task{{
			TaskOid:    "t1",
			Title:      "pay rent",
			Status:     model.TaskOpen,
			AssignedTo: []string{"u1"},
			Deadline:   now.Add(12 * time.Hour),
		}},
		users: map[string]model.User{
			"u1": {
				UserOid: "u1", UserTid: 100,
				NotificationSettings: map[string]string{"notifications": model.NotifyDayBefore},
			},
		},
	}
	n, bot := newNotifier(t, b)

	n.sweep(context.Background(), now)

	if len(bot.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(bot.sent))
	}
	if bot.sent[0].ChatID != 100 {
		t.Errorf("sent to chat %d, want 100", bot.sent[0].ChatID)
	}
	if !strings.Contains(bot.sent[0].Text, "pay rent") {
		t.Errorf("reminder text = %q", bot.sent[0].Text)
	}
	if len(b.updated) != 1 {
		t.Fatalf("persisted %d updates, want 1", len(b.updated))
	}
	// Crossing the day window marks both flags so the week reminder can
	// never arrive after the day one.
	if !b.updated[0].Notified.DayBefore || !b.updated[0].Notified.WeekBefore {
		t.Errorf("flags = %+v, want both set", b.updated[0].Notified)
	}
}

func TestSweepWeekBeforePersistsEvenWhenUserOptedOut(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	b := &backend{
		tasks: []model.Task{{
			TaskOid:    "t1",
			Title:      "renew passport",
			Status:     model.TaskOpen,
			AssignedTo: []string{"u1"},
			Deadline:   now.Add(3 * 24 * time.Hour),
		}},
		users: map[string]model.User{
			"u1": {UserOid: "u1", UserTid: 100}, // default preference: off
		},
	}
	n, bot := newNotifier(t, b)

	n.sweep(context.Background(), now)

	if len(bot.sent) != 0 {
		t.Errorf("sent %d messages to an opted-out user", len(bot.sent))
	}
	if len(b.updated) != 1 || !b.updated[0].Notified.WeekBefore {
		t.Errorf("week flag not persisted: %+v", b.updated)
	}
	if b.updated[0].Notified.DayBefore {
		t.Error("day flag set by a week-window sweep")
	}
}

func TestSweepOverdueTaskStillGetsDayReminder(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	b := &backend{
		tasks: []model.Task{{
			TaskOid:    "late",
			Title:      "file taxes",
			Status:     model.TaskOpen,
			AssignedTo: []string{"u1"},
			Deadline:   now.Add(-time.Hour),
		}},
		users: map[string]model.User{
			"u1": {UserOid: "u1", UserTid: 100,
				NotificationSettings: map[string]string{"notifications": model.NotifyAll}},
		},
	}
	n, bot := newNotifier(t, b)

	n.sweep(context.Background(), now)

	// An overdue open task is still inside the one-day window: it gets the
	// day reminder once, and both flags keep the next sweep quiet.
	if len(bot.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(bot.sent))
	}
	if !strings.Contains(bot.sent[0].Text, "file taxes") {
		t.Errorf("reminder text = %q", bot.sent[0].Text)
	}
	if len(b.updated) != 1 || !b.updated[0].Notified.DayBefore || !b.updated[0].Notified.WeekBefore {
		t.Errorf("flags not persisted: %+v", b.updated)
	}
}

func TestSweepSkipsAlreadyNotifiedAndDistant(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	b := &backend{
		tasks: []model.Task{
			{
				TaskOid: "done", Status: model.TaskOpen,
				AssignedTo: []string{"u1"},
				Deadline:   now.Add(3 * 24 * time.Hour),
				Notified:   model.Notified{WeekBefore: true},
			},
			{
				TaskOid: "late", Status: model.TaskOpen,
				AssignedTo: []string{"u1"},
				Deadline:   now.Add(-time.Hour),
				Notified:   model.Notified{DayBefore: true, WeekBefore: true},
			},
			{
				TaskOid: "far", Status: model.TaskOpen,
				AssignedTo: []string{"u1"},
				Deadline:   now.Add(30 * 24 * time.Hour),
			},
		},
		users: map[string]model.User{
			"u1": {UserOid: "u1", UserTid: 100,
				NotificationSettings: map[string]string{"notifications": model.NotifyAll}},
		},
	}
	n, bot := newNotifier(t, b)

	n.sweep(context.Background(), now)

	if len(bot.sent) != 0 {
		t.Errorf("sent %d messages, want 0", len(bot.sent))
	}
	if len(b.updated) != 0 {
		t.Errorf("persisted %d updates, want 0", len(b.updated))
	}
}
