package logic

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
	"github.com/qx/taskmate_robot/api/internal/engine"
	"github.com/qx/taskmate_robot/api/internal/model"
	"github.com/qx/taskmate_robot/api/internal/session"
	"github.com/qx/taskmate_robot/api/internal/svc"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

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

func (f *fakeBot) lastText() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].Text
}

type fakeKV struct {
	data map[string]string
}

func (f *fakeKV) Get(key string) (string, error) { return f.data[key], nil }
func (f *fakeKV) Set(key, value string) error    { f.data[key] = value; return nil }
func (f *fakeKV) Del(keys ...string) (int, error) {
	n := 0
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return n, nil
}

type env struct {
	svcCtx *svc.ServiceContext
	bot    *fakeBot
	store  *session.Store
}

func newEnv(t *testing.T, mux *http.ServeMux) *env {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	bot := &fakeBot{}
	store := session.NewStore(&fakeKV{data: map[string]string{}})
	return &env{
		svcCtx: &svc.ServiceContext{
			Bot:      bot,
			API:      client.New(server.URL, "t", 2*time.Second),
			Sessions: store,
		},
		bot:   bot,
		store: store,
	}
}

func newTaskDispatcher(t *testing.T, e *env) *engine.Dispatcher {
	t.Helper()
	basic := NewBasicLogic(e.svcCtx)
	tasks := NewTaskLogic(e.svcCtx)
	d := engine.NewDispatcher(func(ctx context.Context, ev engine.Event, cause any) {
		t.Errorf("error boundary hit: %v", cause)
	})
	d.HandleCommand("task", tasks.Menu)
	d.HandleCommand("cancel", basic.Cancel)
	d.Register(tasks.Conversation())
	return d
}

func textEv(text string) engine.Event {
	return engine.Event{ChatID: 42, UserID: 42, UserName: "ann", Text: text, Time: testNow}
}

func callbackEv(token string) engine.Event {
	return engine.Event{ChatID: 42, UserID: 42, UserName: "ann", Callback: token, Time: testNow}
}

func commandEv(cmd, args string) engine.Event {
	return engine.Event{ChatID: 42, UserID: 42, UserName: "ann", Command: cmd, Args: args, Time: testNow}
}

func serveJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestCompleteRecurringTaskFlow(t *testing.T) {
	deadline := testNow.Add(48 * time.Hour)
	var updated *model.Task

	mux := http.NewServeMux()
	mux.HandleFunc("/task/user/42", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, []model.Task{{
			TaskOid:    "t1",
			Title:      "water plants",
			Status:     model.TaskOpen,
			AssignedTo: []string{"u42"},
			Deadline:   deadline,
			Recurring:  "weekly",
		}})
	})
	mux.HandleFunc("/task/t1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("unexpected %s /task/t1", r.Method)
		}
		var task model.Task
		if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
			t.Fatalf("decode update: %v", err)
		}
		updated = &task
	})

	e := newEnv(t, mux)
	d := newTaskDispatcher(t, e)
	ctx := context.Background()

	d.Dispatch(ctx, commandEv("task", ""))
	d.Dispatch(ctx, callbackEv("task_menu_active"))
	if _, state, _ := d.ActiveState(42); state != stateTaskSelect {
		t.Fatalf("state = %q, want task_select", state)
	}
	d.Dispatch(ctx, textEv("1 - water plants - 12.03.2026"))
	if _, state, _ := d.ActiveState(42); state != stateTaskAction {
		t.Fatalf("state = %q, want task_action", state)
	}
	d.Dispatch(ctx, callbackEv("task_action_complete"))

	if updated == nil {
		t.Fatal("task was never persisted")
	}
	if updated.Status != model.TaskOpen {
		t.Errorf("recurring task status = %q, want open", updated.Status)
	}
	if want := deadline.Add(7 * 24 * time.Hour); !updated.Deadline.Equal(want) {
		t.Errorf("deadline = %v, want %v", updated.Deadline, want)
	}
	if _, _, active := d.ActiveState(42); active {
		t.Error("conversation still active after completion")
	}
}

func TestTaskCreationFlow(t *testing.T) {
	var created map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/task/user/42", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, []model.Task{})
	})
	mux.HandleFunc("/user/42", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, model.User{UserOid: "u42", UserTid: 42, Name: "Ann"})
	})
	mux.HandleFunc("/task", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&created); err != nil {
			t.Fatalf("decode create: %v", err)
		}
		serveJSON(t, w, map[string]string{"task_oid": "t9"})
	})

	e := newEnv(t, mux)
	d := newTaskDispatcher(t, e)
	ctx := context.Background()

	d.Dispatch(ctx, commandEv("task", ""))
	d.Dispatch(ctx, callbackEv("task_menu_new"))
	d.Dispatch(ctx, textEv("Call the dentist"))
	d.Dispatch(ctx, textEv("Book a cleaning"))
	d.Dispatch(ctx, textEv("15.04 10:00"))
	d.Dispatch(ctx, textEv("weekly"))
	if _, state, _ := d.ActiveState(42); state != stateTaskConfirmCreate {
		t.Fatalf("state = %q, want confirm", state)
	}
	d.Dispatch(ctx, callbackEv("task_confirm_yes"))

	if created == nil {
		t.Fatal("task was never created")
	}
	if created["title"] != "Call the dentist" {
		t.Errorf("title = %v", created["title"])
	}
	if created["status"] != model.TaskOpen {
		t.Errorf("status = %v", created["status"])
	}
	if created["recurring"] != "weekly" {
		t.Errorf("recurring = %v", created["recurring"])
	}
	if created["group_oid"] != "" {
		t.Errorf("personal task got group_oid %v", created["group_oid"])
	}
	assigned, _ := created["assigned_to"].([]any)
	if len(assigned) != 1 || assigned[0] != "u42" {
		t.Errorf("assigned_to = %v, want [u42]", created["assigned_to"])
	}
	// Year omitted in the deadline input: the current year substitutes.
	if s, _ := created["deadline"].(string); !strings.HasPrefix(s, "2026-04-15T10:00") {
		t.Errorf("deadline = %v", created["deadline"])
	}

	sess, _ := e.store.Load(42)
	if sess.Task.Draft != nil {
		t.Error("draft survived the commit")
	}
}

func TestTaskCreationEditRevisit(t *testing.T) {
	var created map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/task/user/42", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, []model.Task{})
	})
	mux.HandleFunc("/user/42", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, model.User{UserOid: "u42", UserTid: 42, Name: "Ann"})
	})
	mux.HandleFunc("/task", func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&created)
		serveJSON(t, w, map[string]string{"task_oid": "t9"})
	})

	e := newEnv(t, mux)
	d := newTaskDispatcher(t, e)
	ctx := context.Background()

	d.Dispatch(ctx, commandEv("task", ""))
	d.Dispatch(ctx, callbackEv("task_menu_new"))
	d.Dispatch(ctx, textEv("Old title"))
	d.Dispatch(ctx, textEv("Desc"))
	d.Dispatch(ctx, textEv("15.04 10:00"))
	d.Dispatch(ctx, textEv("one-time"))

	// Fix just the title, then land straight back on confirmation.
	d.Dispatch(ctx, callbackEv("task_confirm_edit"))
	d.Dispatch(ctx, callbackEv("task_edit_title"))
	d.Dispatch(ctx, textEv("New title"))
	if _, state, _ := d.ActiveState(42); state != stateTaskConfirmCreate {
		t.Fatalf("state after revisit = %q, want confirm", state)
	}
	d.Dispatch(ctx, callbackEv("task_confirm_yes"))

	if created["title"] != "New title" {
		t.Errorf("title = %v, want the revisited value", created["title"])
	}
	if created["recurring"] != model.RecurringNone {
		t.Errorf("recurring = %v, want the untouched one-time value", created["recurring"])
	}
}

func TestBadInputRetriesWithoutLosingState(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/task/user/42", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, []model.Task{{
			TaskOid: "t1", Title: "a", Status: model.TaskOpen,
			Deadline: testNow.Add(time.Hour),
		}})
	})

	e := newEnv(t, mux)
	d := newTaskDispatcher(t, e)
	ctx := context.Background()

	d.Dispatch(ctx, commandEv("task", ""))
	d.Dispatch(ctx, callbackEv("task_menu_active"))
	d.Dispatch(ctx, textEv("99 - nonsense"))
	if _, state, _ := d.ActiveState(42); state != stateTaskSelect {
		t.Fatalf("state = %q, selection should re-prompt", state)
	}
	d.Dispatch(ctx, textEv("1"))
	if _, state, _ := d.ActiveState(42); state != stateTaskAction {
		t.Errorf("state = %q, valid retry should advance", state)
	}
}

func TestCancelClearsDraftMidCreation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/task/user/42", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, []model.Task{})
	})

	e := newEnv(t, mux)
	d := newTaskDispatcher(t, e)
	ctx := context.Background()

	d.Dispatch(ctx, commandEv("task", ""))
	d.Dispatch(ctx, callbackEv("task_menu_new"))
	d.Dispatch(ctx, textEv("Half-finished"))
	d.Dispatch(ctx, commandEv("cancel", ""))

	if _, _, active := d.ActiveState(42); active {
		t.Error("conversation survived cancel")
	}
	sess, err := e.store.Load(42)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sess.Task.Draft != nil {
		t.Errorf("draft survived cancel: %+v", sess.Task.Draft)
	}
}

func TestJoinByLinkIsIdempotent(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/group/g1", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, model.Group{
			GroupOid: "g1", Name: "home",
			Members: []model.GroupMember{
				{Role: model.RoleCreator, MemberOid: "u1", MemberTid: 1},
				{Role: model.RoleMember, MemberOid: "u42", MemberTid: 42},
			},
		})
	})
	mux.HandleFunc("/user/42", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, model.User{UserOid: "u42", UserTid: 42, Name: "Ann"})
	})
	mux.HandleFunc("/group/g1/member", func(w http.ResponseWriter, r *http.Request) {
		t.Error("existing member was added again")
	})

	e := newEnv(t, mux)
	basic := NewBasicLogic(e.svcCtx)
	if _, err := basic.Start(context.Background(), commandEv("start", "join_g1")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !strings.Contains(e.bot.lastText(), "already a member") {
		t.Errorf("reply = %q", e.bot.lastText())
	}
}

func TestGroupCreationDropsDuplicateInvites(t *testing.T) {
	var created map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/user/42", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, model.User{UserOid: "u42", UserTid: 42, Name: "Ann", Status: "premium"})
	})
	mux.HandleFunc("/user/5", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, model.User{UserOid: "u5", UserTid: 5, Name: "Bob"})
	})
	mux.HandleFunc("/user/7", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, model.User{UserOid: "u7", UserTid: 7, Name: "Cat"})
	})
	mux.HandleFunc("/group/created/42", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/group/user/42", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, []model.Group{})
	})
	mux.HandleFunc("/group", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&created); err != nil {
			t.Fatalf("decode create: %v", err)
		}
		serveJSON(t, w, map[string]string{"group_oid": "g9"})
	})

	e := newEnv(t, mux)
	groups := NewGroupLogic(e.svcCtx)
	d := engine.NewDispatcher(func(ctx context.Context, ev engine.Event, cause any) {
		t.Errorf("error boundary hit: %v", cause)
	})
	d.HandleCommand("group", groups.Menu)
	d.Register(groups.Conversation())
	ctx := context.Background()

	d.Dispatch(ctx, commandEv("group", ""))
	d.Dispatch(ctx, callbackEv("group_create"))
	d.Dispatch(ctx, textEv("Home"))
	d.Dispatch(ctx, textEv("Chores and bills"))
	d.Dispatch(ctx, textEv("5, 5, 7"))

	// The repeated id counts once on the confirmation screen already.
	if !strings.Contains(e.bot.lastText(), "you + 2 invited") {
		t.Errorf("confirmation = %q, want 2 invited", e.bot.lastText())
	}
	d.Dispatch(ctx, callbackEv("group_confirm_yes"))

	if created == nil {
		t.Fatal("group was never created")
	}
	members, _ := created["members"].([]any)
	if len(members) != 3 {
		t.Fatalf("roster has %d rows, want creator + 2 members: %v", len(members), members)
	}
	seen := map[float64]bool{}
	for _, m := range members {
		row, _ := m.(map[string]any)
		tid, _ := row["member_tid"].(float64)
		if seen[tid] {
			t.Errorf("tid %v appears twice in the roster", tid)
		}
		seen[tid] = true
	}
}

func TestEditGroupTaskAssignees(t *testing.T) {
	var updated map[string]any
	group := model.Group{
		GroupOid: "g1", Name: "home",
		Members: []model.GroupMember{
			{Role: model.RoleCreator, MemberOid: "u1", MemberTid: 1},
			{Role: model.RoleAdmin, MemberOid: "u42", MemberTid: 42},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/task/user/42", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, []model.Task{{
			TaskOid: "t1", GroupOid: "g1", Title: "take out trash",
			Status:     model.TaskOpen,
			AssignedTo: []string{"u1"},
			Deadline:   testNow.Add(24 * time.Hour),
		}})
	})
	mux.HandleFunc("/group/g1", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, group)
	})
	mux.HandleFunc("/user/oid/u1", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, model.User{UserOid: "u1", UserTid: 1, Name: "Bob"})
	})
	mux.HandleFunc("/user/oid/u42", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, model.User{UserOid: "u42", UserTid: 42, Name: "Ann"})
	})
	mux.HandleFunc("/task/t1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("unexpected %s /task/t1", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
			t.Fatalf("decode update: %v", err)
		}
	})

	e := newEnv(t, mux)
	d := newTaskDispatcher(t, e)
	ctx := context.Background()

	d.Dispatch(ctx, commandEv("task", ""))
	d.Dispatch(ctx, callbackEv("task_menu_active"))
	d.Dispatch(ctx, textEv("1"))
	d.Dispatch(ctx, callbackEv("task_action_edit"))
	d.Dispatch(ctx, callbackEv("task_edit_assignees"))
	d.Dispatch(ctx, textEv("2"))
	if _, state, _ := d.ActiveState(42); state != stateTaskConfirmEdit {
		t.Fatalf("state = %q, want confirm", state)
	}
	d.Dispatch(ctx, callbackEv("task_confirm_yes"))

	if updated == nil {
		t.Fatal("task was never persisted")
	}
	assigned, _ := updated["assigned_to"].([]any)
	if len(assigned) != 1 || assigned[0] != "u42" {
		t.Errorf("assigned_to = %v, want [u42]", updated["assigned_to"])
	}
	if updated["title"] != "take out trash" {
		t.Errorf("title = %v, untouched fields must survive the merge", updated["title"])
	}
}

func TestFinanceResetDayFlow(t *testing.T) {
	var updated map[string]any
	ledger := model.Financial{
		FinancialOid: "f1", UserOid: "u42", ResetDay: 1,
		Categories: []model.Category{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/financial/user/42", func(w http.ResponseWriter, r *http.Request) {
		serveJSON(t, w, ledger)
	})
	mux.HandleFunc("/financial/f1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			json.NewDecoder(r.Body).Decode(&updated)
			return
		}
		serveJSON(t, w, ledger)
	})

	e := newEnv(t, mux)
	finances := NewFinancialLogic(e.svcCtx)
	d := engine.NewDispatcher(func(ctx context.Context, ev engine.Event, cause any) {
		t.Errorf("error boundary hit: %v", cause)
	})
	d.HandleCommand("finance", finances.Menu)
	d.Register(finances.Conversation())
	ctx := context.Background()

	d.Dispatch(ctx, commandEv("finance", ""))
	d.Dispatch(ctx, callbackEv("finance_reset_day"))

	// Out-of-range input re-prompts, then a valid day commits.
	d.Dispatch(ctx, textEv("32"))
	if _, state, _ := d.ActiveState(42); state != stateFinResetDay {
		t.Fatalf("state = %q, want re-prompt", state)
	}
	d.Dispatch(ctx, textEv("31"))

	if updated == nil {
		t.Fatal("ledger was never updated")
	}
	if got, _ := updated["reset_day"].(float64); int(got) != 31 {
		t.Errorf("reset_day = %v, want 31", updated["reset_day"])
	}
	if !strings.Contains(e.bot.lastText(), "day 31") {
		t.Errorf("confirmation = %q", e.bot.lastText())
	}
}
