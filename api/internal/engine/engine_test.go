package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func textEvent(chatID int64, text string) Event {
	return Event{ChatID: chatID, UserID: chatID, Text: text, Time: time.Now()}
}

func callbackEvent(chatID int64, token string) Event {
	return Event{ChatID: chatID, UserID: chatID, Callback: token, Time: time.Now()}
}

func commandEvent(chatID int64, cmd string) Event {
	return Event{ChatID: chatID, UserID: chatID, Command: cmd, Time: time.Now()}
}

// twoStepSpec is a minimal conversation: a button starts it, one text
// input moves it forward, a second ends it.
func twoStepSpec(log *[]string) *Spec {
	return &Spec{
		Name: "order",
		Entry: []Rule{
			{Match: CallbackPrefix("order_"), Handle: func(ctx context.Context, ev Event) (State, error) {
				*log = append(*log, "entry")
				return "awaiting_item", nil
			}},
		},
		States: map[State][]Rule{
			"awaiting_item": {
				{Match: AnyText(), Handle: func(ctx context.Context, ev Event) (State, error) {
					*log = append(*log, "item:"+ev.Text)
					return "awaiting_qty", nil
				}},
			},
			"awaiting_qty": {
				{Match: AnyText(), Handle: func(ctx context.Context, ev Event) (State, error) {
					*log = append(*log, "qty:"+ev.Text)
					return End, nil
				}},
			},
		},
		Cancel: func(ctx context.Context, ev Event) (State, error) {
			*log = append(*log, "cancelled")
			return End, nil
		},
	}
}

func TestConversationLifecycle(t *testing.T) {
	var log []string
	d := NewDispatcher(func(ctx context.Context, ev Event, cause any) {
		t.Errorf("unexpected error boundary: %v", cause)
	})
	d.Register(twoStepSpec(&log))

	ctx := context.Background()
	d.Dispatch(ctx, callbackEvent(1, "order_new"))
	if name, state, ok := d.ActiveState(1); !ok || name != "order" || state != "awaiting_item" {
		t.Fatalf("after entry: %q %q %v", name, state, ok)
	}

	d.Dispatch(ctx, textEvent(1, "tea"))
	if _, state, _ := d.ActiveState(1); state != "awaiting_qty" {
		t.Fatalf("after item: state %q", state)
	}

	d.Dispatch(ctx, textEvent(1, "2"))
	if _, _, ok := d.ActiveState(1); ok {
		t.Fatal("conversation still active after End")
	}

	want := []string{"entry", "item:tea", "qty:2"}
	if len(log) != len(want) {
		t.Fatalf("log = %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("log[%d] = %q, want %q", i, log[i], want[i])
		}
	}
}

func TestChatsAreIndependent(t *testing.T) {
	var log []string
	d := NewDispatcher(nil)
	d.Register(twoStepSpec(&log))
	ctx := context.Background()

	d.Dispatch(ctx, callbackEvent(1, "order_new"))
	d.Dispatch(ctx, callbackEvent(2, "order_new"))
	d.Dispatch(ctx, textEvent(1, "tea"))

	if _, state, _ := d.ActiveState(1); state != "awaiting_qty" {
		t.Errorf("chat 1 state = %q", state)
	}
	if _, state, _ := d.ActiveState(2); state != "awaiting_item" {
		t.Errorf("chat 2 state = %q", state)
	}
}

func TestCancelRunsSpecCancel(t *testing.T) {
	var log []string
	d := NewDispatcher(nil)
	d.Register(twoStepSpec(&log))
	ctx := context.Background()

	d.Dispatch(ctx, callbackEvent(1, "order_new"))
	d.Dispatch(ctx, commandEvent(1, "cancel"))

	if _, _, ok := d.ActiveState(1); ok {
		t.Error("conversation survived cancel")
	}
	if len(log) == 0 || log[len(log)-1] != "cancelled" {
		t.Errorf("cancel handler did not run: %v", log)
	}
}

func TestCancelWithoutConversationUsesCommand(t *testing.T) {
	ran := false
	d := NewDispatcher(nil)
	d.HandleCommand("cancel", func(ctx context.Context, ev Event) (State, error) {
		ran = true
		return End, nil
	})
	d.Dispatch(context.Background(), commandEvent(1, "cancel"))
	if !ran {
		t.Error("global cancel command did not run")
	}
}

func TestCommandReplacesActiveConversation(t *testing.T) {
	var log []string
	ran := false
	d := NewDispatcher(nil)
	d.Register(twoStepSpec(&log))
	d.HandleCommand("help", func(ctx context.Context, ev Event) (State, error) {
		ran = true
		return End, nil
	})
	ctx := context.Background()

	d.Dispatch(ctx, callbackEvent(1, "order_new"))
	d.Dispatch(ctx, commandEvent(1, "help"))

	if !ran {
		t.Error("command did not run during conversation")
	}
	if _, _, ok := d.ActiveState(1); ok {
		t.Error("conversation survived a replacing command")
	}
}

func TestUnclaimedCallbackOpensOtherConversation(t *testing.T) {
	var log []string
	d := NewDispatcher(nil)
	d.Register(twoStepSpec(&log))
	d.Register(&Spec{
		Name: "survey",
		Entry: []Rule{
			{Match: CallbackPrefix("survey_"), Handle: func(ctx context.Context, ev Event) (State, error) {
				return "survey_q1", nil
			}},
		},
		States: map[State][]Rule{"survey_q1": {}},
	})
	ctx := context.Background()

	d.Dispatch(ctx, callbackEvent(1, "order_new"))
	// awaiting_item does not claim callbacks, so this enters the survey.
	d.Dispatch(ctx, callbackEvent(1, "survey_start"))

	if name, state, _ := d.ActiveState(1); name != "survey" || state != "survey_q1" {
		t.Errorf("active = %q %q, want survey survey_q1", name, state)
	}
}

func TestHandlerErrorHitsBoundary(t *testing.T) {
	var caught any
	d := NewDispatcher(func(ctx context.Context, ev Event, cause any) {
		caught = cause
	})
	boom := errors.New("boom")
	d.Register(&Spec{
		Name: "broken",
		Entry: []Rule{
			{Match: CallbackPrefix("go_"), Handle: func(ctx context.Context, ev Event) (State, error) {
				return "stuck", boom
			}},
		},
		States: map[State][]Rule{"stuck": {}},
	})

	d.Dispatch(context.Background(), callbackEvent(1, "go_now"))
	if !errors.Is(caught.(error), boom) {
		t.Errorf("boundary got %v", caught)
	}
	if _, _, ok := d.ActiveState(1); ok {
		t.Error("conversation survived a handler error")
	}
}

func TestPanicHitsBoundary(t *testing.T) {
	var caught any
	d := NewDispatcher(func(ctx context.Context, ev Event, cause any) {
		caught = cause
	})
	d.HandleCommand("explode", func(ctx context.Context, ev Event) (State, error) {
		panic("kaboom")
	})

	d.Dispatch(context.Background(), commandEvent(1, "explode"))
	if caught != "kaboom" {
		t.Errorf("boundary got %v", caught)
	}
}

func TestStandaloneCallback(t *testing.T) {
	ran := ""
	d := NewDispatcher(nil)
	d.HandleCallback(CallbackPrefix("notify_"), func(ctx context.Context, ev Event) (State, error) {
		ran = ev.Callback
		return End, nil
	})

	d.Dispatch(context.Background(), callbackEvent(1, "notify_all"))
	if ran != "notify_all" {
		t.Errorf("standalone callback ran with %q", ran)
	}
}
